package database

type versionRow struct {
	ModID   string
	Version string
}

type versionRanking struct {
	Version   string
	Title     string
	Downloads int64
}

// groupVersions collects version strings per mod id, keeping the order in
// which rows arrive.
func groupVersions(rows []versionRow) map[string][]string {
	grouped := make(map[string][]string)
	for _, row := range rows {
		grouped[row.ModID] = append(grouped[row.ModID], row.Version)
	}
	return grouped
}

// attachVersions sets Versions on every mod; mods without rows get an
// empty, non-nil slice.
func attachVersions(mods []*ModRecord, grouped map[string][]string) {
	for _, m := range mods {
		if versions, ok := grouped[m.ID]; ok {
			m.Versions = versions
		} else {
			m.Versions = []string{}
		}
	}
}

// topPerVersion keeps the first topN entries of each version group. Rows
// must already be ordered by version, then by downloads descending.
func topPerVersion(rows []versionRanking, topN int) map[string][]RankedMod {
	out := make(map[string][]RankedMod)
	for _, row := range rows {
		list := out[row.Version]
		if len(list) < topN {
			out[row.Version] = append(list, RankedMod{Title: row.Title, Downloads: row.Downloads})
		}
	}
	return out
}
