package service

import (
	"modrepo/internal/server/database"
)

const dateLayout = "2006-01-02"

// ToMod maps a stored record to its API shape. Null columns stay absent
// rather than being copied as null; versions default to an empty list.
func ToMod(rec *database.ModRecord) Mod {
	m := Mod{
		ID:                rec.ID,
		Title:             rec.Title,
		Description:       rec.Description,
		ImageURL:          rec.ImagePath,
		JarPath:           rec.JarPath,
		Checksum:          rec.JarChecksum,
		MinecraftVersions: rec.Versions,
		Downloads:         rec.Downloads,
		Popularity:        rec.Popularity,
		Views:             rec.Views,
		Favorites:         rec.Favorites,
		Author:            rec.Author,
		Category:          rec.Category,
	}
	if m.MinecraftVersions == nil {
		m.MinecraftVersions = []string{}
	}
	if rec.LastUpdated != nil {
		s := rec.LastUpdated.Format(dateLayout)
		m.LastUpdated = &s
	}
	return m
}

func toRanked(in []database.RankedMod) []RankedMod {
	out := make([]RankedMod, 0, len(in))
	for _, r := range in {
		out = append(out, RankedMod{Title: r.Title, Downloads: r.Downloads})
	}
	return out
}
