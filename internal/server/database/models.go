package database

import "time"

// ModRecord is one row of the mods table, in storage shape.
// Nullable columns are pointers.
type ModRecord struct {
	ID          string
	Title       string
	Description string
	ImagePath   *string
	JarPath     *string
	JarChecksum *string
	Downloads   int64
	Popularity  int64
	Views       int64
	Favorites   int64
	Author      string
	Category    string
	LastUpdated *time.Time

	// Versions is only populated by ListWithVersions.
	Versions []string
}

// RankedMod is a (title, downloads) pair used by the statistics queries.
type RankedMod struct {
	Title     string
	Downloads int64
}

// TopStats holds the most downloaded mods and the overall download total.
type TopStats struct {
	MostDownloaded []RankedMod
	DownloadsTotal int64
}

// Summary holds catalog-wide totals.
type Summary struct {
	Mods      int64
	Downloads int64
	Views     int64
	Favorites int64
}

// StoredPaths lists the non-null jar_path and image_path values of all mods.
type StoredPaths struct {
	JarPaths   []string
	ImagePaths []string
}
