// Package modapi holds the JSON shapes exchanged between the catalog
// server and its clients.
package modapi

// Mod is the API-facing shape of a catalog entry. Storage column names
// never leave the server: image_path becomes imageUrl, last_updated
// becomes lastUpdated.
type Mod struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	ImageURL          *string  `json:"imageUrl,omitempty"`
	JarPath           *string  `json:"jarPath,omitempty"`
	Checksum          *string  `json:"checksum,omitempty"`
	MinecraftVersions []string `json:"minecraftVersions"`
	Downloads         int64    `json:"downloads"`
	Popularity        int64    `json:"popularity"`
	Views             int64    `json:"views"`
	Favorites         int64    `json:"favorites"`
	Author            string   `json:"author"`
	Category          string   `json:"category"`
	LastUpdated       *string  `json:"lastUpdated,omitempty"`
}

// RankedMod is a (title, downloads) pair in statistics responses.
type RankedMod struct {
	Title     string `json:"title"`
	Downloads int64  `json:"downloads"`
}

// TopStats is the response of the top-downloads statistic.
type TopStats struct {
	DownloadsTotal int64       `json:"downloadsTotal"`
	MostDownloaded []RankedMod `json:"mostDownloaded"`
}

// Summary is the response of the catalog summary statistic.
type Summary struct {
	Mods      int64 `json:"mods"`
	Downloads int64 `json:"downloads"`
	Views     int64 `json:"views"`
	Favorites int64 `json:"favorites"`
}

// UploadResult is the response of a successful upload.
type UploadResult struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}
