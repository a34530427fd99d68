package service

import "modrepo/internal/modapi"

// The service returns the shared wire types directly.
type (
	Mod          = modapi.Mod
	RankedMod    = modapi.RankedMod
	TopStats     = modapi.TopStats
	Summary      = modapi.Summary
	UploadResult = modapi.UploadResult
)
