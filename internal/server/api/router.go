package api

import (
	"fmt"

	"modrepo/internal/server/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// multipartOverhead covers form fields and part headers on top of the
// two file parts of an upload.
const multipartOverhead = 1 << 20

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Server.RegisterOnShutdown(uploadLimiter.Stop)
	uploadMiddleware := []echo.MiddlewareFunc{uploadLimiter.Middleware()}
	if cfg.MaxFileSize > 0 {
		limit := fmt.Sprintf("%dB", 2*cfg.MaxFileSize+multipartOverhead)
		uploadMiddleware = append(uploadMiddleware, middleware.BodyLimit(limit))
	}

	e.GET("/health", handler.HandleHealth)

	// Mods
	e.GET("/api/mods", handler.HandleListMods)
	e.POST("/api/mods", handler.HandleUpload, uploadMiddleware...)
	e.GET("/api/mods/:id", handler.HandleGetMod)
	e.GET("/api/mods/:id/download", handler.HandleDownload)
	e.POST("/api/mods/:id/view", handler.HandleView)
	e.POST("/api/mods/:id/favorite", handler.HandleFavorite)

	// Stats
	e.GET("/api/stats/top", handler.HandleStatsTop)
	e.GET("/api/stats/byVersion", handler.HandleStatsByVersion)
	e.GET("/api/stats/summary", handler.HandleStatsSummary)

	// Images
	e.GET("/api/images/:filename", handler.HandleImage)

	return e
}
