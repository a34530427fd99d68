package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"modrepo/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Catalog is the service surface the handlers depend on.
type Catalog interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]service.Mod, error)
	Get(ctx context.Context, id string) (*service.Mod, error)
	Download(ctx context.Context, id string) (*service.ServedFile, error)
	Image(filename string) (*service.ServedFile, error)
	Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResult, error)
	RecordView(ctx context.Context, id string) error
	SetFavorite(ctx context.Context, id string, on bool) error
	TopStats(ctx context.Context) (*service.TopStats, error)
	Summary(ctx context.Context) (*service.Summary, error)
	TopByVersion(ctx context.Context, topN int) (map[string][]service.RankedMod, error)
}

// uploadFields must be present in an upload form, possibly empty.
var uploadFields = []string{"title", "author", "category", "description", "versions"}

// Handler contains the HTTP handlers for the catalog API.
type Handler struct {
	catalog Catalog
}

// NewHandler creates a new handler with the given catalog dependency.
func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// HandleListMods handles GET /api/mods.
func (h *Handler) HandleListMods(c echo.Context) error {
	mods, err := h.catalog.List(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, mods)
}

// HandleGetMod handles GET /api/mods/:id.
func (h *Handler) HandleGetMod(c echo.Context) error {
	mod, err := h.catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, mod)
}

// HandleDownload handles GET /api/mods/:id/download.
// Streams the artifact as an attachment.
func (h *Handler) HandleDownload(c echo.Context) error {
	file, err := h.catalog.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer file.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(file.Size, 10))

	return c.Stream(http.StatusOK, echo.MIMEOctetStream, file.File)
}

// HandleImage handles GET /api/images/:filename.
func (h *Handler) HandleImage(c echo.Context) error {
	file, err := h.catalog.Image(c.Param("filename"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file.Filename))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(file.Size, 10))

	return c.Stream(http.StatusOK, contentType, file.File)
}

// HandleUpload handles POST /api/mods.
// Accepts a multipart form with the text fields in uploadFields, a
// required "fileJar" file and an optional "fileImage" file.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form is required"})
	}

	for _, field := range uploadFields {
		if _, ok := form.Value[field]; !ok {
			return mapServiceError(c, fmt.Errorf("%w: field %q is required", service.ErrInvalidInput, field))
		}
	}

	jars := form.File["fileJar"]
	if len(jars) == 0 {
		return mapServiceError(c, fmt.Errorf("%w: file is required (use form field 'fileJar')", service.ErrInvalidInput))
	}

	jar, err := jars[0].Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read uploaded file"})
	}
	defer jar.Close()

	req := service.UploadRequest{
		Title:       form.Value["title"][0],
		Author:      form.Value["author"][0],
		Category:    form.Value["category"][0],
		Description: form.Value["description"][0],
		Versions:    form.Value["versions"][0],
		Artifact:    uploadFile(jars[0], jar),
	}

	if images := form.File["fileImage"]; len(images) > 0 {
		img, err := images[0].Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read uploaded image"})
		}
		defer img.Close()
		req.Image = uploadFile(images[0], img)
	}

	result, err := h.catalog.Upload(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge), errors.Is(err, service.ErrArtifactRequired):
			return mapServiceError(c, err)
		}
		slog.Error("upload failed", "title", req.Title, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed: " + err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}

// HandleView handles POST /api/mods/:id/view.
func (h *Handler) HandleView(c echo.Context) error {
	if err := h.catalog.RecordView(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// HandleFavorite handles POST /api/mods/:id/favorite?on=bool.
func (h *Handler) HandleFavorite(c echo.Context) error {
	on, err := strconv.ParseBool(c.QueryParam("on"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "query parameter 'on' must be true or false"})
	}

	if err := h.catalog.SetFavorite(c.Request().Context(), c.Param("id"), on); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// HandleStatsTop handles GET /api/stats/top.
func (h *Handler) HandleStatsTop(c echo.Context) error {
	stats, err := h.catalog.TopStats(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleStatsByVersion handles GET /api/stats/byVersion?top=N.
func (h *Handler) HandleStatsByVersion(c echo.Context) error {
	top := service.DefaultTopPerVersion
	if raw := c.QueryParam("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "query parameter 'top' must be an integer"})
		}
		top = n
	}

	byVersion, err := h.catalog.TopByVersion(c.Request().Context(), top)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, byVersion)
}

// HandleStatsSummary handles GET /api/stats/summary.
func (h *Handler) HandleStatsSummary(c echo.Context) error {
	sum, err := h.catalog.Summary(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.catalog.Ping(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

func uploadFile(fh *multipart.FileHeader, f multipart.File) *service.UploadFile {
	return &service.UploadFile{Name: fh.Filename, Size: fh.Size, Content: f}
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrArtifactRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
