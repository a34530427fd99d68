package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"modrepo/internal/modapi"
)

const (
	DefaultServer  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the catalog HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultServer
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// Uploads and downloads stream whole artifacts, so only the
		// connection phase is bounded here.
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: defaultTimeout,
			},
		},
	}
}

// UploadRequest describes a mod to publish. JarPath is required.
type UploadRequest struct {
	Title       string
	Author      string
	Category    string
	Description string
	Versions    string
	JarPath     string
	ImagePath   string
}

// ListMods returns every mod in the catalog.
func (c *Client) ListMods(ctx context.Context) ([]modapi.Mod, error) {
	var mods []modapi.Mod
	if err := c.getJSON(ctx, "/api/mods", nil, &mods); err != nil {
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}
	return mods, nil
}

// GetMod returns a single mod.
func (c *Client) GetMod(ctx context.Context, id string) (*modapi.Mod, error) {
	var mod modapi.Mod
	if err := c.getJSON(ctx, "/api/mods/"+url.PathEscape(id), nil, &mod); err != nil {
		return nil, fmt.Errorf("failed to get mod '%s': %w", id, err)
	}
	return &mod, nil
}

// Download saves the artifact of a mod into destDir under the name the
// server suggests and returns the written path.
func (c *Client) Download(ctx context.Context, id, destDir string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/mods/"+url.PathEscape(id)+"/download", nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to download mod '%s': %w", id, err)
	}
	defer resp.Body.Close()

	name := attachmentName(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = "mod-" + id + ".jar"
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory '%s': %w", destDir, err)
	}
	destinationPath := filepath.Join(destDir, name)

	outFile, err := os.Create(destinationPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", destinationPath, err)
	}

	_, err = io.Copy(outFile, resp.Body)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Remove partially downloaded file
		os.Remove(destinationPath)
		return "", fmt.Errorf("failed to write downloaded content to '%s': %w", destinationPath, err)
	}

	return destinationPath, nil
}

// Upload publishes a new mod. The files are streamed, not buffered.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*modapi.UploadResult, error) {
	jarPath, err := ValidateFile("jar", req.JarPath)
	if err != nil {
		return nil, err
	}
	var imagePath string
	if req.ImagePath != "" {
		if imagePath, err = ValidateFile("image", req.ImagePath); err != nil {
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, req, jarPath, imagePath))
	}()

	resp, err := c.do(ctx, http.MethodPost, "/api/mods", nil, pr, mw.FormDataContentType())
	// Unblock the writer if the request ended before the body was consumed.
	pr.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to upload '%s': %w", filepath.Base(jarPath), err)
	}
	defer resp.Body.Close()

	var result modapi.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode json response: %w", err)
	}
	return &result, nil
}

// View records a view of a mod.
func (c *Client) View(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/mods/"+url.PathEscape(id)+"/view", nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to record view of mod '%s': %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// Favorite adds (on) or removes a favorite.
func (c *Client) Favorite(ctx context.Context, id string, on bool) error {
	q := url.Values{"on": {strconv.FormatBool(on)}}
	resp, err := c.do(ctx, http.MethodPost, "/api/mods/"+url.PathEscape(id)+"/favorite", q, nil, "")
	if err != nil {
		return fmt.Errorf("failed to set favorite on mod '%s': %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// TopStats returns the ten most downloaded mods.
func (c *Client) TopStats(ctx context.Context) (*modapi.TopStats, error) {
	var stats modapi.TopStats
	if err := c.getJSON(ctx, "/api/stats/top", nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to get top stats: %w", err)
	}
	return &stats, nil
}

// Summary returns catalog totals.
func (c *Client) Summary(ctx context.Context) (*modapi.Summary, error) {
	var sum modapi.Summary
	if err := c.getJSON(ctx, "/api/stats/summary", nil, &sum); err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &sum, nil
}

// ByVersion returns the top mods per game version. A non-positive top
// leaves the choice to the server.
func (c *Client) ByVersion(ctx context.Context, top int) (map[string][]modapi.RankedMod, error) {
	var q url.Values
	if top > 0 {
		q = url.Values{"top": {strconv.Itoa(top)}}
	}
	var out map[string][]modapi.RankedMod
	if err := c.getJSON(ctx, "/api/stats/byVersion", q, &out); err != nil {
		return nil, fmt.Errorf("failed to get per-version stats: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode json response: %w", err)
	}
	return nil
}

// do sends a request and returns the response of a 2xx status. Any other
// status is turned into an *APIError and the body is closed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return resp, nil
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest, jarPath, imagePath string) error {
	fields := [][2]string{
		{"title", req.Title},
		{"author", req.Author},
		{"category", req.Category},
		{"description", req.Description},
		{"versions", req.Versions},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	if err := copyFilePart(mw, "fileJar", jarPath); err != nil {
		return err
	}
	if imagePath != "" {
		if err := copyFilePart(mw, "fileImage", imagePath); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// attachmentName extracts a safe file name from a Content-Disposition header.
func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := filepath.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
