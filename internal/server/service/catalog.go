package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modrepo/internal/server/config"
	"modrepo/internal/server/database"
	"modrepo/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound         = errors.New("not found")
	ErrArtifactRequired = errors.New("artifact file is required")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrInvalidInput     = errors.New("invalid input")
)

// Repository is the persistence the catalog needs.
type Repository interface {
	Ping(ctx context.Context) error
	ListWithVersions(ctx context.Context) ([]*database.ModRecord, error)
	GetByID(ctx context.Context, id string) (*database.ModRecord, error)
	VersionsFor(ctx context.Context, id string) ([]string, error)
	FindByChecksum(ctx context.Context, checksum string) (*database.ModRecord, error)
	IncrementDownloads(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	IncrementFavorites(ctx context.Context, id string) error
	DecrementFavorites(ctx context.Context, id string) error
	StatsTop(ctx context.Context) (*database.TopStats, error)
	StatsSummary(ctx context.Context) (*database.Summary, error)
	TopModsPerVersion(ctx context.Context, topN int) (map[string][]database.RankedMod, error)
	BeginUpload(ctx context.Context) (database.UploadTx, error)
}

// ServedFile is an opened file ready to be streamed. The caller closes it.
type ServedFile struct {
	File     *os.File
	Filename string
	Size     int64
}

func (f *ServedFile) Close() error { return f.File.Close() }

// CatalogService contains the business logic of the mod catalog.
type CatalogService struct {
	repo        Repository
	store       storage.Store
	maxFileSize int64
	now         func() time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo Repository, store storage.Store, cfg *config.Config) *CatalogService {
	return &CatalogService{
		repo:        repo,
		store:       store,
		maxFileSize: cfg.MaxFileSize,
		now:         time.Now,
	}
}

// Ping reports whether the data store is reachable.
func (s *CatalogService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// List returns every mod with its versions, ordered by numeric id.
func (s *CatalogService) List(ctx context.Context) ([]Mod, error) {
	records, err := s.repo.ListWithVersions(ctx)
	if err != nil {
		return nil, err
	}

	mods := make([]Mod, 0, len(records))
	for _, rec := range records {
		mods = append(mods, ToMod(rec))
	}
	return mods, nil
}

// Get returns a single mod with its versions.
func (s *CatalogService) Get(ctx context.Context, id string) (*Mod, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Versions, err = s.repo.VersionsFor(ctx, id)
	if err != nil {
		return nil, err
	}

	mod := ToMod(rec)
	return &mod, nil
}

// Download opens the artifact of a mod and counts the download. The
// counter is only bumped once the file is known to exist.
func (s *CatalogService) Download(ctx context.Context, id string) (*ServedFile, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.JarPath == nil {
		return nil, fmt.Errorf("%w: mod %s has no artifact", ErrNotFound, id)
	}
	ref, ok := storage.ParseArtifactRef(*rec.JarPath)
	if !ok {
		return nil, fmt.Errorf("%w: mod %s has no artifact", ErrNotFound, id)
	}

	path, err := s.store.ResolveArtifact(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	file, err := openRegular(path)
	if err != nil {
		return nil, err
	}

	// Increment download count (best-effort, don't fail the download)
	if err := s.repo.IncrementDownloads(ctx, id); err != nil {
		slog.Error("failed to increment download count", "id", id, "error", err)
	}

	return file, nil
}

// Image opens an image from the images directory.
func (s *CatalogService) Image(filename string) (*ServedFile, error) {
	path, err := s.store.ImagePath(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return openRegular(path)
}

// RecordView counts a view. Unknown ids are ignored.
func (s *CatalogService) RecordView(ctx context.Context, id string) error {
	return s.repo.IncrementViews(ctx, id)
}

// SetFavorite adds a favorite when on is true and removes one otherwise.
// Unknown ids are ignored.
func (s *CatalogService) SetFavorite(ctx context.Context, id string, on bool) error {
	if on {
		return s.repo.IncrementFavorites(ctx, id)
	}
	return s.repo.DecrementFavorites(ctx, id)
}

// TopStats returns the ten most downloaded mods and the download total.
func (s *CatalogService) TopStats(ctx context.Context) (*TopStats, error) {
	stats, err := s.repo.StatsTop(ctx)
	if err != nil {
		return nil, err
	}
	return &TopStats{
		DownloadsTotal: stats.DownloadsTotal,
		MostDownloaded: toRanked(stats.MostDownloaded),
	}, nil
}

// Summary returns catalog-wide totals.
func (s *CatalogService) Summary(ctx context.Context) (*Summary, error) {
	sum, err := s.repo.StatsSummary(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Mods:      sum.Mods,
		Downloads: sum.Downloads,
		Views:     sum.Views,
		Favorites: sum.Favorites,
	}, nil
}

// TopByVersion returns the most downloaded mods for every version; topN is
// clamped to [1, 10].
func (s *CatalogService) TopByVersion(ctx context.Context, topN int) (map[string][]RankedMod, error) {
	ranked, err := s.repo.TopModsPerVersion(ctx, ClampTop(topN))
	if err != nil {
		return nil, err
	}

	out := make(map[string][]RankedMod, len(ranked))
	for version, mods := range ranked {
		out[version] = toRanked(mods)
	}
	return out, nil
}

func (s *CatalogService) getRecord(ctx context.Context, id string) (*database.ModRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrModNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func openRegular(path string) (*ServedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}

	return &ServedFile{File: file, Filename: filepath.Base(path), Size: info.Size()}, nil
}
