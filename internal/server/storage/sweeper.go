package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modrepo/internal/server/database"
)

// ImageURLPrefix prefixes the image_path column values.
const ImageURLPrefix = "/api/images/"

// PathSource lists the file paths referenced by mod rows.
type PathSource interface {
	StoredPaths(ctx context.Context) (*database.StoredPaths, error)
}

// Sweeper periodically removes files from the artifact root and the
// images directory that no mod references, e.g. leftovers of uploads
// that failed after writing to disk.
type Sweeper struct {
	paths    PathSource
	store    *FileSystemStore
	interval time.Duration
	grace    time.Duration
	done     chan struct{}
}

// NewSweeper creates a new sweeper. Files younger than grace are kept so
// that uploads still inside their transaction are never touched.
func NewSweeper(paths PathSource, store *FileSystemStore, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		paths:    paths,
		store:    store,
		interval: interval,
		grace:    grace,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. A non-positive
// interval disables sweeping.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("orphan sweeper disabled")
		close(s.done)
		return
	}

	slog.Info("orphan sweeper started", "interval", s.interval, "grace", s.grace)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.Sweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

// Sweep runs one cycle and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	paths, err := s.paths.StoredPaths(ctx)
	if err != nil {
		slog.Error("failed to list stored paths", "error", err)
		return 0
	}

	referenced := s.referencedPaths(paths)
	cutoff := time.Now().Add(-s.grace)

	var removed, failed int
	for _, dir := range []string{s.store.Root(), s.store.ImagesRoot()} {
		entries, err := listFiles(dir)
		if err != nil {
			slog.Error("failed to list storage directory", "dir", dir, "error", err)
			continue
		}

		for _, orphan := range findOrphans(entries, referenced, cutoff) {
			if err := s.store.Remove(orphan.Path); err != nil {
				slog.Error("failed to delete orphaned file", "file", orphan.Path, "error", err)
				failed++
				continue
			}
			removed++
			slog.Info("removed orphaned file", "dir", dir, "file", filepath.Base(orphan.Path))
		}
	}

	slog.Info("sweep cycle complete", "removed", removed, "failed", failed)
	return removed
}

type fileEntry struct {
	Path    string
	ModTime time.Time
}

// referencedPaths resolves every stored jar and image path the way
// downloads and image requests do, so a file is pinned no matter which
// form its row uses.
func (s *Sweeper) referencedPaths(paths *database.StoredPaths) map[string]bool {
	referenced := make(map[string]bool)

	for _, jar := range paths.JarPaths {
		ref, ok := ParseArtifactRef(jar)
		if !ok {
			continue
		}
		path, err := s.store.ResolveArtifact(ref)
		if err != nil {
			continue
		}
		referenced[path] = true
	}
	for _, img := range paths.ImagePaths {
		name, ok := strings.CutPrefix(img, ImageURLPrefix)
		if !ok {
			continue
		}
		path, err := s.store.ImagePath(name)
		if err != nil {
			continue
		}
		referenced[path] = true
	}
	return referenced
}

// findOrphans returns the entries that are unreferenced and older than cutoff.
func findOrphans(entries []fileEntry, referenced map[string]bool, cutoff time.Time) []fileEntry {
	var orphans []fileEntry
	for _, e := range entries {
		if referenced[e.Path] || e.ModTime.After(cutoff) {
			continue
		}
		orphans = append(orphans, e)
	}
	return orphans
}

func listFiles(dir string) ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var out []fileEntry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, fileEntry{Path: filepath.Join(dir, de.Name()), ModTime: info.ModTime()})
	}
	return out, nil
}
