package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"modrepo/internal/server/database"
	"modrepo/internal/server/storage"
)

// UploadFile is one file part of an upload.
type UploadFile struct {
	Name    string // client-supplied file name
	Size    int64  // declared size, -1 when unknown
	Content io.Reader
}

// UploadRequest carries the fields of a new mod.
type UploadRequest struct {
	Title       string
	Author      string
	Category    string
	Description string
	Versions    string // separated by commas, semicolons or whitespace
	Artifact    *UploadFile
	Image       *UploadFile
}

// Upload creates a mod with its files and version tags in one
// transaction. On any failure the transaction is rolled back and every
// file written so far is removed.
func (s *CatalogService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Artifact == nil {
		return nil, ErrArtifactRequired
	}
	for _, f := range []*UploadFile{req.Artifact, req.Image} {
		if f != nil && s.maxFileSize > 0 && f.Size > s.maxFileSize {
			return nil, ErrFileTooLarge
		}
	}
	versions := ParseVersions(req.Versions)

	tx, err := s.repo.BeginUpload(ctx)
	if err != nil {
		return nil, err
	}

	var written []string
	committed := false
	defer func() {
		if committed {
			return
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(cleanupCtx); err != nil {
			slog.Warn("failed to roll back upload", "error", err)
		}
		for _, path := range written {
			if err := s.store.Remove(path); err != nil {
				slog.Error("failed to remove file of failed upload", "path", path, "error", err)
			}
		}
	}()

	id, err := tx.NextID(ctx)
	if err != nil {
		return nil, err
	}

	jar, err := s.store.SaveArtifact(req.Artifact.Name, s.limit(req.Artifact.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}
	written = append(written, jar.Path)

	today := s.today()
	rec := &database.ModRecord{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		JarPath:     &jar.Name,
		JarChecksum: &jar.Checksum,
		Author:      req.Author,
		Category:    req.Category,
		LastUpdated: &today,
	}

	if req.Image != nil {
		img, err := s.store.SaveImage(req.Image.Name, s.limit(req.Image.Content))
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		written = append(written, img.Path)
		imagePath := storage.ImageURLPrefix + img.Name
		rec.ImagePath = &imagePath
	}

	// Check for duplicate artifact (log only, don't block)
	existing, err := s.repo.FindByChecksum(ctx, jar.Checksum)
	switch {
	case err != nil:
		slog.Warn("duplicate artifact check failed", "new_mod", id, "checksum", jar.Checksum, "error", err)
	case existing != nil:
		slog.Info("duplicate artifact detected",
			"new_mod", id,
			"existing_mod", existing.ID,
			"checksum", jar.Checksum,
		)
	}

	if err := tx.InsertMod(ctx, rec); err != nil {
		return nil, err
	}
	if err := tx.InsertVersions(ctx, id, versions); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	slog.Info("mod uploaded",
		"id", id,
		"title", req.Title,
		"artifact", jar.Name,
		"size", jar.Size,
		"versions", versions,
	)

	return &UploadResult{Status: "ok", ID: id}, nil
}

func (s *CatalogService) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *CatalogService) limit(r io.Reader) io.Reader {
	return &limitedReader{r: r, limit: s.maxFileSize}
}

// limitedReader fails once more than limit bytes have been read. A
// non-positive limit disables the check.
type limitedReader struct {
	r     io.Reader
	limit int64
	n     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.limit > 0 && l.n > l.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}
