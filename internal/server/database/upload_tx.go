package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UploadTx is the transactional unit used to create a mod together with
// its version tags.
type UploadTx interface {
	NextID(ctx context.Context) (string, error)
	InsertMod(ctx context.Context, mod *ModRecord) error
	InsertVersions(ctx context.Context, modID string, versions []string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginUpload starts the transaction for a new mod.
func (r *Repository) BeginUpload(ctx context.Context) (UploadTx, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin upload transaction: %w", err)
	}
	return &pgUploadTx{tx: tx}, nil
}

type pgUploadTx struct {
	tx pgx.Tx
}

// NextID draws the next mod id from the mods_id_seq sequence, so
// concurrent uploads never receive the same id.
func (u *pgUploadTx) NextID(ctx context.Context) (string, error) {
	var id string
	if err := u.tx.QueryRow(ctx, "SELECT nextval('mods_id_seq')::text").Scan(&id); err != nil {
		return "", fmt.Errorf("failed to allocate mod id: %w", err)
	}
	return id, nil
}

func (u *pgUploadTx) InsertMod(ctx context.Context, mod *ModRecord) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO mods (
			id, title, description, image_path, jar_path, jar_checksum,
			downloads, popularity, views, favorites,
			author, category, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, $7, $8, $9)
	`,
		mod.ID,
		mod.Title,
		mod.Description,
		mod.ImagePath,
		mod.JarPath,
		mod.JarChecksum,
		mod.Author,
		mod.Category,
		mod.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mod: %w", err)
	}
	return nil
}

// InsertVersions tags a mod with versions. Pairs that already exist are
// skipped silently.
func (u *pgUploadTx) InsertVersions(ctx context.Context, modID string, versions []string) error {
	if len(versions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range versions {
		batch.Queue(`
			INSERT INTO mod_versions (mod_id, mc_version) VALUES ($1, $2)
			ON CONFLICT (mod_id, mc_version) DO NOTHING
		`, modID, v)
	}

	br := u.tx.SendBatch(ctx, batch)
	for range versions {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert mod version: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert mod versions: %w", err)
	}
	return nil
}

func (u *pgUploadTx) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}
	return nil
}

func (u *pgUploadTx) Rollback(ctx context.Context) error {
	return u.tx.Rollback(ctx)
}
