package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrModNotFound = errors.New("mod not found")
)

const modColumns = `id, title, description, image_path, jar_path, jar_checksum,
	downloads, popularity, views, favorites, author, category, last_updated`

// Repository provides the catalog's persistence operations.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping verifies the underlying database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// ListWithVersions returns every mod ordered by numeric id, each carrying
// its compatible versions in ascending string order.
func (r *Repository) ListWithVersions(ctx context.Context) ([]*ModRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+modColumns+`
		FROM mods
		ORDER BY CAST(id AS BIGINT)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mods: %w", err)
	}
	defer rows.Close()

	var mods []*ModRecord
	for rows.Next() {
		mod, err := scanMod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mod: %w", err)
		}
		mods = append(mods, mod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mods: %w", err)
	}

	versions, err := r.queryVersions(ctx, `
		SELECT mod_id, mc_version FROM mod_versions
		ORDER BY mc_version COLLATE "C"
	`)
	if err != nil {
		return nil, err
	}

	attachVersions(mods, groupVersions(versions))
	return mods, nil
}

// GetByID retrieves a single mod record.
func (r *Repository) GetByID(ctx context.Context, id string) (*ModRecord, error) {
	mod, err := scanMod(r.db.Pool.QueryRow(ctx,
		"SELECT "+modColumns+" FROM mods WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModNotFound
		}
		return nil, fmt.Errorf("failed to get mod: %w", err)
	}
	return mod, nil
}

// VersionsFor returns the versions a mod is tagged with, ascending.
func (r *Repository) VersionsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := r.queryVersions(ctx, `
		SELECT mod_id, mc_version FROM mod_versions
		WHERE mod_id = $1
		ORDER BY mc_version COLLATE "C"
	`, id)
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, row.Version)
	}
	return versions, nil
}

// FindByChecksum returns a mod whose artifact has the given checksum, or
// nil when there is none.
func (r *Repository) FindByChecksum(ctx context.Context, checksum string) (*ModRecord, error) {
	mod, err := scanMod(r.db.Pool.QueryRow(ctx,
		"SELECT "+modColumns+" FROM mods WHERE jar_checksum = $1 ORDER BY CAST(id AS BIGINT) LIMIT 1",
		checksum))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query by checksum: %w", err)
	}
	return mod, nil
}

// IncrementDownloads atomically adds one download. Unknown ids are a no-op.
func (r *Repository) IncrementDownloads(ctx context.Context, id string) error {
	return r.exec(ctx, "increment downloads",
		"UPDATE mods SET downloads = downloads + 1 WHERE id = $1", id)
}

// IncrementViews atomically adds one view. Unknown ids are a no-op.
func (r *Repository) IncrementViews(ctx context.Context, id string) error {
	return r.exec(ctx, "increment views",
		"UPDATE mods SET views = views + 1 WHERE id = $1", id)
}

// IncrementFavorites atomically adds one favorite. Unknown ids are a no-op.
func (r *Repository) IncrementFavorites(ctx context.Context, id string) error {
	return r.exec(ctx, "increment favorites",
		"UPDATE mods SET favorites = favorites + 1 WHERE id = $1", id)
}

// DecrementFavorites atomically removes one favorite, never going below zero.
func (r *Repository) DecrementFavorites(ctx context.Context, id string) error {
	return r.exec(ctx, "decrement favorites",
		"UPDATE mods SET favorites = GREATEST(favorites - 1, 0) WHERE id = $1", id)
}

// StatsTop returns the ten most downloaded mods (ties by ascending numeric
// id) and the download total across all mods.
func (r *Repository) StatsTop(ctx context.Context) (*TopStats, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT title, downloads
		FROM mods
		ORDER BY downloads DESC, CAST(id AS BIGINT) ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top mods: %w", err)
	}
	defer rows.Close()

	stats := &TopStats{MostDownloaded: []RankedMod{}}
	for rows.Next() {
		var m RankedMod
		if err := rows.Scan(&m.Title, &m.Downloads); err != nil {
			return nil, fmt.Errorf("failed to scan top mod: %w", err)
		}
		stats.MostDownloaded = append(stats.MostDownloaded, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top mods: %w", err)
	}

	err = r.db.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(downloads), 0)::BIGINT FROM mods").Scan(&stats.DownloadsTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to sum downloads: %w", err)
	}
	return stats, nil
}

// StatsSummary returns the mod count and counter totals. An empty catalog
// yields all zeros.
func (r *Repository) StatsSummary(ctx context.Context) (*Summary, error) {
	s := &Summary{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(downloads), 0)::BIGINT,
			COALESCE(SUM(views), 0)::BIGINT,
			COALESCE(SUM(favorites), 0)::BIGINT
		FROM mods
	`).Scan(&s.Mods, &s.Downloads, &s.Views, &s.Favorites)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return s, nil
}

// TopModsPerVersion returns, for every version, its topN mods by downloads.
func (r *Repository) TopModsPerVersion(ctx context.Context, topN int) (map[string][]RankedMod, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT mv.mc_version, m.title, m.downloads
		FROM mods m
		JOIN mod_versions mv ON mv.mod_id = m.id
		ORDER BY mv.mc_version COLLATE "C" ASC, m.downloads DESC, CAST(m.id AS BIGINT) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mods per version: %w", err)
	}
	defer rows.Close()

	var ranked []versionRanking
	for rows.Next() {
		var vr versionRanking
		if err := rows.Scan(&vr.Version, &vr.Title, &vr.Downloads); err != nil {
			return nil, fmt.Errorf("failed to scan version ranking: %w", err)
		}
		ranked = append(ranked, vr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version ranking: %w", err)
	}

	return topPerVersion(ranked, topN), nil
}

// StoredPaths returns every file path referenced by a mod row.
func (r *Repository) StoredPaths(ctx context.Context) (*StoredPaths, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT jar_path, image_path FROM mods")
	if err != nil {
		return nil, fmt.Errorf("failed to query stored paths: %w", err)
	}
	defer rows.Close()

	paths := &StoredPaths{}
	for rows.Next() {
		var jar, image *string
		if err := rows.Scan(&jar, &image); err != nil {
			return nil, fmt.Errorf("failed to scan stored paths: %w", err)
		}
		if jar != nil {
			paths.JarPaths = append(paths.JarPaths, *jar)
		}
		if image != nil {
			paths.ImagePaths = append(paths.ImagePaths, *image)
		}
	}
	return paths, rows.Err()
}

func (r *Repository) exec(ctx context.Context, op, sql string, args ...any) error {
	if _, err := r.db.Pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (r *Repository) queryVersions(ctx context.Context, sql string, args ...any) ([]versionRow, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mod versions: %w", err)
	}
	defer rows.Close()

	var out []versionRow
	for rows.Next() {
		var v versionRow
		if err := rows.Scan(&v.ModID, &v.Version); err != nil {
			return nil, fmt.Errorf("failed to scan mod version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mod versions: %w", err)
	}
	return out, nil
}

func scanMod(row pgx.Row) (*ModRecord, error) {
	m := &ModRecord{}
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.ImagePath,
		&m.JarPath,
		&m.JarChecksum,
		&m.Downloads,
		&m.Popularity,
		&m.Views,
		&m.Favorites,
		&m.Author,
		&m.Category,
		&m.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
