package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modrepo/internal/server/config"
	"modrepo/internal/server/database"
	"modrepo/internal/server/storage"
)

func strPtr(s string) *string { return &s }

type fixture struct {
	svc   *CatalogService
	repo  *fakeRepo
	store *storage.FileSystemStore
}

func newFixture(t *testing.T, maxSize int64) *fixture {
	t.Helper()
	store, err := storage.NewFileSystemStore(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	require.NoError(t, store.EnsureDirs())

	repo := newFakeRepo()
	svc := NewCatalogService(repo, store, &config.Config{MaxFileSize: maxSize})
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC) }
	return &fixture{svc: svc, repo: repo, store: store}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCatalogService_List(t *testing.T) {
	f := newFixture(t, 0)
	f.repo.add(&database.ModRecord{ID: "10", Title: "Ten"}, "1.20")
	f.repo.add(&database.ModRecord{ID: "2", Title: "Two"})

	mods, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 2)

	assert.Equal(t, "2", mods[0].ID)
	assert.Equal(t, "10", mods[1].ID)
	assert.Equal(t, []string{}, mods[0].MinecraftVersions)
	assert.Equal(t, []string{"1.20"}, mods[1].MinecraftVersions)
}

func TestCatalogService_Get(t *testing.T) {
	f := newFixture(t, 0)
	f.repo.add(&database.ModRecord{ID: "1", Title: "Sodium"}, "1.20", "1.19")

	mod, err := f.svc.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Sodium", mod.Title)
	assert.Equal(t, []string{"1.19", "1.20"}, mod.MinecraftVersions)

	_, err = f.svc.Get(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogService_Download(t *testing.T) {
	t.Run("streams root-relative artifact and counts it", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, os.WriteFile(filepath.Join(f.store.Root(), "foo.jar"), []byte("jar bytes"), 0644))
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("foo.jar")})

		file, err := f.svc.Download(context.Background(), "1")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "foo.jar", file.Filename)
		assert.Equal(t, int64(9), file.Size)
		body, err := io.ReadAll(file.File)
		require.NoError(t, err)
		assert.Equal(t, "jar bytes", string(body))

		mod, _ := f.repo.GetByID(context.Background(), "1")
		assert.Equal(t, int64(1), mod.Downloads)
	})

	t.Run("parent-relative artifact", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, os.WriteFile(filepath.Join(f.store.ImagesRoot(), "x.jar"), []byte("x"), 0644))
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("/images/x.jar")})

		file, err := f.svc.Download(context.Background(), "1")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "x.jar", file.Filename)
	})

	t.Run("missing file is not found and not counted", func(t *testing.T) {
		f := newFixture(t, 0)
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("gone.jar")})

		_, err := f.svc.Download(context.Background(), "1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.repo.downloadCalls)
	})

	t.Run("directory is not served", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, os.Mkdir(filepath.Join(f.store.Root(), "dir.jar"), 0755))
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("dir.jar")})

		_, err := f.svc.Download(context.Background(), "1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.repo.downloadCalls)
	})

	t.Run("no artifact recorded", func(t *testing.T) {
		f := newFixture(t, 0)
		f.repo.add(&database.ModRecord{ID: "1"})
		f.repo.add(&database.ModRecord{ID: "2", JarPath: strPtr("  ")})

		_, err := f.svc.Download(context.Background(), "1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.svc.Download(context.Background(), "2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("escaping path is not found", func(t *testing.T) {
		f := newFixture(t, 0)
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("/../../etc/passwd")})

		_, err := f.svc.Download(context.Background(), "1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown mod", func(t *testing.T) {
		f := newFixture(t, 0)
		_, err := f.svc.Download(context.Background(), "7")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("counter failure does not fail the download", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, os.WriteFile(filepath.Join(f.store.Root(), "foo.jar"), []byte("x"), 0644))
		f.repo.add(&database.ModRecord{ID: "1", JarPath: strPtr("foo.jar")})
		f.repo.failIncrement = errors.New("db down")

		file, err := f.svc.Download(context.Background(), "1")
		require.NoError(t, err)
		file.Close()
	})
}

func TestCatalogService_Image(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, os.WriteFile(filepath.Join(f.store.ImagesRoot(), "logo.png"), []byte("png"), 0644))

	file, err := f.svc.Image("../files/../logo.png")
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, "logo.png", file.Filename)

	_, err = f.svc.Image("missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Image("..")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogService_Counters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.repo.add(&database.ModRecord{ID: "1"})

	require.NoError(t, f.svc.RecordView(ctx, "1"))
	require.NoError(t, f.svc.SetFavorite(ctx, "1", true))
	require.NoError(t, f.svc.SetFavorite(ctx, "1", true))
	require.NoError(t, f.svc.SetFavorite(ctx, "1", false))

	mod, _ := f.repo.GetByID(ctx, "1")
	assert.Equal(t, int64(1), mod.Views)
	assert.Equal(t, int64(1), mod.Favorites)

	require.NoError(t, f.svc.SetFavorite(ctx, "1", false))
	require.NoError(t, f.svc.SetFavorite(ctx, "1", false))
	mod, _ = f.repo.GetByID(ctx, "1")
	assert.Zero(t, mod.Favorites)

	// unknown ids are silently ignored
	assert.NoError(t, f.svc.RecordView(ctx, "99"))
	assert.NoError(t, f.svc.SetFavorite(ctx, "99", true))
}

func TestCatalogService_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.repo.add(&database.ModRecord{ID: "1", Downloads: 3, Views: 2, Favorites: 1})
	f.repo.add(&database.ModRecord{ID: "2", Downloads: 4})

	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Mods: 2, Downloads: 7, Views: 2, Favorites: 1}, sum)

	top, err := f.svc.TopStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), top.DownloadsTotal)
	assert.Equal(t, []RankedMod{{Title: "A", Downloads: 9}}, top.MostDownloaded)
}

func TestCatalogService_TopByVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.repo.ranking = map[string][]database.RankedMod{
		"1.20": {{Title: "B", Downloads: 5}, {Title: "A", Downloads: 2}},
	}

	tests := []struct {
		requested int
		want      int
	}{
		{0, 1},
		{-3, 1},
		{5, 5},
		{50, 10},
	}
	for _, tt := range tests {
		out, err := f.svc.TopByVersion(ctx, tt.requested)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.repo.rankingTopN, "requested %d", tt.requested)
		assert.Equal(t, []RankedMod{{Title: "B", Downloads: 5}, {Title: "A", Downloads: 2}}, out["1.20"])
	}
}

func TestCatalogService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores files and commits", func(t *testing.T) {
		f := newFixture(t, 0)

		res, err := f.svc.Upload(ctx, UploadRequest{
			Title:       "Sodium",
			Author:      "jelly",
			Category:    "performance",
			Description: "fast",
			Versions:    "1.19, 1.20;1.21",
			Artifact:    &UploadFile{Name: "sodium.jar", Size: 3, Content: strings.NewReader("jar")},
			Image:       &UploadFile{Name: "logo.png", Size: 3, Content: strings.NewReader("png")},
		})
		require.NoError(t, err)
		assert.Equal(t, &UploadResult{Status: "ok", ID: "1"}, res)
		assert.True(t, f.repo.lastTx.committed)

		mod, err := f.svc.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "Sodium", mod.Title)
		assert.Equal(t, "jelly", mod.Author)
		assert.Equal(t, []string{"1.19", "1.20", "1.21"}, mod.MinecraftVersions)
		require.NotNil(t, mod.LastUpdated)
		assert.Equal(t, "2024-03-09", *mod.LastUpdated)
		require.NotNil(t, mod.JarPath)
		assert.True(t, strings.HasSuffix(*mod.JarPath, "_sodium.jar"))
		require.NotNil(t, mod.ImageURL)
		assert.True(t, strings.HasPrefix(*mod.ImageURL, "/api/images/"))
		require.NotNil(t, mod.Checksum)
		assert.Len(t, *mod.Checksum, 64)
		assert.Zero(t, mod.Downloads)

		assert.Len(t, listDir(t, f.store.Root()), 1)
		assert.Len(t, listDir(t, f.store.ImagesRoot()), 1)
	})

	t.Run("ids are sequential", func(t *testing.T) {
		f := newFixture(t, 0)
		for _, want := range []string{"1", "2"} {
			res, err := f.svc.Upload(ctx, UploadRequest{
				Title:    "m",
				Artifact: &UploadFile{Name: "m.jar", Size: -1, Content: strings.NewReader(want)},
			})
			require.NoError(t, err)
			assert.Equal(t, want, res.ID)
		}
	})

	t.Run("no versions and no image", func(t *testing.T) {
		f := newFixture(t, 0)
		res, err := f.svc.Upload(ctx, UploadRequest{
			Title:    "bare",
			Artifact: &UploadFile{Name: "bare.jar", Size: 1, Content: strings.NewReader("b")},
		})
		require.NoError(t, err)

		mod, err := f.svc.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Empty(t, mod.MinecraftVersions)
		assert.Nil(t, mod.ImageURL)
	})

	t.Run("artifact required", func(t *testing.T) {
		f := newFixture(t, 0)
		_, err := f.svc.Upload(ctx, UploadRequest{Title: "x"})
		assert.ErrorIs(t, err, ErrArtifactRequired)
		assert.Nil(t, f.repo.lastTx)
	})

	t.Run("declared size over the limit", func(t *testing.T) {
		f := newFixture(t, 4)
		_, err := f.svc.Upload(ctx, UploadRequest{
			Artifact: &UploadFile{Name: "big.jar", Size: 5, Content: strings.NewReader("12345")},
		})
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Empty(t, listDir(t, f.store.Root()))
	})

	t.Run("streamed size over the limit rolls back", func(t *testing.T) {
		f := newFixture(t, 4)
		_, err := f.svc.Upload(ctx, UploadRequest{
			Artifact: &UploadFile{Name: "big.jar", Size: -1, Content: strings.NewReader("123456789")},
		})
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.True(t, f.repo.lastTx.rolledBack)
		assert.Empty(t, listDir(t, f.store.Root()))
	})

	t.Run("image failure removes artifact", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, os.Remove(f.store.ImagesRoot()))
		require.NoError(t, os.WriteFile(f.store.ImagesRoot(), []byte("not a dir"), 0644))

		_, err := f.svc.Upload(ctx, UploadRequest{
			Title:    "broken",
			Versions: "1.20",
			Artifact: &UploadFile{Name: "a.jar", Size: 1, Content: strings.NewReader("a")},
			Image:    &UploadFile{Name: "a.png", Size: 1, Content: strings.NewReader("p")},
		})
		require.Error(t, err)
		assert.True(t, f.repo.lastTx.rolledBack)
		assert.False(t, f.repo.lastTx.committed)
		assert.Empty(t, listDir(t, f.store.Root()))

		mods, err := f.svc.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, mods)
	})

	t.Run("insert failure removes files", func(t *testing.T) {
		f := newFixture(t, 0)
		f.repo.failInsertMod = errors.New("constraint violated")

		_, err := f.svc.Upload(ctx, UploadRequest{
			Artifact: &UploadFile{Name: "a.jar", Size: 1, Content: strings.NewReader("a")},
			Image:    &UploadFile{Name: "a.png", Size: 1, Content: strings.NewReader("p")},
		})
		require.Error(t, err)
		assert.True(t, f.repo.lastTx.rolledBack)
		assert.Empty(t, listDir(t, f.store.Root()))
		assert.Empty(t, listDir(t, f.store.ImagesRoot()))
	})

	t.Run("duplicate checksum is accepted", func(t *testing.T) {
		f := newFixture(t, 0)
		for range 2 {
			_, err := f.svc.Upload(ctx, UploadRequest{
				Artifact: &UploadFile{Name: "same.jar", Size: 4, Content: strings.NewReader("same")},
			})
			require.NoError(t, err)
		}
		mods, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, mods, 2)
		assert.Equal(t, *mods[0].Checksum, *mods[1].Checksum)
	})
	t.Run("checksum lookup failure is logged and ignored", func(t *testing.T) {
		var logs bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
		t.Cleanup(func() { slog.SetDefault(prev) })

		f := newFixture(t, 0)
		f.repo.failChecksum = errors.New("connection reset")

		res, err := f.svc.Upload(ctx, UploadRequest{
			Artifact: &UploadFile{Name: "a.jar", Size: 1, Content: strings.NewReader("a")},
		})
		require.NoError(t, err)
		assert.Equal(t, "1", res.ID)
		assert.True(t, f.repo.lastTx.committed)
		assert.Contains(t, logs.String(), "level=WARN")
		assert.Contains(t, logs.String(), "connection reset")
	})
}
