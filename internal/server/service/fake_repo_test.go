package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"modrepo/internal/server/database"
)

// fakeRepo is an in-memory Repository. Uploads become visible on commit.
type fakeRepo struct {
	mu       sync.Mutex
	mods     map[string]*database.ModRecord
	versions map[string][]string
	nextID   int

	failInsertMod error
	failIncrement error
	failChecksum  error
	lastTx        *fakeTx
	downloadCalls int
	rankingTopN   int
	ranking       map[string][]database.RankedMod
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		mods:     make(map[string]*database.ModRecord),
		versions: make(map[string][]string),
	}
}

func (r *fakeRepo) add(rec *database.ModRecord, versions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mods[rec.ID] = rec
	r.versions[rec.ID] = versions
}

func (r *fakeRepo) Ping(context.Context) error { return nil }

func (r *fakeRepo) ListWithVersions(context.Context) ([]*database.ModRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.ModRecord
	for _, m := range r.mods {
		cp := *m
		cp.Versions = append([]string{}, r.versions[m.ID]...)
		sort.Strings(cp.Versions)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*database.ModRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mods[id]
	if !ok {
		return nil, database.ErrModNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeRepo) VersionsFor(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string{}, r.versions[id]...)
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) FindByChecksum(_ context.Context, sum string) (*database.ModRecord, error) {
	if r.failChecksum != nil {
		return nil, r.failChecksum
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mods {
		if m.JarChecksum != nil && *m.JarChecksum == sum {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) bump(id string, fn func(m *database.ModRecord)) error {
	if r.failIncrement != nil {
		return r.failIncrement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mods[id]; ok {
		fn(m)
	}
	return nil
}

func (r *fakeRepo) IncrementDownloads(_ context.Context, id string) error {
	r.mu.Lock()
	r.downloadCalls++
	r.mu.Unlock()
	return r.bump(id, func(m *database.ModRecord) { m.Downloads++ })
}

func (r *fakeRepo) IncrementViews(_ context.Context, id string) error {
	return r.bump(id, func(m *database.ModRecord) { m.Views++ })
}

func (r *fakeRepo) IncrementFavorites(_ context.Context, id string) error {
	return r.bump(id, func(m *database.ModRecord) { m.Favorites++ })
}

func (r *fakeRepo) DecrementFavorites(_ context.Context, id string) error {
	return r.bump(id, func(m *database.ModRecord) { m.Favorites = max(m.Favorites-1, 0) })
}

func (r *fakeRepo) StatsTop(context.Context) (*database.TopStats, error) {
	return &database.TopStats{
		MostDownloaded: []database.RankedMod{{Title: "A", Downloads: 9}},
		DownloadsTotal: 9,
	}, nil
}

func (r *fakeRepo) StatsSummary(context.Context) (*database.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &database.Summary{Mods: int64(len(r.mods))}
	for _, m := range r.mods {
		s.Downloads += m.Downloads
		s.Views += m.Views
		s.Favorites += m.Favorites
	}
	return s, nil
}

func (r *fakeRepo) TopModsPerVersion(_ context.Context, topN int) (map[string][]database.RankedMod, error) {
	r.rankingTopN = topN
	return r.ranking, nil
}

func (r *fakeRepo) BeginUpload(context.Context) (database.UploadTx, error) {
	r.lastTx = &fakeTx{repo: r}
	return r.lastTx, nil
}

type fakeTx struct {
	repo       *fakeRepo
	mod        *database.ModRecord
	versions   []string
	committed  bool
	rolledBack bool
}

func (t *fakeTx) NextID(context.Context) (string, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	return strconv.Itoa(t.repo.nextID), nil
}

func (t *fakeTx) InsertMod(_ context.Context, m *database.ModRecord) error {
	if t.repo.failInsertMod != nil {
		return t.repo.failInsertMod
	}
	t.mod = m
	return nil
}

func (t *fakeTx) InsertVersions(_ context.Context, _ string, versions []string) error {
	t.versions = append(t.versions, versions...)
	return nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.rolledBack {
		return errors.New("tx closed")
	}
	t.committed = true
	t.repo.add(t.mod, t.versions...)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return errors.New("tx closed")
	}
	t.rolledBack = true
	return nil
}
