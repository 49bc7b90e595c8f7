package takestamp

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

// memStore is an in-memory Store. Each accessor takes the mutex on its own,
// so a WithAlbum read-modify-write is only atomic if the maintainer's album
// locks make it so.
type memStore struct {
	mu     sync.Mutex
	albums map[uint]*memAlbum
	photos map[string]*memPhoto

	failSave map[uint]error
	failLock map[uint]int
	saves    map[uint]int
	rescans  map[uint]int
}

type memAlbum struct {
	parent *uint
	bounds Bounds
}

type memPhoto struct {
	album *uint
	ts    *int64
}

func newMemStore() *memStore {
	return &memStore{
		albums:   make(map[uint]*memAlbum),
		photos:   make(map[string]*memPhoto),
		failSave: make(map[uint]error),
		failLock: make(map[uint]int),
		saves:    make(map[uint]int),
		rescans:  make(map[uint]int),
	}
}

type memTx struct {
	s     *memStore
	state AlbumState
}

func (s *memStore) WithAlbum(ctx context.Context, albumID uint, fn func(tx AlbumTx) error) error {
	if err := ctx.Err(); err != nil {
		return Wrap(CodeRetryable, "mem.with_album", albumID, err)
	}
	s.mu.Lock()
	if s.failLock[albumID] > 0 {
		s.failLock[albumID]--
		s.mu.Unlock()
		return NewError(CodeRetryable, "mem.with_album", albumID, "database is locked", nil)
	}
	a, ok := s.albums[albumID]
	if !ok {
		s.mu.Unlock()
		return NewError(CodeNotFound, "mem.with_album", albumID, "album not found", nil)
	}
	state := AlbumState{ID: albumID, ParentID: copyID(a.parent), Bounds: a.bounds}
	s.mu.Unlock()
	return fn(&memTx{s: s, state: state})
}

func (tx *memTx) Album() AlbumState { return tx.state }

func (tx *memTx) DirectPhotoBounds() (Bounds, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescans[tx.state.ID]++
	var stamps []*int64
	for _, p := range s.photos {
		if p.album != nil && *p.album == tx.state.ID {
			stamps = append(stamps, p.ts)
		}
	}
	return Reduce(stamps), nil
}

func (tx *memTx) ChildAlbumBounds() (Bounds, error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out Bounds
	for _, a := range s.albums {
		if a.parent != nil && *a.parent == tx.state.ID {
			out = out.Merge(a.bounds)
		}
	}
	return out, nil
}

func (tx *memTx) SaveBounds(b Bounds) error {
	return tx.s.SaveBounds(context.Background(), tx.state.ID, b)
}

func (s *memStore) AlbumIDs(_ context.Context) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.albums))
	for id := range s.albums {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) ChildIDs(_ context.Context, albumID uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, a := range s.albums {
		if a.parent != nil && *a.parent == albumID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) AlbumBounds(_ context.Context, albumID uint) (Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.albums[albumID]
	if !ok {
		return Bounds{}, NewError(CodeNotFound, "mem.bounds", albumID, "album not found", nil)
	}
	return a.bounds, nil
}

func (s *memStore) PhotoBoundsIn(_ context.Context, albumIDs []uint) (Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stamps []*int64
	for _, p := range s.photos {
		if p.album != nil && slices.Contains(albumIDs, *p.album) {
			stamps = append(stamps, p.ts)
		}
	}
	return Reduce(stamps), nil
}

func (s *memStore) SaveBounds(_ context.Context, albumID uint, b Bounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSave[albumID]; err != nil {
		return err
	}
	a, ok := s.albums[albumID]
	if !ok {
		return errors.New("album vanished")
	}
	a.bounds = Bounds{Min: copyStamp(b.Min), Max: copyStamp(b.Max)}
	s.saves[albumID]++
	return nil
}

// test-side mutation helpers; these play the role of the gallery service

func (s *memStore) addAlbum(id uint, parent *uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums[id] = &memAlbum{parent: copyID(parent)}
}

func (s *memStore) putPhoto(id string, album *uint, ts *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[id] = &memPhoto{album: copyID(album), ts: copyStamp(ts)}
}

func (s *memStore) dropPhoto(id string) memPhoto {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.photos[id]
	delete(s.photos, id)
	return *p
}

func (s *memStore) setParent(id uint, parent *uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums[id].parent = copyID(parent)
}

func (s *memStore) stored(id uint) Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.albums[id].bounds
}

func (s *memStore) totalSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.saves {
		n += c
	}
	return n
}

func (s *memStore) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = make(map[uint]int)
	s.rescans = make(map[uint]int)
}

// truth computes an album's bounds by brute force over its subtree.
func (s *memStore) truth(id uint) Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	inSubtree := func(album uint) bool {
		for cur := &album; cur != nil; {
			if *cur == id {
				return true
			}
			a, ok := s.albums[*cur]
			if !ok {
				return false
			}
			cur = a.parent
		}
		return false
	}
	var stamps []*int64
	for _, p := range s.photos {
		if p.album != nil && inSubtree(*p.album) {
			stamps = append(stamps, p.ts)
		}
	}
	return Reduce(stamps)
}

func (s *memStore) assertConsistent(t *testing.T) {
	t.Helper()
	ids, _ := s.AlbumIDs(context.Background())
	for _, id := range ids {
		if got, want := s.stored(id), s.truth(id); !got.Equal(want) {
			t.Fatalf("album %d bounds: want=%s got=%s", id, want, got)
		}
	}
}

type fixture struct {
	Albums []struct {
		ID     uint  `yaml:"id"`
		Parent *uint `yaml:"parent"`
	} `yaml:"albums"`
	Photos []struct {
		ID        string `yaml:"id"`
		Album     *uint  `yaml:"album"`
		Takestamp *int64 `yaml:"takestamp"`
	} `yaml:"photos"`
}

// loadFixture seeds a store from testdata and sets every album's bounds to
// their true values.
func loadFixture(t *testing.T, name string) *memStore {
	t.Helper()
	raw, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("decode fixture %s: %v", name, err)
	}
	s := newMemStore()
	for _, a := range fx.Albums {
		s.addAlbum(a.ID, a.Parent)
	}
	for _, p := range fx.Photos {
		s.putPhoto(p.ID, p.Album, p.Takestamp)
	}
	for id, a := range s.albums {
		a.bounds = s.truth(id)
	}
	return s
}

func copyID(v *uint) *uint {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func idPtr(v uint) *uint { return &v }

func ts(v int64) *int64 { return &v }
