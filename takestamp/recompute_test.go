package takestamp

import (
	"context"
	"errors"
	"testing"
)

func corrupt(s *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.albums {
		switch id % 3 {
		case 0:
			a.bounds = Bounds{}
		case 1:
			a.bounds = Bounds{Min: ts(-1), Max: ts(99999)}
		}
	}
}

func TestRecomputeAllRepairs(t *testing.T) {
	s := loadFixture(t, "mixed.yaml")
	corrupt(s)
	m := NewMaintainer(s, WithWorkers(2))

	report, err := m.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if report.Albums != 6 {
		t.Fatalf("albums: want=6 got=%d", report.Albums)
	}
	if report.Updated == 0 {
		t.Fatalf("expected repairs after corruption")
	}
	s.assertConsistent(t)

	cases := []struct {
		id   uint
		want Bounds
	}{
		{1, Bounds{Min: ts(400), Max: ts(2500)}},
		{2, Bounds{Min: ts(1000), Max: ts(1000)}},
		{3, Bounds{Min: ts(400), Max: ts(2500)}},
		{4, Bounds{Min: ts(400), Max: ts(2500)}},
		{5, Bounds{}},
		{6, Bounds{}},
	}
	for _, c := range cases {
		if got := s.stored(c.id); !got.Equal(c.want) {
			t.Fatalf("album %d: want=%s got=%s", c.id, c.want, got)
		}
	}
}

func TestRecomputeAllIdempotent(t *testing.T) {
	s := loadFixture(t, "mixed.yaml")
	corrupt(s)
	m := NewMaintainer(s)
	ctx := context.Background()

	if _, err := m.RecomputeAll(ctx); err != nil {
		t.Fatalf("first RecomputeAll: %v", err)
	}
	before := map[uint]Bounds{}
	for id := range s.albums {
		before[id] = s.stored(id)
	}
	report, err := m.RecomputeAll(ctx)
	if err != nil {
		t.Fatalf("second RecomputeAll: %v", err)
	}
	if report.Updated != 0 {
		t.Fatalf("second run updated %d albums", report.Updated)
	}
	for id, b := range before {
		if got := s.stored(id); !got.Equal(b) {
			t.Fatalf("album %d changed: before=%s after=%s", id, b, got)
		}
	}
}

func TestRecomputeAllPersistenceFailure(t *testing.T) {
	s := loadFixture(t, "mixed.yaml")
	s.failSave[4] = errors.New("read-only")
	m := NewMaintainer(s)

	_, err := m.RecomputeAll(context.Background())
	if !IsCode(err, CodePersistence) {
		t.Fatalf("expected persistence, got %q (%v)", CodeOf(err), err)
	}
}

func TestVerifyReportsDrift(t *testing.T) {
	s := loadFixture(t, "mixed.yaml")
	s.albums[3].bounds = Bounds{Min: ts(900), Max: ts(900)}
	m := NewMaintainer(s)

	drifts, err := m.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(drifts) != 1 || drifts[0].AlbumID != 3 {
		t.Fatalf("drifts: %+v", drifts)
	}
	if want := (Bounds{Min: ts(400), Max: ts(2500)}); !drifts[0].Expected.Equal(want) {
		t.Fatalf("expected: want=%s got=%s", want, drifts[0].Expected)
	}
	if n := s.totalSaves(); n != 0 {
		t.Fatalf("Verify must not write, saves=%d", n)
	}
}

func TestDescendantIDs(t *testing.T) {
	s := loadFixture(t, "mixed.yaml")
	got, err := DescendantIDs(context.Background(), s, 1)
	if err != nil {
		t.Fatalf("DescendantIDs: %v", err)
	}
	want := []uint{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("descendants: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("descendants: want=%v got=%v", want, got)
		}
	}
}

func TestDescendantIDsCycle(t *testing.T) {
	s := newMemStore()
	s.addAlbum(1, idPtr(2))
	s.addAlbum(2, idPtr(1))

	_, err := DescendantIDs(context.Background(), s, 1)
	if !IsCode(err, CodeStructural) {
		t.Fatalf("expected structural, got %q (%v)", CodeOf(err), err)
	}
}
