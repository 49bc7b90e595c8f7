package takestamp

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// RecomputeReport summarizes a RecomputeAll run.
type RecomputeReport struct {
	Albums   int
	Updated  int
	Duration time.Duration
}

// Drift is an album whose stored bounds disagree with its photos.
type Drift struct {
	AlbumID  uint   `json:"album_id" yaml:"album_id"`
	Stored   Bounds `json:"stored" yaml:"stored"`
	Expected Bounds `json:"expected" yaml:"expected"`
}

// RecomputeAll rebuilds every album's bounds from the photos in its whole
// subtree and persists them. Each album is computed independently, so the
// order albums are processed in does not matter. The cost is proportional to
// the number of albums times the average subtree size.
func (m *Maintainer) RecomputeAll(ctx context.Context) (RecomputeReport, error) {
	const op = "takestamp.recompute"

	started := time.Now()
	ids, err := m.store.AlbumIDs(ctx)
	if err != nil {
		return RecomputeReport{}, Wrap(CodeInternal, op, 0, err)
	}

	var updated atomic.Int64
	err = m.forEachAlbum(ctx, ids, func(ctx context.Context, id uint, stored, expected Bounds) error {
		if err := m.store.SaveBounds(ctx, id, expected); err != nil {
			return Wrap(CodePersistence, op, id, err)
		}
		if !stored.Equal(expected) {
			updated.Add(1)
			m.log.Info().
				Uint("album_id", id).
				Str("stored", stored.String()).
				Str("recomputed", expected.String()).
				Msg("album takestamps repaired")
		}
		return nil
	})
	report := RecomputeReport{
		Albums:   len(ids),
		Updated:  int(updated.Load()),
		Duration: time.Since(started),
	}
	if err != nil {
		return report, err
	}
	m.log.Info().
		Int("albums", report.Albums).
		Int("updated", report.Updated).
		Dur("took", report.Duration).
		Msg("takestamp recompute finished")
	return report, nil
}

// Verify computes what RecomputeAll would write without writing anything and
// returns the albums whose stored bounds differ, ordered by album id.
func (m *Maintainer) Verify(ctx context.Context) ([]Drift, error) {
	const op = "takestamp.verify"

	ids, err := m.store.AlbumIDs(ctx)
	if err != nil {
		return nil, Wrap(CodeInternal, op, 0, err)
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)
	err = m.forEachAlbum(ctx, ids, func(_ context.Context, id uint, stored, expected Bounds) error {
		if stored.Equal(expected) {
			return nil
		}
		mu.Lock()
		drifts = append(drifts, Drift{AlbumID: id, Stored: stored, Expected: expected})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(drifts, func(a, b Drift) int { return cmp.Compare(a.AlbumID, b.AlbumID) })
	return drifts, nil
}

// SubtreeBounds computes an album's bounds from every photo in its subtree.
func (m *Maintainer) SubtreeBounds(ctx context.Context, albumID uint) (Bounds, error) {
	const op = "takestamp.subtree"

	descendants, err := DescendantIDs(ctx, m.store, albumID)
	if err != nil {
		return Bounds{}, err
	}
	ids := append([]uint{albumID}, descendants...)
	b, err := m.store.PhotoBoundsIn(ctx, ids)
	if err != nil {
		return Bounds{}, Wrap(CodeInternal, op, albumID, err)
	}
	return b, nil
}

type albumVisit func(ctx context.Context, id uint, stored, expected Bounds) error

func (m *Maintainer) forEachAlbum(ctx context.Context, ids []uint, visit albumVisit) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, id := range ids {
		g.Go(func() error {
			expected, err := m.SubtreeBounds(gctx, id)
			if err != nil {
				return err
			}
			stored, err := m.store.AlbumBounds(gctx, id)
			if err != nil {
				return Wrap(CodeInternal, "takestamp.bounds", id, err)
			}
			return visit(gctx, id, stored, expected)
		})
	}
	return g.Wait()
}
