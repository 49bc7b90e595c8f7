// Package takestamp keeps every album's min/max photo takestamp consistent
// with the photos nested anywhere beneath it.
//
// Content changes are applied incrementally with ApplyChange, which touches
// only the album whose direct content changed and the ancestors whose bounds
// actually move. RecomputeAll rebuilds every album from scratch and is meant
// for migrations and operator repair, never for the request path.
package takestamp

import (
	"context"
	"errors"
	"runtime"

	"github.com/rs/zerolog"
)

// Maintainer applies content changes to album aggregates. It is safe for
// concurrent use. RecomputeAll must not run while incremental updates are
// in flight on the same albums; callers are expected to serialize the two
// (a maintenance window or an external lock).
type Maintainer struct {
	store   Store
	locks   *albumLocks
	log     zerolog.Logger
	workers int
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithLogger sets the logger used for propagation and repair events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Maintainer) { m.log = l }
}

// WithWorkers bounds how many albums RecomputeAll and Verify process at once.
func WithWorkers(n int) Option {
	return func(m *Maintainer) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewMaintainer creates a maintainer over store. By default RecomputeAll uses
// one worker per CPU.
func NewMaintainer(store Store, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:   store,
		locks:   newAlbumLocks(),
		log:     zerolog.Nop(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type levelResult struct {
	parentID  *uint
	changed   bool
	saveError error
}

// ApplyChange records that photos (or a sub-album's aggregate) carrying the
// given takestamps were added to or removed from albumID, and walks up the
// parent chain for as long as bounds keep moving.
//
// Nil takestamps are ignored; an empty or all-nil delta is a successful no-op.
// A nil return means every write along the chain succeeded. Failed writes are
// reported with CodePersistence but do not stop the walk, and writes already
// made are never rolled back. Structural problems abort the walk. A retryable
// failure before any other error stops the walk with a resumable error; see
// ResumeAt.
func (m *Maintainer) ApplyChange(ctx context.Context, albumID uint, stamps []*int64, adding bool) error {
	const op = "takestamp.apply"

	delta := Reduce(stamps)
	if delta.Empty() {
		return nil
	}

	var errs []error
	visited := make(map[uint]struct{})
	current := albumID
	for depth := 0; ; depth++ {
		if _, dup := visited[current]; dup {
			errs = append(errs, structuralError(op, albumID, "parent chain loops back to album %d", current))
			return joinErrors(errs)
		}
		visited[current] = struct{}{}

		res, err := m.applyLevel(ctx, current, delta, adding)
		if err != nil {
			if depth > 0 && IsCode(err, CodeNotFound) {
				err = NewError(CodeStructural, op, current, "parent album is missing", err)
			}
			if res.saveError == nil {
				if len(errs) == 0 && IsCode(err, CodeRetryable) && !IsCode(err, CodeStructural) {
					return &Error{
						Code:      CodeRetryable,
						Op:        op,
						AlbumID:   current,
						Message:   "walk interrupted",
						Cause:     err,
						Resumable: true,
					}
				}
				errs = append(errs, err)
				return joinErrors(errs)
			}
			errs = append(errs, err)
		}
		if !res.changed || res.parentID == nil {
			break
		}
		current = *res.parentID
	}
	return joinErrors(errs)
}

// applyLevel performs the read-modify-write for one album under its lock.
// A non-nil saveError in the result means the new bounds were computed but
// could not be persisted; the walk may still continue to the parent.
func (m *Maintainer) applyLevel(ctx context.Context, albumID uint, delta Bounds, adding bool) (levelResult, error) {
	const op = "takestamp.apply"

	var res levelResult
	unlock, err := m.locks.acquire(ctx, albumID)
	if err != nil {
		return res, Wrap(CodeRetryable, op, albumID, err)
	}
	defer unlock()

	var next Bounds
	err = m.store.WithAlbum(ctx, albumID, func(tx AlbumTx) error {
		state := tx.Album()
		res.parentID = state.ParentID

		var err error
		if adding {
			next = widen(state.Bounds, delta)
		} else {
			next, err = shrink(tx, state.Bounds, delta)
			if err != nil {
				return Wrap(CodeInternal, op, albumID, err)
			}
		}
		if next.Equal(state.Bounds) {
			return nil
		}
		res.changed = true
		if err := tx.SaveBounds(next); err != nil {
			res.saveError = persistenceError(op, albumID, err)
			return res.saveError
		}
		return nil
	})
	if err != nil {
		if res.changed && res.saveError == nil {
			// the callback finished but the commit did not
			res.saveError = persistenceError(op, albumID, err)
			return res, res.saveError
		}
		return res, Wrap(CodeInternal, op, albumID, err)
	}

	if res.changed {
		m.log.Debug().
			Uint("album_id", albumID).
			Bool("adding", adding).
			Str("delta", delta.String()).
			Str("bounds", next.String()).
			Msg("album takestamps updated")
	}
	return res, nil
}

// widen extends cur so that it covers delta. Unset bounds are always replaced.
func widen(cur, delta Bounds) Bounds {
	next := Bounds{Min: copyStamp(cur.Min), Max: copyStamp(cur.Max)}
	if cur.Min == nil || *delta.Min < *cur.Min {
		next.Min = copyStamp(delta.Min)
	}
	if cur.Max == nil || *delta.Max > *cur.Max {
		next.Max = copyStamp(delta.Max)
	}
	return next
}

// shrink handles removal. A bound only needs recomputing when the removed
// range touched it exactly; the recomputation looks at direct photos and the
// already-correct bounds of direct child albums, never deeper.
func shrink(tx AlbumTx, cur, delta Bounds) (Bounds, error) {
	next := Bounds{Min: copyStamp(cur.Min), Max: copyStamp(cur.Max)}
	rescanMin := cur.Min != nil && *cur.Min == *delta.Min
	rescanMax := cur.Max != nil && *cur.Max == *delta.Max
	if !rescanMin && !rescanMax {
		return next, nil
	}

	photos, err := tx.DirectPhotoBounds()
	if err != nil {
		return Bounds{}, err
	}
	children, err := tx.ChildAlbumBounds()
	if err != nil {
		return Bounds{}, err
	}
	fresh := photos.Merge(children)
	if rescanMin {
		next.Min = fresh.Min
	}
	if rescanMax {
		next.Max = fresh.Max
	}
	return next, nil
}

// persistenceError keeps the cause reachable but always codes the failure as
// a lost write, even when the driver called it retryable.
func persistenceError(op string, albumID uint, err error) error {
	var coded *Error
	if errors.As(err, &coded) && coded.Code == CodePersistence {
		return err
	}
	return NewError(CodePersistence, op, albumID, err.Error(), err)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
