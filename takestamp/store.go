package takestamp

import "context"

// AlbumState is the slice of an album row the maintainer reads.
type AlbumState struct {
	ID       uint
	ParentID *uint
	Bounds   Bounds
}

// AlbumTx is a view of a single album held under an exclusive lock.
// Everything read or written through it commits atomically when the
// WithAlbum callback returns nil.
type AlbumTx interface {
	Album() AlbumState
	// DirectPhotoBounds is min/max over the non-null takestamps of photos directly in the album.
	DirectPhotoBounds() (Bounds, error)
	// ChildAlbumBounds is min/max over the stored bounds of the album's direct children.
	ChildAlbumBounds() (Bounds, error)
	SaveBounds(b Bounds) error
}

// Store is the persistence the maintainer works against.
//
// WithAlbum must return an error coded CodeNotFound when the album does not
// exist, and CodeRetryable when the lock could not be obtained.
type Store interface {
	WithAlbum(ctx context.Context, albumID uint, fn func(tx AlbumTx) error) error

	ChildLister

	AlbumIDs(ctx context.Context) ([]uint, error)
	AlbumBounds(ctx context.Context, albumID uint) (Bounds, error)
	PhotoBoundsIn(ctx context.Context, albumIDs []uint) (Bounds, error)
	SaveBounds(ctx context.Context, albumID uint, b Bounds) error
}

// ChildLister is the part of a store needed to walk a subtree.
type ChildLister interface {
	ChildIDs(ctx context.Context, albumID uint) ([]uint, error)
}

// DescendantIDs walks the tree below albumID breadth first and returns every
// descendant id. A revisited id means the parent links form a cycle.
func DescendantIDs(ctx context.Context, store ChildLister, albumID uint) ([]uint, error) {
	const op = "takestamp.descendants"

	seen := map[uint]struct{}{albumID: {}}
	var out []uint
	queue := []uint{albumID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, Wrap(CodeRetryable, op, albumID, err)
		}
		current := queue[0]
		queue = queue[1:]

		children, err := store.ChildIDs(ctx, current)
		if err != nil {
			return nil, Wrap(CodeInternal, op, current, err)
		}
		for _, child := range children {
			if _, dup := seen[child]; dup {
				return nil, structuralError(op, albumID, "cycle through album %d", child)
			}
			seen[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}
