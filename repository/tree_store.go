package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/mediasysindex/database"
	"github.com/camden-git/mediasysindex/models"
	"github.com/camden-git/mediasysindex/takestamp"
)

// albumTx is the takestamp.AlbumTx handed out by WithAlbum. All reads and
// the write go through the same GORM transaction.
type albumTx struct {
	tx    *gorm.DB
	state takestamp.AlbumState
}

func (a *albumTx) Album() takestamp.AlbumState { return a.state }

func (a *albumTx) DirectPhotoBounds() (takestamp.Bounds, error) {
	return database.QueryBounds(a.tx, database.PhotoBoundsQuery([]uint{a.state.ID}))
}

func (a *albumTx) ChildAlbumBounds() (takestamp.Bounds, error) {
	return database.QueryBounds(a.tx, database.ChildAlbumBoundsQuery(a.state.ID))
}

func (a *albumTx) SaveBounds(b takestamp.Bounds) error {
	return saveBounds(a.tx, a.state.ID, b)
}

// WithAlbum locks the album row for the duration of fn. On postgres this is
// SELECT ... FOR UPDATE; sqlite serializes writers on its single connection.
func (r *AlbumRepository) WithAlbum(ctx context.Context, albumID uint, fn func(tx takestamp.AlbumTx) error) error {
	const op = "repository.with_album"

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var album models.Album
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "parent_id", "min_takestamp", "max_takestamp").
			First(&album, albumID).Error
		if err != nil {
			return MapError(op, albumID, err)
		}
		return fn(&albumTx{
			tx: tx,
			state: takestamp.AlbumState{
				ID:       album.ID,
				ParentID: album.ParentID,
				Bounds:   album.Bounds(),
			},
		})
	})
	return MapError(op, albumID, err)
}

// ChildIDs lists the direct children of an album in id order.
func (r *AlbumRepository) ChildIDs(ctx context.Context, albumID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.Album{}).
		Where("parent_id = ?", albumID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, MapError("repository.child_ids", albumID, err)
	}
	return ids, nil
}

// AlbumIDs lists every album id in ascending order.
func (r *AlbumRepository) AlbumIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.Album{}).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, MapError("repository.album_ids", 0, err)
	}
	return ids, nil
}

// AlbumBounds returns the stored bounds of an album.
func (r *AlbumRepository) AlbumBounds(ctx context.Context, albumID uint) (takestamp.Bounds, error) {
	var album models.Album
	err := r.DB.WithContext(ctx).
		Select("id", "min_takestamp", "max_takestamp").
		First(&album, albumID).Error
	if err != nil {
		return takestamp.Bounds{}, MapError("repository.album_bounds", albumID, err)
	}
	return album.Bounds(), nil
}

// PhotoBoundsIn returns min/max over the photos directly in any of albumIDs.
func (r *AlbumRepository) PhotoBoundsIn(ctx context.Context, albumIDs []uint) (takestamp.Bounds, error) {
	b, err := database.PhotoBoundsIn(r.DB.WithContext(ctx), albumIDs)
	if err != nil {
		return takestamp.Bounds{}, MapError("repository.photo_bounds", 0, err)
	}
	return b, nil
}

// SaveBounds overwrites the stored bounds of an album outside of any lock.
func (r *AlbumRepository) SaveBounds(ctx context.Context, albumID uint, b takestamp.Bounds) error {
	return MapError("repository.save_bounds", albumID, saveBounds(r.DB.WithContext(ctx), albumID, b))
}

func saveBounds(db *gorm.DB, albumID uint, b takestamp.Bounds) error {
	result := db.Model(&models.Album{}).Where("id = ?", albumID).Updates(map[string]interface{}{
		"min_takestamp": b.Min,
		"max_takestamp": b.Max,
		"updated_at":    time.Now().Unix(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
