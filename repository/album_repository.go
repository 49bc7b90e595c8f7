package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/models"
	"github.com/camden-git/mediasysindex/takestamp"
)

// AlbumRepository handles database operations for Album entities
type AlbumRepository struct {
	DB *gorm.DB
}

// NewAlbumRepository creates a new instance of AlbumRepository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{DB: db}
}

// SubtreeDeletion describes what DeleteSubtree removed.
type SubtreeDeletion struct {
	Album    models.Album // the subtree root as it was before deletion
	AlbumIDs []uint
	Photos   int64
}

// Create creates a new album record in the database.
// Takestamp bounds always start empty; they are owned by the maintainer.
func (r *AlbumRepository) Create(ctx context.Context, album *models.Album) error {
	now := time.Now().Unix()
	if album.CreatedAt == 0 {
		album.CreatedAt = now
	}
	if album.UpdatedAt == 0 {
		album.UpdatedAt = now
	}
	album.MinTakestamp = nil
	album.MaxTakestamp = nil

	err := r.DB.WithContext(ctx).Create(album).Error
	if err != nil {
		return fmt.Errorf("failed to create album %s: %w", album.Name, err)
	}
	return nil
}

// GetByID retrieves an album by its ID
func (r *AlbumRepository) GetByID(ctx context.Context, id uint) (*models.Album, error) {
	var album models.Album
	err := r.DB.WithContext(ctx).First(&album, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get album by ID %d: %w", id, err)
	}
	return &album, nil
}

// GetChildByName retrieves the album called name directly under parentID,
// or among root albums when parentID is nil
func (r *AlbumRepository) GetChildByName(ctx context.Context, parentID *uint, name string) (*models.Album, error) {
	query := r.DB.WithContext(ctx).Where("name = ?", name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	var album models.Album
	err := query.Order("id ASC").First(&album).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get album %s by name: %w", name, err)
	}
	return &album, nil
}

// ListAll retrieves all albums ordered by id
func (r *AlbumRepository) ListAll(ctx context.Context) ([]models.Album, error) {
	var albums []models.Album
	err := r.DB.WithContext(ctx).Order("id ASC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return albums, nil
}

// UpdateParent repoints an album at a new parent, or makes it a root when parentID is nil.
// The caller is responsible for keeping the tree acyclic.
func (r *AlbumRepository) UpdateParent(ctx context.Context, albumID uint, parentID *uint) error {
	now := time.Now().Unix()
	result := r.DB.WithContext(ctx).Model(&models.Album{}).Where("id = ?", albumID).Updates(map[string]interface{}{
		"parent_id":  parentID,
		"updated_at": now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update parent for album ID %d: %w", albumID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSubtree removes an album, every album below it and all of their photos
// in one transaction.
func (r *AlbumRepository) DeleteSubtree(ctx context.Context, albumID uint) (SubtreeDeletion, error) {
	var out SubtreeDeletion
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out.Album, albumID).Error; err != nil {
			return err
		}
		descendants, err := takestamp.DescendantIDs(ctx, &AlbumRepository{DB: tx}, albumID)
		if err != nil {
			return err
		}
		out.AlbumIDs = append([]uint{albumID}, descendants...)

		res := tx.Where("album_id IN ?", out.AlbumIDs).Delete(&models.Photo{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete photos of album ID %d: %w", albumID, res.Error)
		}
		out.Photos = res.RowsAffected

		if err := tx.Where("id IN ?", out.AlbumIDs).Delete(&models.Album{}).Error; err != nil {
			return fmt.Errorf("failed to delete albums below album ID %d: %w", albumID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SubtreeDeletion{}, err
		}
		return SubtreeDeletion{}, fmt.Errorf("failed to delete album ID %d: %w", albumID, err)
	}
	return out, nil
}
