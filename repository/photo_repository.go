package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/models"
)

// PhotoRepository handles database operations for Photo entities.
// It never touches album bounds; callers report content changes to the maintainer.
type PhotoRepository struct {
	DB *gorm.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

// Create inserts a photo, assigning a UUID when none is set
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if photo.CreatedAt == 0 {
		photo.CreatedAt = now
	}
	if photo.UpdatedAt == 0 {
		photo.UpdatedAt = now
	}
	if photo.SourcePath != nil {
		clean := filepath.ToSlash(*photo.SourcePath)
		photo.SourcePath = &clean
	}

	if err := r.DB.WithContext(ctx).Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create photo %s: %w", photo.ID, err)
	}
	return nil
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %s: %w", id, err)
	}
	return &photo, nil
}

// GetBySourcePath retrieves a photo by the path it was imported from
func (r *PhotoRepository) GetBySourcePath(ctx context.Context, sourcePath string) (*models.Photo, error) {
	cleanPath := filepath.ToSlash(sourcePath)
	var photo models.Photo
	err := r.DB.WithContext(ctx).Where("source_path = ?", cleanPath).First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by path %s: %w", cleanPath, err)
	}
	return &photo, nil
}

// ListByAlbum retrieves the photos directly in an album ordered by takestamp, undated last
func (r *PhotoRepository) ListByAlbum(ctx context.Context, albumID uint) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.WithContext(ctx).
		Where("album_id = ?", albumID).
		Order("takestamp IS NULL, takestamp ASC, id ASC").
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for album ID %d: %w", albumID, err)
	}
	return photos, nil
}

// UpdateAlbum moves a photo to another album, or out of every album when albumID is nil
func (r *PhotoRepository) UpdateAlbum(ctx context.Context, photoID string, albumID *uint) error {
	return r.update(ctx, photoID, "album_id", albumID)
}

// UpdateTakestamp sets or clears the capture time of a photo
func (r *PhotoRepository) UpdateTakestamp(ctx context.Context, photoID string, takestamp *int64) error {
	return r.update(ctx, photoID, "takestamp", takestamp)
}

// Delete removes a photo by its ID
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	result := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Photo{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete photo ID %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PhotoRepository) update(ctx context.Context, photoID, column string, value interface{}) error {
	result := r.DB.WithContext(ctx).Model(&models.Photo{}).Where("id = ?", photoID).Updates(map[string]interface{}{
		column:       value,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update %s for photo ID %s: %w", column, photoID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
