package repository

import (
	"context"

	"github.com/camden-git/mediasysindex/models"
	"github.com/camden-git/mediasysindex/takestamp"
)

// AlbumRepositoryInterface defines the methods for album data operations.
// It includes the tree store consumed by the takestamp maintainer.
type AlbumRepositoryInterface interface {
	takestamp.Store

	Create(ctx context.Context, album *models.Album) error
	GetByID(ctx context.Context, id uint) (*models.Album, error)
	GetChildByName(ctx context.Context, parentID *uint, name string) (*models.Album, error)
	ListAll(ctx context.Context) ([]models.Album, error)
	UpdateParent(ctx context.Context, albumID uint, parentID *uint) error
	DeleteSubtree(ctx context.Context, albumID uint) (SubtreeDeletion, error)
}

// PhotoRepositoryInterface defines the methods for photo data operations
type PhotoRepositoryInterface interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	GetBySourcePath(ctx context.Context, sourcePath string) (*models.Photo, error)
	ListByAlbum(ctx context.Context, albumID uint) ([]models.Photo, error)
	UpdateAlbum(ctx context.Context, photoID string, albumID *uint) error
	UpdateTakestamp(ctx context.Context, photoID string, takestamp *int64) error
	Delete(ctx context.Context, id string) error
}

var (
	_ AlbumRepositoryInterface = (*AlbumRepository)(nil)
	_ PhotoRepositoryInterface = (*PhotoRepository)(nil)
)
