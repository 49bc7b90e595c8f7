package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/models"
	"github.com/camden-git/mediasysindex/repository"
	"github.com/camden-git/mediasysindex/takestamp"
)

var (
	ErrAlbumNotFound = errors.New("album not found")
	ErrPhotoNotFound = errors.New("photo not found")
)

const defaultMaxTries = 3

// MaintenanceWarning reports an aggregate update that did not succeed after the
// content mutation it belongs to was already committed. The affected bounds may
// be stale until the next recompute.
type MaintenanceWarning struct {
	Op      string
	AlbumID uint
	Adding  bool
	Code    takestamp.ErrorCode
	Err     error
}

// GalleryService is the mutation entry point for albums and photos. Every
// content change is followed by the matching takestamp update.
//
// Moves and takestamp edits widen the destination before shrinking the
// source. A removal rescan reads rows that already reflect the mutation, so
// shrinking first could settle a level on the new value and stop the walk
// before the addition reached the ancestors.
type GalleryService struct {
	albums     repository.AlbumRepositoryInterface
	photos     repository.PhotoRepositoryInterface
	maintainer *takestamp.Maintainer
	log        zerolog.Logger
	maxTries   uint
	newBackOff func() backoff.BackOff
	onWarning  func(MaintenanceWarning)
}

// GalleryOption configures a GalleryService.
type GalleryOption func(*GalleryService)

// WithServiceLogger sets the logger for mutations and maintenance warnings.
func WithServiceLogger(l zerolog.Logger) GalleryOption {
	return func(s *GalleryService) { s.log = l }
}

// WithRetry sets how many times a retryable aggregate update is attempted and
// the backoff policy between attempts.
func WithRetry(maxTries uint, newBackOff func() backoff.BackOff) GalleryOption {
	return func(s *GalleryService) {
		if maxTries > 0 {
			s.maxTries = maxTries
		}
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithWarningHook registers a callback for aggregate updates that gave up.
func WithWarningHook(fn func(MaintenanceWarning)) GalleryOption {
	return func(s *GalleryService) { s.onWarning = fn }
}

// NewGalleryService creates a gallery service. maintainer must be built on the
// same store as albums.
func NewGalleryService(
	albums repository.AlbumRepositoryInterface,
	photos repository.PhotoRepositoryInterface,
	maintainer *takestamp.Maintainer,
	opts ...GalleryOption,
) *GalleryService {
	s := &GalleryService{
		albums:     albums,
		photos:     photos,
		maintainer: maintainer,
		log:        zerolog.Nop(),
		maxTries:   defaultMaxTries,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// CreateAlbum creates an empty album under parentID, or a root album when parentID is nil.
func (s *GalleryService) CreateAlbum(ctx context.Context, name string, parentID *uint) (*models.Album, error) {
	if parentID != nil {
		if _, err := s.getAlbum(ctx, *parentID); err != nil {
			return nil, err
		}
	}
	album := &models.Album{Name: name, ParentID: parentID}
	if err := s.albums.Create(ctx, album); err != nil {
		return nil, err
	}
	s.log.Debug().Uint("album_id", album.ID).Str("name", name).Msg("album created")
	return album, nil
}

// EnsureAlbum returns the album called name under parentID, creating it when
// missing. The boolean reports whether it was created.
func (s *GalleryService) EnsureAlbum(ctx context.Context, name string, parentID *uint) (*models.Album, bool, error) {
	album, err := s.albums.GetChildByName(ctx, parentID, name)
	if err == nil {
		return album, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	album, err = s.CreateAlbum(ctx, name, parentID)
	if err != nil {
		return nil, false, err
	}
	return album, true, nil
}

// AddPhoto stores a new photo and widens the bounds of its album chain.
func (s *GalleryService) AddPhoto(ctx context.Context, photo *models.Photo) error {
	if photo.AlbumID != nil {
		if _, err := s.getAlbum(ctx, *photo.AlbumID); err != nil {
			return err
		}
	}
	if err := s.photos.Create(ctx, photo); err != nil {
		return err
	}
	if photo.AlbumID != nil {
		s.applyChange(ctx, "add_photo", *photo.AlbumID, []*int64{photo.Takestamp}, true)
	}
	return nil
}

// RemovePhoto deletes a photo and shrinks the bounds it defined.
func (s *GalleryService) RemovePhoto(ctx context.Context, photoID string) error {
	photo, err := s.getPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if err := s.photos.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("failed to remove photo %s: %w", photoID, err)
	}
	if photo.AlbumID != nil {
		s.applyChange(ctx, "remove_photo", *photo.AlbumID, []*int64{photo.Takestamp}, false)
	}
	return nil
}

// MovePhoto moves a photo to albumID, or out of every album when albumID is nil.
func (s *GalleryService) MovePhoto(ctx context.Context, photoID string, albumID *uint) error {
	photo, err := s.getPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if sameID(photo.AlbumID, albumID) {
		return nil
	}
	if albumID != nil {
		if _, err := s.getAlbum(ctx, *albumID); err != nil {
			return err
		}
	}
	if err := s.photos.UpdateAlbum(ctx, photoID, albumID); err != nil {
		return fmt.Errorf("failed to move photo %s: %w", photoID, err)
	}

	stamps := []*int64{photo.Takestamp}
	if albumID != nil {
		s.applyChange(ctx, "move_photo", *albumID, stamps, true)
	}
	if photo.AlbumID != nil {
		s.applyChange(ctx, "move_photo", *photo.AlbumID, stamps, false)
	}
	return nil
}

// SetTakestamp changes or clears the capture time of a photo.
func (s *GalleryService) SetTakestamp(ctx context.Context, photoID string, ts *int64) error {
	photo, err := s.getPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if sameStamp(photo.Takestamp, ts) {
		return nil
	}
	if err := s.photos.UpdateTakestamp(ctx, photoID, ts); err != nil {
		return fmt.Errorf("failed to set takestamp of photo %s: %w", photoID, err)
	}
	if photo.AlbumID != nil {
		s.applyChange(ctx, "set_takestamp", *photo.AlbumID, []*int64{ts}, true)
		s.applyChange(ctx, "set_takestamp", *photo.AlbumID, []*int64{photo.Takestamp}, false)
	}
	return nil
}

// MoveAlbum reparents an album together with its subtree. Moving an album
// below itself is rejected with a structural error.
func (s *GalleryService) MoveAlbum(ctx context.Context, albumID uint, parentID *uint) error {
	const op = "services.move_album"

	album, err := s.getAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	if sameID(album.ParentID, parentID) {
		return nil
	}
	if parentID != nil {
		if *parentID == albumID {
			return takestamp.NewError(takestamp.CodeStructural, op, albumID, "album cannot be its own parent", nil)
		}
		descendants, err := takestamp.DescendantIDs(ctx, s.albums, albumID)
		if err != nil {
			return err
		}
		if slices.Contains(descendants, *parentID) {
			return takestamp.NewError(takestamp.CodeStructural, op, albumID,
				fmt.Sprintf("album %d is inside the moved subtree", *parentID), nil)
		}
		if _, err := s.getAlbum(ctx, *parentID); err != nil {
			return err
		}
	}
	if err := s.albums.UpdateParent(ctx, albumID, parentID); err != nil {
		return fmt.Errorf("failed to move album %d: %w", albumID, err)
	}

	stamps := album.Bounds().Stamps()
	if parentID != nil {
		s.applyChange(ctx, "move_album", *parentID, stamps, true)
	}
	if album.ParentID != nil {
		s.applyChange(ctx, "move_album", *album.ParentID, stamps, false)
	}
	return nil
}

// DeleteAlbum deletes an album with every album and photo below it.
func (s *GalleryService) DeleteAlbum(ctx context.Context, albumID uint) (repository.SubtreeDeletion, error) {
	del, err := s.albums.DeleteSubtree(ctx, albumID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.SubtreeDeletion{}, fmt.Errorf("album %d: %w", albumID, ErrAlbumNotFound)
		}
		return repository.SubtreeDeletion{}, err
	}
	s.log.Info().
		Uint("album_id", albumID).
		Int("albums", len(del.AlbumIDs)).
		Int64("photos", del.Photos).
		Msg("album subtree deleted")

	if del.Album.ParentID != nil {
		s.applyChange(ctx, "delete_album", *del.Album.ParentID, del.Album.Bounds().Stamps(), false)
	}
	return del, nil
}

// Recompute rebuilds every album's bounds. It must not overlap with mutations.
func (s *GalleryService) Recompute(ctx context.Context) (takestamp.RecomputeReport, error) {
	return s.maintainer.RecomputeAll(ctx)
}

// Verify reports albums whose stored bounds have drifted.
func (s *GalleryService) Verify(ctx context.Context) ([]takestamp.Drift, error) {
	return s.maintainer.Verify(ctx)
}

// applyChange runs one aggregate update. An interrupted walk is retried from
// the album it stopped at, since the levels below it are already committed.
// Whatever still fails is logged and reported as a warning; the mutation stands.
func (s *GalleryService) applyChange(ctx context.Context, op string, albumID uint, stamps []*int64, adding bool) {
	attempts := 0
	start := albumID
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.maintainer.ApplyChange(ctx, start, stamps, adding)
		if err == nil {
			return struct{}{}, nil
		}
		next, ok := takestamp.ResumeAt(err)
		if !ok {
			return struct{}{}, backoff.Permanent(err)
		}
		start = next
		return struct{}{}, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.maxTries))
	if err == nil {
		return
	}

	w := MaintenanceWarning{
		Op:      op,
		AlbumID: albumID,
		Adding:  adding,
		Code:    takestamp.CodeOf(err),
		Err:     err,
	}
	s.log.Warn().
		Err(err).
		Str("op", op).
		Uint("album_id", albumID).
		Uint("stopped_at", start).
		Bool("adding", adding).
		Str("code", string(w.Code)).
		Int("attempts", attempts).
		Msg("album takestamps may be stale until the next recompute")
	if s.onWarning != nil {
		s.onWarning(w)
	}
}

func (s *GalleryService) getAlbum(ctx context.Context, id uint) (*models.Album, error) {
	album, err := s.albums.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("album %d: %w", id, ErrAlbumNotFound)
		}
		return nil, err
	}
	return album, nil
}

func (s *GalleryService) getPhoto(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("photo %s: %w", id, ErrPhotoNotFound)
		}
		return nil, err
	}
	return photo, nil
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameStamp(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
