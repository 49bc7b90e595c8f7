package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/media"
	"github.com/camden-git/mediasysindex/models"
	"github.com/camden-git/mediasysindex/repository"
)

// ImportReport counts what an import created. Re-importing a tree reuses
// albums with matching names and skips files seen before.
type ImportReport struct {
	Albums  int `json:"albums" yaml:"albums"` // albums created
	Photos  int `json:"photos" yaml:"photos"`
	Undated int `json:"undated" yaml:"undated"` // photos imported without a takestamp
	Skipped int `json:"skipped" yaml:"skipped"` // files already imported from the same path
}

// Importer mirrors a folder tree into albums and photos. All writes go
// through the gallery service so album bounds stay current while importing.
type Importer struct {
	gallery       *GalleryService
	photos        repository.PhotoRepositoryInterface
	readTakestamp func(path string) (*int64, error)
	log           zerolog.Logger
}

func NewImporter(gallery *GalleryService, photos repository.PhotoRepositoryInterface, log zerolog.Logger) *Importer {
	return &Importer{
		gallery:       gallery,
		photos:        photos,
		readTakestamp: media.ReadTakestamp,
		log:           log,
	}
}

// Import creates an album for root under parentID (nil for a new root album)
// and recurses into it. Directories become child albums and supported image
// files become photos, both in natural name order. Hidden entries are skipped.
func (im *Importer) Import(ctx context.Context, root string, parentID *uint) (ImportReport, error) {
	var report ImportReport

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return report, fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return report, fmt.Errorf("failed to stat import root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("import root %s is not a directory", absRoot)
	}

	base := filepath.Dir(absRoot)
	err = im.importDir(ctx, base, absRoot, parentID, &report)
	im.log.Info().
		Str("root", absRoot).
		Int("albums", report.Albums).
		Int("photos", report.Photos).
		Int("undated", report.Undated).
		Int("skipped", report.Skipped).
		Msg("import finished")
	return report, err
}

func (im *Importer) importDir(ctx context.Context, base, dir string, parentID *uint, report *ImportReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	album, created, err := im.gallery.EnsureAlbum(ctx, filepath.Base(dir), parentID)
	if err != nil {
		return fmt.Errorf("failed to create album for %s: %w", dir, err)
	}
	if created {
		report.Albums++
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	sortEntries(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		fullPath := filepath.Join(dir, name)

		if entry.IsDir() {
			if err := im.importDir(ctx, base, fullPath, &album.ID, report); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() || !media.IsSupportedImage(name) {
			continue
		}
		if err := im.importFile(ctx, base, fullPath, album.ID, report); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) importFile(ctx context.Context, base, fullPath string, albumID uint, report *ImportReport) error {
	rel, err := filepath.Rel(base, fullPath)
	if err != nil {
		return fmt.Errorf("failed to create relative path for %s: %w", fullPath, err)
	}
	sourcePath := filepath.ToSlash(rel)

	_, err = im.photos.GetBySourcePath(ctx, sourcePath)
	if err == nil {
		report.Skipped++
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	ts, err := im.readTakestamp(fullPath)
	if err != nil {
		im.log.Warn().Err(err).Str("path", fullPath).Msg("could not read takestamp, importing without one")
		ts = nil
	}

	name := filepath.Base(fullPath)
	photo := &models.Photo{
		AlbumID:    &albumID,
		Title:      strings.TrimSuffix(name, filepath.Ext(name)),
		Takestamp:  ts,
		SourcePath: &sourcePath,
	}
	if err := im.gallery.AddPhoto(ctx, photo); err != nil {
		return fmt.Errorf("failed to import %s: %w", fullPath, err)
	}
	report.Photos++
	if ts == nil {
		report.Undated++
	}
	return nil
}

// sortEntries orders directories before files, each group in natural order.
func sortEntries(entries []os.DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		iIsDir := entries[i].IsDir()
		jIsDir := entries[j].IsDir()
		if iIsDir != jIsDir {
			return iIsDir
		}
		return natsort.Compare(strings.ToLower(entries[i].Name()), strings.ToLower(entries[j].Name()))
	})
}
