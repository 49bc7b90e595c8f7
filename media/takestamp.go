package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".heic": true,
	".webp": true,
}

// IsSupportedImage checks if the filename has an extension the importer turns into a photo
func IsSupportedImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// ReadTakestamp returns the capture time of an image as Unix seconds.
// Files without usable EXIF data yield a nil takestamp and no error.
func ReadTakestamp(filePath string) (*int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("takestamp: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	return TakestampFromReader(file), nil
}

// TakestampFromReader decodes EXIF from r and returns DateTimeOriginal, falling
// back to DateTime. Timestamps without a zone are read in local time.
func TakestampFromReader(r io.Reader) *int64 {
	exifData, err := exif.Decode(r)
	if err != nil {
		return nil
	}
	dt, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	ts := dt.Unix()
	return &ts
}
