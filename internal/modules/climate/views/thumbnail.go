package views

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

const thumbnailSuffix = "_thumb"

// ThumbnailPath is where Thumbnail writes the preview of src.
func ThumbnailPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + thumbnailSuffix + ext
}

// Thumbnail writes a preview of the diagram at src scaled to width pixels,
// keeping the aspect ratio. It returns the preview path.
func Thumbnail(src string, width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("thumbnail width must be positive, got %d", width)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w: %v", src, types.ErrIO, err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	dst := ThumbnailPath(src)
	if err := imaging.Save(img, dst); err != nil {
		return "", fmt.Errorf("save %s: %w: %v", dst, types.ErrIO, err)
	}
	return dst, nil
}
