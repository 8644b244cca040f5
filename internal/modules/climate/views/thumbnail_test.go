package views

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

func TestThumbnailPath(t *testing.T) {
	assert.Equal(t, "Output/Zugspitze_climateDiagram_thumb.png", ThumbnailPath("Output/Zugspitze_climateDiagram.png"))
}

func TestThumbnail_ScalesRenderedDiagram(t *testing.T) {
	path, err := NewRenderer(t.TempDir(), 0, nil).Render(sampleRequest())
	require.NoError(t, err)

	thumb, err := Thumbnail(path, 240)
	require.NoError(t, err)
	assert.Equal(t, ThumbnailPath(path), thumb)

	img, err := imaging.Open(thumb)
	require.NoError(t, err)
	assert.Equal(t, 240, img.Bounds().Dx())
	assert.Equal(t, 192, img.Bounds().Dy())
}

func TestThumbnail_DoesNotUpscale(t *testing.T) {
	src := filepath.Join(t.TempDir(), "small.png")
	require.NoError(t, imaging.Save(imaging.New(100, 80, color.White), src))

	thumb, err := Thumbnail(src, 400)
	require.NoError(t, err)

	img, err := imaging.Open(thumb)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), img.Bounds())
}

func TestThumbnail_Errors(t *testing.T) {
	_, err := Thumbnail(filepath.Join(t.TempDir(), "missing.png"), 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIO))

	src := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(src, []byte("not a png"), 0o644))
	_, err = Thumbnail(src, 100)
	require.Error(t, err)

	_, err = Thumbnail(src, 0)
	require.Error(t, err)
}
