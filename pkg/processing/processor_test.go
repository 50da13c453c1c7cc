package processing

import (
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-splitter/pkg/types"
)

// createTestImage creates a four-quadrant test image
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if x >= width/2 {
				c.R = 255
			}
			if y >= height/2 {
				c.B = 255
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestNormalizeFormat(t *testing.T) {
	for in, want := range map[string]string{"": "jpg", "JPEG": "jpg", ".png": "png", "webp": "webp"} {
		got, err := NormalizeFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeFormat("gif")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCropCell(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(40, 20)

	cell, err := p.CropCell(img, image.Rect(20, 10, 40, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), cell.Bounds())

	r, _, b, _ := cell.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), b)

	_, err = p.CropCell(img, image.Rect(5, 5, 5, 10))
	assert.ErrorIs(t, err, ErrEmptyCell)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(32, 24)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "out."+format)
		require.NoError(t, p.SaveImage(img, path, format, 90, format == "webp"), format)

		loaded, err := p.LoadImage(path)
		require.NoError(t, err, format)
		assert.Equal(t, 32, loaded.Bounds().Dx(), format)
		assert.Equal(t, 24, loaded.Bounds().Dy(), format)

		w, h, err := p.ImageSize(path)
		require.NoError(t, err, format)
		assert.Equal(t, [2]int{32, 24}, [2]int{w, h}, format)
	}
}

func TestSaveImageRejectsUnknownFormat(t *testing.T) {
	p := NewProcessor()
	err := p.SaveImage(createTestImage(4, 4), filepath.Join(t.TempDir(), "x.gif"), "gif", 90, false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadImageErrors(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()

	_, err := p.LoadImage(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = p.LoadImage(garbage)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 100), "jpg", 200, 80)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := p.DecodeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestCreatePreview(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 100)

	preview := p.CreatePreview(img, []Guide{
		{Orientation: types.Horizontal, Pos: 0.25},
		{Orientation: types.Vertical, Pos: 0.75, Selected: true},
	})

	nrgba, ok := preview.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{239, 68, 68, 255}, nrgba.NRGBAAt(10, 25))
	assert.Equal(t, color.NRGBA{34, 197, 94, 255}, nrgba.NRGBAAt(75, 10))
	// the source is untouched
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(10, 25))
}
