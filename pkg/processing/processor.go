package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-splitter/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for output formats other than jpg, png and webp
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyCell is returned when cropping a zero-area rectangle
	ErrEmptyCell = errors.New("empty crop rectangle")
)

// NormalizeFormat maps a user supplied output format to jpg, png or webp
func NormalizeFormat(format string) (string, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".") {
	case "", "jpg", "jpeg":
		return "jpg", nil
	case "png":
		return "png", nil
	case "webp":
		return "webp", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// Processor handles image decoding, cropping and encoding
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders, EXIF orientation applied)
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// DecodeImage decodes an image from byte data with WebP support
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: %w: unknown encoding", ErrUnsupportedFormat)
}

// ImageSize reads the pixel dimensions from the file header without decoding pixels
func (p *Processor) ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err == nil {
		// LoadImage applies the EXIF orientation, so rotated JPEGs report swapped sides
		if format == "jpeg" {
			if _, serr := f.Seek(0, io.SeekStart); serr == nil && exifOrientation(f) >= 5 {
				return cfg.Height, cfg.Width, nil
			}
		}
		return cfg.Width, cfg.Height, nil
	}

	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return 0, 0, serr
	}
	data, rerr := io.ReadAll(f)
	if rerr != nil {
		return 0, 0, rerr
	}
	w, h, _, werr := webp.GetInfo(data)
	if werr != nil {
		return 0, 0, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return w, h, nil
}

// CropCell crops the pixel rectangle out of img. The result has its origin at (0,0).
func (p *Processor) CropCell(img image.Image, rect image.Rectangle) (image.Image, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, ErrEmptyCell
	}
	return imaging.Crop(img, rect), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}
	switch format {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression))
	default: // jpg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Guide is a split line drawn on a preview
type Guide struct {
	Orientation types.Orientation
	Pos         float64
	Selected    bool
}

// CreatePreview draws the split lines over a copy of img. Selected lines are drawn green
// and thicker, the others red.
func (p *Processor) CreatePreview(img image.Image, guides []Guide) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	red := color.NRGBA{239, 68, 68, 255}
	green := color.NRGBA{34, 197, 94, 255}
	stroke := int(math.Max(2, 0.003*float64(minInt(w, h)))) // ~0.3% of min side

	for _, g := range guides {
		c, s := red, stroke
		if g.Selected {
			c, s = green, stroke*2
		}
		switch g.Orientation {
		case types.Horizontal:
			y := int(types.Clamp01(g.Pos) * float64(h))
			for i := -s / 2; i < s-s/2; i++ {
				drawHLine(nrgba, y+i, 0, w, c)
			}
		case types.Vertical:
			x := int(types.Clamp01(g.Pos) * float64(w))
			for i := -s / 2; i < s-s/2; i++ {
				drawVLine(nrgba, x+i, 0, h, c)
			}
		}
	}
	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
