package gutter

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-splitter/pkg/layout"
)

// Detector finds gutters in images
type Detector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for gutter detection
type DetectionConfig struct {
	// MaxDeviation is the largest luminance standard deviation (0-255) of a row or
	// column still counted as uniform
	MaxDeviation float64
	// MinGutter is the minimum width in pixels of a gutter
	MinGutter int
	// MaxSide downscales larger images before scanning, 0 disables
	MaxSide int
}

// New creates a Detector with default configuration
func New() *Detector {
	return &Detector{
		config: DetectionConfig{
			MaxDeviation: 12,
			MinGutter:    4,
			MaxSide:      2048,
		},
	}
}

// NewWithConfig creates a Detector with custom configuration
func NewWithConfig(config DetectionConfig) *Detector {
	if config.MinGutter < 1 {
		config.MinGutter = 1
	}
	return &Detector{config: config}
}

// Band is a run of uniform rows or columns, in pixels of the scanned image
type Band struct {
	Start int
	End   int // exclusive
}

// Center returns the middle of the band as a fraction of size
func (b Band) Center(size int) float64 {
	return (float64(b.Start) + float64(b.End-b.Start)/2) / float64(size)
}

// Detect returns split lines through the centre of every interior gutter
func (d *Detector) Detect(img image.Image) layout.SplitConfig {
	gray := d.prepare(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	// MinGutter is in source pixels
	minRun := d.config.MinGutter
	if src := img.Bounds().Dx(); src > w {
		minRun = int(math.Max(1, math.Round(float64(minRun)*float64(w)/float64(src))))
	}

	cfg := layout.SplitConfig{}
	if w == 0 || h == 0 {
		cfg.Normalize()
		return cfg
	}

	for _, b := range d.bands(rowDeviation(gray), minRun) {
		cfg.HLines = append(cfg.HLines, b.Center(h))
	}
	for _, b := range d.bands(colDeviation(gray), minRun) {
		cfg.VLines = append(cfg.VLines, b.Center(w))
	}
	cfg.Normalize()
	return cfg
}

func (d *Detector) prepare(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if d.config.MaxSide > 0 && (b.Dx() > d.config.MaxSide || b.Dy() > d.config.MaxSide) {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, d.config.MaxSide, 0, imaging.Box)
		} else {
			img = imaging.Resize(img, 0, d.config.MaxSide, imaging.Box)
		}
	}
	return imaging.Grayscale(img)
}

// bands finds interior runs of uniform lines. Runs touching either edge are margins,
// not gutters.
func (d *Detector) bands(deviation []float64, minRun int) []Band {
	var out []Band
	start := -1
	for i := 0; i <= len(deviation); i++ {
		uniform := i < len(deviation) && deviation[i] <= d.config.MaxDeviation
		switch {
		case uniform && start < 0:
			start = i
		case !uniform && start >= 0:
			if start > 0 && i < len(deviation) && i-start >= minRun {
				out = append(out, Band{Start: start, End: i})
			}
			start = -1
		}
	}
	return out
}

// rowDeviation returns the luminance standard deviation of every row
func rowDeviation(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float64, h)
	for y := 0; y < h; y++ {
		var sum, sq float64
		i := y * img.Stride
		for x := 0; x < w; x++ {
			v := float64(img.Pix[i])
			sum += v
			sq += v * v
			i += 4
		}
		out[y] = stddev(sum, sq, w)
	}
	return out
}

// colDeviation returns the luminance standard deviation of every column
func colDeviation(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	sum := make([]float64, w)
	sq := make([]float64, w)
	for y := 0; y < h; y++ {
		i := y * img.Stride
		for x := 0; x < w; x++ {
			v := float64(img.Pix[i])
			sum[x] += v
			sq[x] += v * v
			i += 4
		}
	}
	out := make([]float64, w)
	for x := range out {
		out[x] = stddev(sum[x], sq[x], h)
	}
	return out
}

func stddev(sum, sq float64, n int) float64 {
	mean := sum / float64(n)
	v := sq/float64(n) - mean*mean
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}
