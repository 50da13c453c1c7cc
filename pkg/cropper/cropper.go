package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/image-splitter/internal/utils"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
)

// ErrNoJobs is returned by Run when there is nothing to split
var ErrNoJobs = errors.New("no images to split")

// Codec decodes source images and encodes cells
type Codec interface {
	LoadImage(path string) (image.Image, error)
	CropCell(img image.Image, rect image.Rectangle) (image.Image, error)
	SaveImage(img image.Image, path, format string, quality int, lossless bool) error
}

// Job is one image to split with its own split lines
type Job struct {
	Path   string
	Config layout.SplitConfig
	// Name is the output stem of the cells. Empty means the file name of Path
	// without its extension.
	Name string
}

func (j Job) stem() string {
	if j.Name != "" {
		return j.Name
	}
	return utils.BaseName(j.Path)
}

// UniqueNames returns a copy of jobs in which no two jobs share an output stem.
// Later jobs whose stem is taken get a _2, _3, ... suffix. Stems are compared
// case-insensitively.
func UniqueNames(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	taken := make(map[string]bool, len(jobs))
	for i, j := range jobs {
		stem := j.stem()
		name := stem
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		taken[strings.ToLower(name)] = true
		j.Name = name
		out[i] = j
	}
	return out
}

// CropConfig holds configuration for batch splitting
type CropConfig struct {
	OutputDir string
	Format    string
	Quality   int
	Lossless  bool
	Prefix    string
	Suffix    string
	// Workers bounds the number of images processed at once
	Workers int
}

// Piece is a cropped cell of a split image
type Piece struct {
	layout.Cell
	Image image.Image
}

// Output describes one written cell
type Output struct {
	Row  int
	Col  int
	Path string
}

// ImageResult is the outcome for a single image
type ImageResult struct {
	Path    string
	Outputs []Output
	// Skipped counts zero-area cells produced by coincident lines
	Skipped int
	Err     error
}

// Failure records an image that could not be split
type Failure struct {
	Path string
	Err  error
}

// Result summarizes a batch run
type Result struct {
	Processed int
	Failed    int
	Failures  []Failure
	Images    []ImageResult
}

// ProgressFunc is called after each image with the number of finished images and the total
type ProgressFunc func(done, total int)

// Cropper splits images along their split lines and writes the cells
type Cropper struct {
	codec  Codec
	config CropConfig
	logger *log.Logger
}

// New creates a Cropper with default configuration
func New() *Cropper {
	return NewWithConfig(DefaultConfig(), processing.NewProcessor())
}

// DefaultConfig returns the configuration used by New
func DefaultConfig() CropConfig {
	return CropConfig{
		OutputDir: "output",
		Format:    "jpg",
		Quality:   95,
		Workers:   runtime.NumCPU(),
	}
}

// NewWithConfig creates a Cropper with custom configuration and codec
func NewWithConfig(config CropConfig, codec Codec) *Cropper {
	if config.Workers < 1 {
		config.Workers = runtime.NumCPU()
	}
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = 95
	}
	return &Cropper{codec: codec, config: config}
}

// SetLogger sets a logger receiving one line per failed image
func (c *Cropper) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// Config returns the cropper configuration
func (c *Cropper) Config() CropConfig {
	return c.config
}

// Split cuts img into the cells described by cfg in row-major order. Zero-area cells
// are returned with a nil Image.
func (c *Cropper) Split(img image.Image, cfg layout.SplitConfig) ([]Piece, error) {
	cells := cfg.Cells(img.Bounds())
	pieces := make([]Piece, 0, len(cells))
	for _, cell := range cells {
		p := Piece{Cell: cell}
		if !cell.Empty() {
			sub, err := c.codec.CropCell(img, cell.Rect)
			if err != nil {
				return nil, fmt.Errorf("crop cell %d,%d: %w", cell.Row+1, cell.Col+1, err)
			}
			p.Image = sub
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// ProcessImage loads one image, splits it and writes its cells to the output directory
func (c *Cropper) ProcessImage(job Job) ImageResult {
	res := ImageResult{Path: job.Path}

	img, err := c.codec.LoadImage(job.Path)
	if err != nil {
		res.Err = fmt.Errorf("failed to load image: %w", err)
		return res
	}

	pieces, err := c.Split(img, job.Config)
	if err != nil {
		res.Err = err
		return res
	}

	format, err := processing.NormalizeFormat(c.config.Format)
	if err != nil {
		res.Err = err
		return res
	}

	for _, p := range pieces {
		if p.Image == nil {
			res.Skipped++
			continue
		}
		out := utils.CellFilename(job.stem(), c.config.OutputDir, c.config.Prefix, c.config.Suffix, format, p.Row, p.Col)
		if err := c.codec.SaveImage(p.Image, out, format, c.config.Quality, c.config.Lossless); err != nil {
			res.Err = fmt.Errorf("failed to save %s: %w", out, err)
			return res
		}
		res.Outputs = append(res.Outputs, Output{Row: p.Row, Col: p.Col, Path: out})
	}
	return res
}

// Run splits every job, one task per image on a bounded pool. Jobs are renamed with
// UniqueNames first so no two images write the same file. A failing image is
// recorded and does not stop the others. When ctx is cancelled no further images are
// started and ctx.Err() is returned along with the partial result.
func (c *Cropper) Run(ctx context.Context, jobs []Job, progress ProgressFunc) (Result, error) {
	if len(jobs) == 0 {
		return Result{}, ErrNoJobs
	}
	if _, err := processing.NormalizeFormat(c.config.Format); err != nil {
		return Result{}, err
	}
	if err := utils.EnsureDir(c.config.OutputDir); err != nil {
		return Result{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	jobs = UniqueNames(jobs)

	total := len(jobs)
	results := make([]ImageResult, total)
	started := make([]bool, total)
	var done, processed, failed atomic.Int64
	var progressMu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(c.config.Workers)

	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = ImageResult{Path: job.Path, Err: ctx.Err()}
				failed.Add(1)
				return nil
			}

			res := c.ProcessImage(job)
			results[i] = res
			if res.Err != nil {
				failed.Add(1)
				if c.logger != nil {
					c.logger.Printf("split %s failed: %v", job.Path, res.Err)
				}
			} else {
				processed.Add(1)
			}

			progressMu.Lock()
			n := done.Add(1)
			if progress != nil {
				progress(int(n), total)
			}
			progressMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := Result{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	}
	for i, r := range results {
		if !started[i] {
			continue
		}
		result.Images = append(result.Images, r)
		if r.Err != nil {
			result.Failures = append(result.Failures, Failure{Path: r.Path, Err: r.Err})
		}
	}
	return result, ctx.Err()
}
