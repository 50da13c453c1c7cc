// Package imagesplitter cuts images into grids of pieces along user placed split lines.
//
// Every loaded image owns a set of horizontal and vertical split lines, stored as
// fractions of the image height and width. Lines can be placed by hand through the
// line editor, reset to an even grid, proposed by a gutter scan or by a vision model,
// saved to a project file and finally used to crop every image in parallel.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		imagesplitter "github.com/menta2k/image-splitter"
//	)
//
//	func main() {
//		s := imagesplitter.New()
//
//		// Load a folder of scans and cut each one into 2x3 pieces
//		if _, err := s.Open("scans"); err != nil {
//			log.Fatal(err)
//		}
//		s.ResetAll(2, 3)
//
//		result, err := s.Run(context.Background(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("processed %d images, %d failed\n", result.Processed, result.Failed)
//	}
//
// The package wires together:
//
// 1. Image set (pkg/imageset): ordered images, navigation and one line editor per image
// 2. Editor (pkg/editor): selection, box select, nudging and dragging of split lines
// 3. Cropper (pkg/cropper): bounded parallel splitting with partial failure tolerance
// 4. Project (pkg/project): JSON persistence of every image's lines
// 5. Gutter and suggest (pkg/gutter, pkg/suggest): automatic line proposals
package imagesplitter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"

	"github.com/menta2k/image-splitter/internal/utils"
	"github.com/menta2k/image-splitter/pkg/cropper"
	"github.com/menta2k/image-splitter/pkg/editor"
	"github.com/menta2k/image-splitter/pkg/gutter"
	"github.com/menta2k/image-splitter/pkg/imageset"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
	"github.com/menta2k/image-splitter/pkg/project"
	"github.com/menta2k/image-splitter/pkg/suggest"
	"github.com/menta2k/image-splitter/pkg/types"
)

// Version of the image splitter library
const Version = "1.0.0"

// ErrNoSuggester is returned by Suggest when no vision model is configured
var ErrNoSuggester = errors.New("no suggestion backend configured")

// Config gathers the configuration of every component
type Config struct {
	Set     imageset.Config
	Cropper cropper.CropConfig
	Gutter  gutter.DetectionConfig
}

// DefaultConfig returns the configuration used by New
func DefaultConfig() Config {
	return Config{
		Set:     imageset.DefaultConfig(),
		Cropper: cropper.DefaultConfig(),
		Gutter: gutter.DetectionConfig{
			MaxDeviation: 12,
			MinGutter:    4,
			MaxSide:      2048,
		},
	}
}

// Splitter provides a high-level interface over loading, editing, saving and cropping
type Splitter struct {
	processor *processing.Processor
	set       *imageset.Set
	cropper   *cropper.Cropper
	gutter    *gutter.Detector
	suggester *suggest.Suggester
}

// New creates a Splitter with default configuration
func New() *Splitter {
	s, err := NewWithConfig(DefaultConfig())
	if err != nil {
		// Only reachable with an invalid cache size, which DefaultConfig never has
		panic(err)
	}
	return s
}

// NewWithConfig creates a Splitter with custom configuration
func NewWithConfig(config Config) (*Splitter, error) {
	processor := processing.NewProcessor()
	set, err := imageset.NewWithConfig(config.Set, processor)
	if err != nil {
		return nil, err
	}
	return &Splitter{
		processor: processor,
		set:       set,
		cropper:   cropper.NewWithConfig(config.Cropper, processor),
		gutter:    gutter.NewWithConfig(config.Gutter),
	}, nil
}

// SetSuggester enables model based suggestions
func (s *Splitter) SetSuggester(suggester *suggest.Suggester) {
	s.suggester = suggester
}

// SetLogger sets a logger receiving one line per image that failed to split
func (s *Splitter) SetLogger(logger *log.Logger) {
	s.cropper.SetLogger(logger)
}

// Images returns the underlying image set
func (s *Splitter) Images() *imageset.Set {
	return s.set
}

// Open adds image files and folders to the set. Folders are read non-recursively.
// It returns the number of images added, and ErrNoImages when the set is still empty.
func (s *Splitter) Open(paths ...string) (int, error) {
	added := 0
	for _, p := range paths {
		if utils.DirExists(p) {
			n, err := s.set.AddDir(p)
			if err != nil {
				return added, err
			}
			added += n
			continue
		}
		added += s.set.Add(p)
	}
	if s.set.Len() == 0 {
		return 0, imageset.ErrNoImages
	}
	return added, nil
}

// Editor returns the line editor of the active image
func (s *Splitter) Editor() (*editor.Editor, error) {
	e, err := s.set.Active()
	if err != nil {
		return nil, err
	}
	return e.Editor, nil
}

// ResetAll places an even rows x cols grid on every image and makes it the template
// for images added later
func (s *Splitter) ResetAll(rows, cols int) {
	cfg := layout.Even(rows, cols)
	s.set.SetTemplate(cfg)
	for i := 0; i < s.set.Len(); i++ {
		if e, err := s.set.Entry(i); err == nil {
			e.Editor.Load(cfg.Clone())
		}
	}
}

// DetectGutters scans image i for uniform bands and, when any are found, replaces its
// lines with one line through the centre of each band
func (s *Splitter) DetectGutters(i int) (layout.SplitConfig, error) {
	img, err := s.set.Image(i)
	if err != nil {
		return layout.SplitConfig{}, err
	}
	cfg := s.gutter.Detect(img)
	if err := s.apply(i, cfg); err != nil {
		return layout.SplitConfig{}, err
	}
	return cfg, nil
}

// Suggest asks the configured vision model for split lines of image i and applies them
// when the model proposes any
func (s *Splitter) Suggest(ctx context.Context, i int) (layout.SplitConfig, error) {
	if s.suggester == nil {
		return layout.SplitConfig{}, ErrNoSuggester
	}
	img, err := s.set.Image(i)
	if err != nil {
		return layout.SplitConfig{}, err
	}
	cfg, err := s.suggester.Suggest(ctx, img)
	if err != nil {
		return layout.SplitConfig{}, err
	}
	if err := s.apply(i, cfg); err != nil {
		return layout.SplitConfig{}, err
	}
	return cfg, nil
}

func (s *Splitter) apply(i int, cfg layout.SplitConfig) error {
	if len(cfg.HLines) == 0 && len(cfg.VLines) == 0 {
		return nil
	}
	e, err := s.set.Entry(i)
	if err != nil {
		return err
	}
	e.Editor.Load(cfg.Clone())
	return nil
}

// Project returns a snapshot of every image's lines
func (s *Splitter) Project() *project.Project {
	p := project.New(s.set.Template())
	configs := s.set.Configs()
	for i, path := range s.set.Paths() {
		p.Add(path, configs[i])
	}
	return p
}

// SaveProject writes every image's lines to filename. Image paths are stored absolute.
func (s *Splitter) SaveProject(filename string) error {
	p := s.Project()
	for i, img := range p.Images {
		abs, err := filepath.Abs(img.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", img.Path, err)
		}
		p.Images[i].Path = abs
	}
	return p.Save(filename)
}

// LoadProject reads a project file and applies its lines by image path. Relative paths
// are resolved against the directory of the project file. Images listed in
// the project that exist on disk but are not loaded yet are added to the set. The project
// default becomes the template for new images. It returns the number of images whose
// lines were restored.
func (s *Splitter) LoadProject(filename string) (int, error) {
	p, err := project.Load(filename)
	if err != nil {
		return 0, err
	}
	s.set.SetTemplate(p.Default)

	dir := filepath.Dir(filename)
	applied := 0
	for _, img := range p.Images {
		path := img.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, ok := s.set.Lookup(path); !ok && utils.FileExists(path) {
			s.set.Add(path)
		}
		e, ok := s.set.Lookup(path)
		if !ok {
			continue
		}
		e.Editor.Load(img.Config.Clone())
		applied++
	}
	return applied, nil
}

// Jobs returns one crop job per image with its current lines
func (s *Splitter) Jobs() []cropper.Job {
	configs := s.set.Configs()
	paths := s.set.Paths()
	jobs := make([]cropper.Job, len(paths))
	for i, p := range paths {
		jobs[i] = cropper.Job{Path: p, Config: configs[i]}
	}
	return jobs
}

// Run splits every image of the set and writes the pieces to the output directory
func (s *Splitter) Run(ctx context.Context, progress cropper.ProgressFunc) (cropper.Result, error) {
	if s.set.Len() == 0 {
		return cropper.Result{}, imageset.ErrNoImages
	}
	return s.cropper.Run(ctx, s.Jobs(), progress)
}

// SplitImage splits one image of the set with its current lines
func (s *Splitter) SplitImage(path string) (cropper.ImageResult, error) {
	e, ok := s.set.Lookup(path)
	if !ok {
		return cropper.ImageResult{}, fmt.Errorf("%s: %w", path, imageset.ErrIndex)
	}
	if err := utils.EnsureDir(s.cropper.Config().OutputDir); err != nil {
		return cropper.ImageResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	res := s.cropper.ProcessImage(cropper.Job{Path: e.Path, Config: e.Editor.SplitConfig()})
	return res, res.Err
}

// Watch adds images created in dir to the set and splits each one with the template
// lines until ctx is cancelled. onSplit, when not nil, receives every outcome.
func (s *Splitter) Watch(ctx context.Context, dir string, onSplit func(cropper.ImageResult)) error {
	return s.set.Watch(ctx, dir, func(path string) {
		res, _ := s.SplitImage(path)
		if onSplit != nil {
			onSplit(res)
		}
	})
}

// Preview returns image i with its split lines drawn on top
func (s *Splitter) Preview(i int) (image.Image, error) {
	img, err := s.set.Image(i)
	if err != nil {
		return nil, err
	}
	e, err := s.set.Entry(i)
	if err != nil {
		return nil, err
	}

	var guides []processing.Guide
	for _, o := range []types.Orientation{types.Horizontal, types.Vertical} {
		for _, l := range e.Editor.Lines(o) {
			guides = append(guides, processing.Guide{Orientation: l.Orientation, Pos: l.Pos, Selected: l.Selected})
		}
	}
	return s.processor.CreatePreview(img, guides), nil
}

// SavePreview writes the preview of image i to filename. The format follows the file
// extension.
func (s *Splitter) SavePreview(i int, filename string) error {
	format, err := processing.NormalizeFormat(utils.GetFileExtension(filename))
	if err != nil {
		return err
	}
	preview, err := s.Preview(i)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(filename)); err != nil {
		return err
	}
	if err := s.processor.SaveImage(preview, filename, format, s.cropper.Config().Quality, false); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
