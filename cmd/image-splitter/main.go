package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	imagesplitter "github.com/menta2k/image-splitter"
	"github.com/menta2k/image-splitter/internal/config"
	"github.com/menta2k/image-splitter/internal/utils"
	"github.com/menta2k/image-splitter/pkg/client"
	"github.com/menta2k/image-splitter/pkg/cropper"
	"github.com/menta2k/image-splitter/pkg/editor"
	"github.com/menta2k/image-splitter/pkg/gutter"
	"github.com/menta2k/image-splitter/pkg/imageset"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/llamacpp"
	"github.com/menta2k/image-splitter/pkg/ollama"
	"github.com/menta2k/image-splitter/pkg/suggest"
)

// inputs collects repeated -in flags
type inputs []string

func (i *inputs) String() string { return strings.Join(*i, ",") }

func (i *inputs) Set(v string) error {
	*i = append(*i, v)
	return nil
}

func main() {
	var in inputs
	var outDir, projectFile, saveFile, ext, backend, model, url, previewDir, configFile string
	var rows, cols, quality, workers int
	var lossless, watch bool

	flag.Var(&in, "in", "input image or folder (repeatable)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config: ./output)")
	flag.IntVar(&rows, "rows", 0, "reset every image to an even grid with this many rows (1-10)")
	flag.IntVar(&cols, "cols", 0, "reset every image to an even grid with this many columns (1-10)")
	flag.StringVar(&projectFile, "project", "", "load split lines from a project file")
	flag.StringVar(&saveFile, "save", "", "save the split lines of every image to a project file")
	flag.StringVar(&ext, "ext", "", "output format: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.IntVar(&workers, "workers", 0, "images processed in parallel (default: number of CPUs)")
	flag.StringVar(&backend, "suggest", "", "line suggestions: none|gutter|ollama|llamacpp")
	flag.StringVar(&model, "model", "", "vision model used by -suggest ollama|llamacpp")
	flag.StringVar(&url, "url", "", "model server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&previewDir, "preview", "", "write previews with the split lines drawn to this folder instead of splitting")
	flag.StringVar(&configFile, "config", "", "configuration file (default: "+config.GetConfigPath()+")")
	flag.BoolVar(&watch, "watch", false, "keep running and split images added to the input folders")
	flag.Parse()

	in = append(in, flag.Args()...)
	if len(in) == 0 && projectFile == "" {
		log.Fatalf("usage: %s -in image|folder [-in ...] [-rows 2 -cols 3] [-project lines.json] [-save lines.json] [-out outdir] [-ext jpg|png|webp] [-suggest none|gutter|ollama|llamacpp] [-preview dir]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}

	// Flags given on the command line win over the configuration
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Cropper.OutputDir = outDir
		case "ext":
			cfg.Cropper.Format = ext
		case "quality":
			cfg.Cropper.Quality = quality
		case "lossless":
			cfg.Cropper.Lossless = lossless
		case "workers":
			cfg.Cropper.Workers = workers
		case "suggest":
			cfg.Suggest.Backend = backend
		case "model":
			cfg.Suggest.Model = model
		}
	})
	if url != "" {
		if cfg.Suggest.Backend == "llamacpp" {
			cfg.Suggest.LlamaCppURL = url
		} else {
			cfg.Suggest.URL = url
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	splitter, err := imagesplitter.NewWithConfig(splitterConfig(cfg))
	if err != nil {
		log.Fatal(err)
	}
	splitter.SetLogger(log.Default())

	var visionClient client.VisionClient
	switch cfg.Suggest.Backend {
	case "ollama":
		visionClient, err = ollama.NewClient(cfg.Suggest.ServerURL())
		if err != nil {
			log.Fatalf("Failed to create Ollama client: %v", err)
		}
	case "llamacpp":
		visionClient, err = llamacpp.NewClient(cfg.Suggest.ServerURL())
		if err != nil {
			log.Fatalf("Failed to create llama.cpp client: %v", err)
		}
	}
	if visionClient != nil {
		splitter.SetSuggester(suggest.New(visionClient, suggest.Config{
			Model:       cfg.Suggest.Model,
			SendSize:    cfg.Suggest.SendSize,
			SendQuality: cfg.Suggest.SendQuality,
		}))
	}

	if len(in) > 0 {
		n, err := splitter.Open(in...)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("loaded %d images", n)
	}
	if projectFile != "" {
		n, err := splitter.LoadProject(projectFile)
		if err != nil {
			log.Fatalf("Failed to load project: %v", err)
		}
		log.Printf("restored split lines of %d images from %s", n, projectFile)
	}
	if rows > 0 || cols > 0 {
		splitter.ResetAll(max(rows, 1), max(cols, 1))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	images := splitter.Images()
	if images.Len() == 0 {
		log.Fatal(imageset.ErrNoImages)
	}

	switch cfg.Suggest.Backend {
	case "gutter":
		for i, path := range images.Paths() {
			lines, err := splitter.DetectGutters(i)
			if err != nil {
				log.Printf("gutter scan %s failed: %v", path, err)
				continue
			}
			log.Printf("%s: %d horizontal, %d vertical gutters", path, len(lines.HLines), len(lines.VLines))
		}
	case "ollama", "llamacpp":
		for i, path := range images.Paths() {
			lines, err := splitter.Suggest(ctx, i)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					log.Fatal(err)
				}
				log.Printf("suggestion for %s failed: %v", path, err)
				continue
			}
			log.Printf("%s: model proposed h=%v v=%v", path, lines.HLines, lines.VLines)
		}
	}

	if saveFile != "" {
		if err := splitter.SaveProject(saveFile); err != nil {
			log.Fatalf("Failed to save project: %v", err)
		}
		log.Printf("wrote %s", saveFile)
	}

	if previewDir != "" {
		for i, path := range images.Paths() {
			out := filepath.Join(previewDir, utils.BaseName(path)+"_preview.png")
			if err := splitter.SavePreview(i, out); err != nil {
				log.Printf("preview %s failed: %v", path, err)
				continue
			}
			log.Printf("wrote %s", out)
		}
		return
	}

	result, err := splitter.Run(ctx, func(done, total int) {
		log.Printf("[%d/%d] done", done, total)
	})
	for _, img := range result.Images {
		if img.Err == nil {
			log.Printf("%s: %d pieces, %d empty cells skipped", img.Path, len(img.Outputs), img.Skipped)
		}
	}
	log.Printf("processed %d images, %d failed, output in %s", result.Processed, result.Failed, cfg.Cropper.OutputDir)
	if err != nil {
		log.Fatal(err)
	}

	if watch {
		for _, dir := range in {
			if !utils.DirExists(dir) {
				continue
			}
			go func(dir string) {
				err := splitter.Watch(ctx, dir, func(res cropper.ImageResult) {
					if res.Err != nil {
						log.Printf("%s: %v", res.Path, res.Err)
						return
					}
					log.Printf("%s: %d pieces", res.Path, len(res.Outputs))
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("watch %s stopped: %v", dir, err)
				}
			}(dir)
			log.Printf("watching %s", dir)
		}
		<-ctx.Done()
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, falling back to defaults when the default
// file does not exist, then applies environment overrides
func loadConfig(filename string) (*config.Config, error) {
	cfg := config.Default()
	switch {
	case filename != "":
		loaded, err := config.LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case utils.FileExists(config.GetConfigPath()):
		loaded, err := config.LoadFromFile(config.GetConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

func splitterConfig(cfg *config.Config) imagesplitter.Config {
	return imagesplitter.Config{
		Set: imageset.Config{
			Template: layout.Even(cfg.Editor.DefaultRows, cfg.Editor.DefaultCols),
			Editor: editor.Config{
				FineStep:   cfg.Editor.FineStep,
				CoarseStep: cfg.Editor.CoarseStep,
				Tolerance:  cfg.Editor.HitTolerance,
			},
			KeepSelection: cfg.Editor.KeepSelection,
			CacheSize:     cfg.Cache.Size,
		},
		Cropper: cropper.CropConfig{
			OutputDir: cfg.Cropper.OutputDir,
			Format:    cfg.Cropper.Format,
			Quality:   cfg.Cropper.Quality,
			Lossless:  cfg.Cropper.Lossless,
			Prefix:    cfg.Cropper.Prefix,
			Suffix:    cfg.Cropper.Suffix,
			Workers:   cfg.Cropper.Workers,
		},
		Gutter: gutter.DetectionConfig{
			MaxDeviation: cfg.Suggest.GutterVariance,
			MinGutter:    cfg.Suggest.MinGutter,
			MaxSide:      2048,
		},
	}
}
