package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/image-splitter/pkg/layout"
)

// Version is the current document version
const Version = 1

// ErrVersion is returned when loading a document written by an unknown version
var ErrVersion = errors.New("unsupported project version")

// ImageLines is the split configuration of one image
type ImageLines struct {
	Path   string             `json:"path"`
	Config layout.SplitConfig `json:"config"`
}

// Project is the on-disk form of a splitting session
type Project struct {
	Version int                `json:"version"`
	Default layout.SplitConfig `json:"default"`
	Images  []ImageLines       `json:"images"`
}

// New creates an empty project with the given default lines
func New(def layout.SplitConfig) *Project {
	def = def.Clone()
	def.Normalize()
	return &Project{Version: Version, Default: def, Images: []ImageLines{}}
}

// Add records the lines of one image
func (p *Project) Add(path string, cfg layout.SplitConfig) {
	cfg = cfg.Clone()
	cfg.Normalize()
	p.Images = append(p.Images, ImageLines{Path: path, Config: cfg})
}

// Lookup returns the lines recorded for path
func (p *Project) Lookup(path string) (layout.SplitConfig, bool) {
	clean := filepath.Clean(path)
	for _, img := range p.Images {
		if filepath.Clean(img.Path) == clean {
			return img.Config.Clone(), true
		}
	}
	return layout.SplitConfig{}, false
}

// Validate checks the version and that every position is within [0,1]
func (p *Project) Validate() error {
	if p.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, p.Version)
	}
	if err := p.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	for _, img := range p.Images {
		if err := img.Config.Validate(); err != nil {
			return fmt.Errorf("%s: %w", img.Path, err)
		}
	}
	return nil
}

// Save writes the project to filename, creating the directory if needed
func (p *Project) Save(filename string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	// Replace the old file atomically
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".project-*.json")
	if err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	// CreateTemp makes the file owner-only
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}

// Load reads and validates a project file
func Load(filename string) (*Project, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.Default.Normalize()
	for i := range p.Images {
		p.Images[i].Config.Normalize()
	}
	return &p, nil
}
