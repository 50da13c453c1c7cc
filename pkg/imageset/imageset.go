package imageset

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/menta2k/image-splitter/internal/utils"
	"github.com/menta2k/image-splitter/pkg/editor"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
)

var (
	// ErrNoImages is returned when an operation needs an image and the set is empty
	ErrNoImages = errors.New("no images loaded")
	// ErrIndex is returned for an index outside the set
	ErrIndex = errors.New("image index out of range")
)

// Loader decodes images and reads their dimensions
type Loader interface {
	LoadImage(path string) (image.Image, error)
	ImageSize(path string) (int, int, error)
}

// Entry is one image of the set
type Entry struct {
	Path   string
	Width  int
	Height int
	Editor *editor.Editor
}

// Config holds configuration for a set
type Config struct {
	// Template is copied into every newly added entry
	Template layout.SplitConfig
	// Editor holds the editing parameters of every entry's editor
	Editor editor.Config
	// KeepSelection keeps line selection when the active image changes
	KeepSelection bool
	// CacheSize bounds the number of decoded images kept in memory
	CacheSize int
}

// DefaultConfig returns the configuration used by New
func DefaultConfig() Config {
	return Config{
		Template:  layout.Default(),
		Editor:    editor.DefaultConfig(),
		CacheSize: 8,
	}
}

// Set is an ordered list of images with an active index. It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	config  Config
	loader  Loader
	entries []*Entry
	index   int
	cache   *lru.Cache[string, image.Image]
}

// New creates an empty set with default configuration
func New() *Set {
	s, _ := NewWithConfig(DefaultConfig(), processing.NewProcessor())
	return s
}

// NewWithConfig creates an empty set using loader for decoding
func NewWithConfig(config Config, loader Loader) (*Set, error) {
	if config.CacheSize < 1 {
		config.CacheSize = 1
	}
	cache, err := lru.New[string, image.Image](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	config.Template.Normalize()
	return &Set{config: config, loader: loader, cache: cache}, nil
}

// Len returns the number of images
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Index returns the active index, or -1 for an empty set
func (s *Set) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return -1
	}
	return s.index
}

// Paths returns the image paths in order
func (s *Set) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Path
	}
	return out
}

// Add appends image files to the set. Paths without an image extension and paths
// already in the set are skipped. It returns the number of entries added.
func (s *Set) Add(paths ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range paths {
		if !utils.IsImageFile(p) || s.find(p) >= 0 {
			continue
		}
		s.entries = append(s.entries, &Entry{
			Path:   filepath.Clean(p),
			Editor: editor.FromSplitConfig(s.config.Template, s.config.Editor),
		})
		n++
	}
	return n
}

// AddDir appends every image directly inside dir, in natural filename order
func (s *Set) AddDir(dir string) (int, error) {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return s.Add(files...), nil
}

// Remove deletes the entry at index i. The active index stays on the same image when
// possible.
func (s *Set) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.entries) {
		return fmt.Errorf("remove %d: %w", i, ErrIndex)
	}
	s.cache.Remove(s.entries[i].Path)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	if s.index > i || s.index >= len(s.entries) {
		s.index--
	}
	if s.index < 0 {
		s.index = 0
	}
	return nil
}

// Clear removes every entry
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.index = 0
	s.cache.Purge()
}

// Active returns the active entry
func (s *Set) Active() (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, ErrNoImages
	}
	return s.entries[s.index], nil
}

// Entry returns the entry at index i
func (s *Set) Entry(i int) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.entries) {
		return nil, fmt.Errorf("entry %d: %w", i, ErrIndex)
	}
	return s.entries[i], nil
}

// Lookup returns the entry with the given path
func (s *Set) Lookup(path string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.find(path); i >= 0 {
		return s.entries[i], true
	}
	return nil, false
}

// Next activates the following image. It reports false at the end of the list.
func (s *Set) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index+1 >= len(s.entries) {
		return false
	}
	s.switchTo(s.index + 1)
	return true
}

// Previous activates the preceding image. It reports false at the start of the list.
func (s *Set) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == 0 || len(s.entries) == 0 {
		return false
	}
	s.switchTo(s.index - 1)
	return true
}

// Jump activates the image at index i
func (s *Set) Jump(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.entries) {
		return fmt.Errorf("jump to %d: %w", i, ErrIndex)
	}
	if i != s.index {
		s.switchTo(i)
	}
	return nil
}

// switchTo must be called with the lock held
func (s *Set) switchTo(i int) {
	if !s.config.KeepSelection {
		s.entries[s.index].Editor.ClearSelection()
	}
	s.index = i
}

// Image returns the decoded pixels of entry i, loading them on first use. Decoded
// images are kept in a bounded LRU cache.
func (s *Set) Image(i int) (image.Image, error) {
	e, err := s.Entry(i)
	if err != nil {
		return nil, err
	}
	if img, ok := s.cache.Get(e.Path); ok {
		return img, nil
	}

	img, err := s.loader.LoadImage(e.Path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(e.Path, img)

	s.mu.Lock()
	b := img.Bounds()
	e.Width, e.Height = b.Dx(), b.Dy()
	e.Editor.SetImageSize(e.Width, e.Height)
	s.mu.Unlock()
	return img, nil
}

// ActiveImage returns the decoded pixels of the active entry
func (s *Set) ActiveImage() (image.Image, error) {
	i := s.Index()
	if i < 0 {
		return nil, ErrNoImages
	}
	return s.Image(i)
}

// Size returns the pixel dimensions of entry i, reading only the file header when the
// image has not been decoded yet
func (s *Set) Size(i int) (int, int, error) {
	e, err := s.Entry(i)
	if err != nil {
		return 0, 0, err
	}

	s.mu.RLock()
	w, h := e.Width, e.Height
	s.mu.RUnlock()
	if w > 0 && h > 0 {
		return w, h, nil
	}

	w, h, err = s.loader.ImageSize(e.Path)
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	e.Width, e.Height = w, h
	e.Editor.SetImageSize(w, h)
	s.mu.Unlock()
	return w, h, nil
}

// ApplyToAll copies the active entry's lines to every other entry
func (s *Set) ApplyToAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return ErrNoImages
	}
	cfg := s.entries[s.index].Editor.SplitConfig()
	for i, e := range s.entries {
		if i != s.index {
			e.Editor.Load(cfg.Clone())
		}
	}
	return nil
}

// SetTemplate changes the config copied into entries added from now on
func (s *Set) SetTemplate(cfg layout.SplitConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg = cfg.Clone()
	cfg.Normalize()
	s.config.Template = cfg
}

// Template returns the config copied into new entries
func (s *Set) Template() layout.SplitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Template.Clone()
}

// Configs returns a snapshot of every entry's split lines, keyed by position in the set
func (s *Set) Configs() []layout.SplitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]layout.SplitConfig, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Editor.SplitConfig()
	}
	return out
}

func (s *Set) find(path string) int {
	clean := filepath.Clean(path)
	for i, e := range s.entries {
		if e.Path == clean {
			return i
		}
	}
	return -1
}
