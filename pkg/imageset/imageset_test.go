package imageset

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-splitter/pkg/editor"
	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
	"github.com/menta2k/image-splitter/pkg/types"
)

// countingLoader serves synthetic images and counts decodes
type countingLoader struct {
	mu    sync.Mutex
	loads map[string]int
}

func (l *countingLoader) LoadImage(path string) (image.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loads == nil {
		l.loads = map[string]int{}
	}
	l.loads[path]++
	return image.NewNRGBA(image.Rect(0, 0, 64, 32)), nil
}

func (l *countingLoader) ImageSize(path string) (int, int, error) {
	return 64, 32, nil
}

func (l *countingLoader) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[path]
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	require.NoError(t, processing.NewProcessor().SaveImage(img, path, "png", 90, false))
}

func TestAddFiltersAndDedupes(t *testing.T) {
	s := New()

	n := s.Add("a.png", "notes.txt", "b.jpg", "a.png", "./a.png")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.png", "b.jpg"}, s.Paths())
	assert.Equal(t, 0, s.Index())
}

func TestEmptySet(t *testing.T) {
	s := New()
	assert.Equal(t, -1, s.Index())
	_, err := s.Active()
	assert.ErrorIs(t, err, ErrNoImages)
	assert.False(t, s.Next())
	assert.False(t, s.Previous())
	assert.ErrorIs(t, s.ApplyToAll(), ErrNoImages)
}

func TestNavigation(t *testing.T) {
	s := New()
	s.Add("1.png", "2.png", "3.png")

	assert.False(t, s.Previous())
	assert.True(t, s.Next())
	assert.True(t, s.Next())
	assert.False(t, s.Next())
	assert.Equal(t, 2, s.Index())

	require.NoError(t, s.Jump(0))
	e, err := s.Active()
	require.NoError(t, err)
	assert.Equal(t, "1.png", e.Path)

	assert.ErrorIs(t, s.Jump(3), ErrIndex)
}

func TestSelectionClearedOnSwitch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Template = layout.Even(2, 2)
	s, err := NewWithConfig(cfg, &countingLoader{})
	require.NoError(t, err)
	s.Add("1.png", "2.png")

	e, _ := s.Active()
	e.Editor.SelectAll()
	s.Next()
	assert.False(t, e.Editor.HasSelection())

	cfg.KeepSelection = true
	s, err = NewWithConfig(cfg, &countingLoader{})
	require.NoError(t, err)
	s.Add("1.png", "2.png")
	e, _ = s.Active()
	e.Editor.SelectAll()
	s.Next()
	assert.True(t, e.Editor.HasSelection())
}

func TestEntriesAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Template = layout.Even(2, 1)
	s, err := NewWithConfig(cfg, &countingLoader{})
	require.NoError(t, err)
	s.Add("1.png", "2.png")

	first, _ := s.Entry(0)
	first.Editor.SelectAll()
	first.Editor.Nudge(types.Down, 0.2)

	configs := s.Configs()
	assert.InDeltaSlice(t, []float64{0.7}, configs[0].HLines, 1e-9)
	assert.InDeltaSlice(t, []float64{0.5}, configs[1].HLines, 1e-9)
}

func TestApplyToAll(t *testing.T) {
	s := New()
	s.Add("1.png", "2.png", "3.png")
	require.NoError(t, s.Jump(1))

	active, _ := s.Active()
	active.Editor.AddLine(types.Vertical, 0.4)
	require.NoError(t, s.ApplyToAll())

	for _, c := range s.Configs() {
		assert.Equal(t, []float64{0.4}, c.VLines)
	}

	// copies are not shared
	other, _ := s.Entry(0)
	other.Editor.AddLine(types.Vertical, 0.9)
	assert.Equal(t, 1, active.Editor.Count(types.Vertical))
}

func TestRemoveKeepsActiveImage(t *testing.T) {
	s := New()
	s.Add("1.png", "2.png", "3.png")
	require.NoError(t, s.Jump(2))

	require.NoError(t, s.Remove(0))
	e, _ := s.Active()
	assert.Equal(t, "3.png", e.Path)

	require.NoError(t, s.Remove(1))
	e, _ = s.Active()
	assert.Equal(t, "2.png", e.Path)

	assert.ErrorIs(t, s.Remove(5), ErrIndex)
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestImageIsCached(t *testing.T) {
	loader := &countingLoader{}
	cfg := DefaultConfig()
	cfg.CacheSize = 1
	s, err := NewWithConfig(cfg, loader)
	require.NoError(t, err)
	s.Add("1.png", "2.png")

	_, err = s.Image(0)
	require.NoError(t, err)
	_, err = s.Image(0)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count("1.png"))

	// evicts 1.png
	_, err = s.Image(1)
	require.NoError(t, err)
	_, err = s.Image(0)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count("1.png"))

	e, _ := s.Entry(0)
	assert.Equal(t, 64, e.Width)
	w, h := e.Editor.ImageSize()
	assert.Equal(t, [2]int{64, 32}, [2]int{w, h})
}

func TestAddDirAndSize(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "p10.png"), 10, 5)
	writePNG(t, filepath.Join(dir, "p9.png"), 30, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), nil, 0o644))

	s := New()
	n, err := s.AddDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, filepath.Join(dir, "p9.png"), s.Paths()[0])

	w, h, err := s.Size(0)
	require.NoError(t, err)
	assert.Equal(t, [2]int{30, 20}, [2]int{w, h})

	img, err := s.ActiveImage()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())

	_, err = s.AddDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWatchAddsNewImages(t *testing.T) {
	dir := t.TempDir()
	s := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	added := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, dir, func(p string) { added <- p }) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	writePNG(t, filepath.Join(dir, "new.png"), 4, 4)

	select {
	case p := <-added:
		assert.Equal(t, filepath.Join(dir, "new.png"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new image")
	}
	assert.Equal(t, 1, s.Len())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestEditorConfigPropagates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = editor.Config{Tolerance: 0.2}
	s, err := NewWithConfig(cfg, &countingLoader{})
	require.NoError(t, err)
	s.Add("1.png")

	e, _ := s.Active()
	e.Editor.AddLine(types.Horizontal, 0.5)
	_, hit := e.Editor.HitTest(types.Point{Y: 0.65})
	assert.True(t, hit)
}
