package cropper

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/processing"
)

// createTestImage creates an image whose every pixel encodes its own coordinates
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	return img
}

func writeTestImage(t testing.TB, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, processing.NewProcessor().SaveImage(createTestImage(w, h), path, "png", 90, false))
	return path
}

func newPNGCropper(outDir string, workers int) *Cropper {
	return NewWithConfig(CropConfig{OutputDir: outDir, Format: "png", Workers: workers}, processing.NewProcessor())
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, "jpg", c.Config().Format)
	assert.GreaterOrEqual(t, c.Config().Workers, 1)
}

func TestNewWithConfigDefaults(t *testing.T) {
	c := NewWithConfig(CropConfig{Quality: 0, Workers: -1}, processing.NewProcessor())
	assert.Equal(t, 95, c.Config().Quality)
	assert.GreaterOrEqual(t, c.Config().Workers, 1)
}

func TestSplitProducesGrid(t *testing.T) {
	c := New()
	img := createTestImage(120, 90)
	cfg := layout.SplitConfig{HLines: []float64{0.5}, VLines: []float64{0.75, 0.25}}

	pieces, err := c.Split(img, cfg)
	require.NoError(t, err)
	require.Len(t, pieces, 2*3)

	area := 0
	for i, p := range pieces {
		assert.Equal(t, i/3, p.Row)
		assert.Equal(t, i%3, p.Col)
		require.NotNil(t, p.Image)
		assert.Equal(t, p.Rect.Size(), p.Image.Bounds().Size())
		area += p.Rect.Dx() * p.Rect.Dy()

		// the top-left pixel of each piece matches the source
		assert.Equal(t, img.At(p.Rect.Min.X, p.Rect.Min.Y), color.NRGBAModel.Convert(p.Image.At(0, 0)))
	}
	assert.Equal(t, 120*90, area)
	assert.Equal(t, image.Rect(30, 45, 90, 90), pieces[4].Rect)
}

func TestSplitLeavesEmptyCellsNil(t *testing.T) {
	c := New()
	pieces, err := c.Split(createTestImage(10, 10), layout.SplitConfig{HLines: []float64{0, 1}})
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	assert.Nil(t, pieces[0].Image)
	assert.NotNil(t, pieces[1].Image)
	assert.Nil(t, pieces[2].Image)
}

func TestProcessImageWritesNamedCells(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeTestImage(t, in, "page.png", 40, 40)

	c := newPNGCropper(out, 1)
	res := c.ProcessImage(Job{Path: path, Config: layout.Even(2, 2)})
	require.NoError(t, res.Err)
	require.Len(t, res.Outputs, 4)

	var names []string
	for _, o := range res.Outputs {
		names = append(names, filepath.Base(o.Path))
		assert.FileExists(t, o.Path)
	}
	assert.Equal(t, []string{"page_1_1.png", "page_1_2.png", "page_2_1.png", "page_2_2.png"}, names)
}

func TestProcessImageCountsSkipped(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeTestImage(t, in, "a.png", 20, 20)

	res := newPNGCropper(out, 1).ProcessImage(Job{Path: path, Config: layout.SplitConfig{VLines: []float64{0.5, 0.5}}})
	require.NoError(t, res.Err)
	assert.Len(t, res.Outputs, 2)
	assert.Equal(t, 1, res.Skipped)
}

func TestRunToleratesFailures(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good1 := writeTestImage(t, in, "one.png", 30, 30)
	good2 := writeTestImage(t, in, "two.png", 30, 30)
	bad := filepath.Join(in, "missing.png")

	var mu sync.Mutex
	var calls []int
	c := newPNGCropper(out, 2)
	res, err := c.Run(context.Background(), []Job{
		{Path: good1, Config: layout.Even(1, 2)},
		{Path: bad, Config: layout.Even(1, 2)},
		{Path: good2, Config: layout.Even(3, 1)},
	}, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, bad, res.Failures[0].Path)
	assert.ErrorIs(t, res.Failures[0].Err, os.ErrNotExist)
	assert.Equal(t, []int{1, 2, 3}, calls)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2+3)
}

func TestRunKeepsSameStemImagesApart(t *testing.T) {
	a, b, out := t.TempDir(), t.TempDir(), t.TempDir()
	small := writeTestImage(t, a, "photo.png", 40, 40)
	large := writeTestImage(t, b, "photo.png", 100, 100)

	res, err := newPNGCropper(out, 2).Run(context.Background(), []Job{
		{Path: small, Config: layout.Default()},
		{Path: large, Config: layout.Default()},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.Images, 2)
	assert.Equal(t, filepath.Join(out, "photo_1_1.png"), res.Images[0].Outputs[0].Path)
	assert.Equal(t, filepath.Join(out, "photo_2_1_1.png"), res.Images[1].Outputs[0].Path)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	img, err := processing.NewProcessor().LoadImage(filepath.Join(out, "photo_2_1_1.png"))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestUniqueNames(t *testing.T) {
	jobs := UniqueNames([]Job{
		{Path: "a/photo.jpg"},
		{Path: "a/photo.png"},
		{Path: "b/Photo.png"},
		{Path: "c/photo_2.png"},
		{Path: "d/other.png", Name: "custom"},
	})
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"photo", "photo_2", "Photo_3", "photo_2_2", "custom"}, names)
}

func TestRunConcurrentMatchesSequential(t *testing.T) {
	in := t.TempDir()
	var jobs []Job
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png"} {
		path := writeTestImage(t, in, name, 50+i*7, 40+i*3)
		jobs = append(jobs, Job{Path: path, Config: layout.SplitConfig{
			HLines: []float64{0.3, 0.6},
			VLines: []float64{float64(i+1) / 8},
		}})
	}

	seqOut, parOut := t.TempDir(), t.TempDir()
	seq, err := newPNGCropper(seqOut, 1).Run(context.Background(), jobs, nil)
	require.NoError(t, err)
	par, err := newPNGCropper(parOut, 6).Run(context.Background(), jobs, nil)
	require.NoError(t, err)

	assert.Equal(t, seq.Processed, par.Processed)
	assert.Equal(t, len(jobs), par.Processed)

	seqFiles := readDir(t, seqOut)
	parFiles := readDir(t, parOut)
	require.Equal(t, len(jobs)*3*2, len(seqFiles))
	require.Equal(t, keys(seqFiles), keys(parFiles))
	for name, data := range seqFiles {
		assert.True(t, bytes.Equal(data, parFiles[name]), name)
	}
}

func TestRunNoJobs(t *testing.T) {
	_, err := New().Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestRunRejectsFormat(t *testing.T) {
	c := NewWithConfig(CropConfig{OutputDir: t.TempDir(), Format: "gif"}, processing.NewProcessor())
	_, err := c.Run(context.Background(), []Job{{Path: "x.png"}}, nil)
	assert.ErrorIs(t, err, processing.ErrUnsupportedFormat)
}

func TestRunCancelled(t *testing.T) {
	in := t.TempDir()
	path := writeTestImage(t, in, "a.png", 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newPNGCropper(t.TempDir(), 1).Run(ctx, []Job{{Path: path, Config: layout.Default()}}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, res.Processed)
}

func readDir(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = data
	}
	return out
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func BenchmarkSplit(b *testing.B) {
	c := New()
	img := createTestImage(1920, 1080)
	cfg := layout.Even(4, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Split(img, cfg)
	}
}

func BenchmarkRun(b *testing.B) {
	in := b.TempDir()
	var jobs []Job
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		jobs = append(jobs, Job{Path: writeTestImage(b, in, name, 640, 480), Config: layout.Even(2, 2)})
	}
	c := newPNGCropper(b.TempDir(), 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Run(context.Background(), jobs, nil)
	}
}
