package layout

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/menta2k/image-splitter/pkg/types"
)

// MaxGrid is the largest rows/cols count accepted by Even
const MaxGrid = 10

// ErrOutOfBounds is returned when a split position lies outside [0,1]
var ErrOutOfBounds = errors.New("split position out of bounds")

// SplitConfig holds the split lines of one image. Positions are fractions of the
// image height (HLines) or width (VLines).
type SplitConfig struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	HLines []float64 `json:"h_lines"`
	VLines []float64 `json:"v_lines"`
}

// Default returns a config without any split lines
func Default() SplitConfig {
	return SplitConfig{Rows: 1, Cols: 1, HLines: []float64{}, VLines: []float64{}}
}

// Even returns a config splitting the image into rows x cols equal cells
func Even(rows, cols int) SplitConfig {
	c := SplitConfig{Rows: clampGrid(rows), Cols: clampGrid(cols)}
	c.ResetToEven()
	return c
}

// ResetToEven places Rows-1 and Cols-1 lines at equal spacing
func (c *SplitConfig) ResetToEven() {
	c.Rows = clampGrid(c.Rows)
	c.Cols = clampGrid(c.Cols)
	c.HLines = evenPositions(c.Rows)
	c.VLines = evenPositions(c.Cols)
}

func evenPositions(n int) []float64 {
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		out = append(out, float64(i)/float64(n))
	}
	return out
}

func clampGrid(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxGrid {
		return MaxGrid
	}
	return n
}

// Clone returns a deep copy
func (c SplitConfig) Clone() SplitConfig {
	out := c
	out.HLines = append([]float64{}, c.HLines...)
	out.VLines = append([]float64{}, c.VLines...)
	return out
}

// Normalize sorts both axes and recomputes Rows/Cols from the actual line counts
func (c *SplitConfig) Normalize() {
	if c.HLines == nil {
		c.HLines = []float64{}
	}
	if c.VLines == nil {
		c.VLines = []float64{}
	}
	sort.Float64s(c.HLines)
	sort.Float64s(c.VLines)
	c.Rows = len(c.HLines) + 1
	c.Cols = len(c.VLines) + 1
}

// Validate checks that every position is a finite value in [0,1]
func (c SplitConfig) Validate() error {
	for i, p := range c.HLines {
		if !inUnit(p) {
			return fmt.Errorf("h_lines[%d]=%v: %w", i, p, ErrOutOfBounds)
		}
	}
	for i, p := range c.VLines {
		if !inUnit(p) {
			return fmt.Errorf("v_lines[%d]=%v: %w", i, p, ErrOutOfBounds)
		}
	}
	return nil
}

func inUnit(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// Cell is one rectangular piece of a split image. Row and Col are zero-based and
// Rect is in pixel coordinates of the source image.
type Cell struct {
	Row  int
	Col  int
	Rect image.Rectangle
}

// Empty reports whether the cell has zero area
func (c Cell) Empty() bool {
	return c.Rect.Empty()
}

// Boundaries converts fractional positions to sorted pixel offsets framed by 0 and size.
// Fractions are truncated towards zero.
func Boundaries(positions []float64, size int) []int {
	sorted := append([]float64{}, positions...)
	sort.Float64s(sorted)

	out := make([]int, 0, len(sorted)+2)
	out = append(out, 0)
	for _, p := range sorted {
		px := int(float64(size) * types.Clamp01(p))
		if px > size {
			px = size
		}
		out = append(out, px)
	}
	return append(out, size)
}

// Cells computes the (len(HLines)+1) x (len(VLines)+1) grid of cells for an image with
// the given bounds, in row-major order. The cells tile bounds exactly.
func (c SplitConfig) Cells(bounds image.Rectangle) []Cell {
	rows := Boundaries(c.HLines, bounds.Dy())
	cols := Boundaries(c.VLines, bounds.Dx())

	cells := make([]Cell, 0, (len(rows)-1)*(len(cols)-1))
	for r := 0; r < len(rows)-1; r++ {
		for col := 0; col < len(cols)-1; col++ {
			rect := image.Rect(cols[col], rows[r], cols[col+1], rows[r+1]).Add(bounds.Min)
			cells = append(cells, Cell{Row: r, Col: col, Rect: rect})
		}
	}
	return cells
}
