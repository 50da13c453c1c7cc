package editor

import (
	"math"
	"sort"

	"github.com/menta2k/image-splitter/pkg/layout"
	"github.com/menta2k/image-splitter/pkg/types"
)

// Nudge steps as fractions of the image dimension
const (
	FineStep   = 0.001
	CoarseStep = 0.005
)

// DefaultTolerance is the hit distance for clicks, as a fraction of the image dimension
const DefaultTolerance = 0.01

// Line is a single split line
type Line struct {
	Orientation types.Orientation
	Pos         float64
	Selected    bool
}

// Ref addresses a line by orientation and index into that orientation's lines
type Ref struct {
	Orientation types.Orientation
	Index       int
}

// Config holds the editing parameters
type Config struct {
	FineStep   float64
	CoarseStep float64
	Tolerance  float64
}

// DefaultConfig returns the editing parameters used by New
func DefaultConfig() Config {
	return Config{
		FineStep:   FineStep,
		CoarseStep: CoarseStep,
		Tolerance:  DefaultTolerance,
	}
}

// Editor holds the split lines of one image and their selection state. Line
// positions stay in [0,1]. An Editor is not safe for concurrent use.
type Editor struct {
	config Config
	width  int
	height int
	h      []Line
	v      []Line
}

// New creates an editor with no lines
func New() *Editor {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an editor with custom editing parameters
func NewWithConfig(config Config) *Editor {
	if config.FineStep <= 0 {
		config.FineStep = FineStep
	}
	if config.CoarseStep <= 0 {
		config.CoarseStep = CoarseStep
	}
	if config.Tolerance <= 0 {
		config.Tolerance = DefaultTolerance
	}
	return &Editor{config: config}
}

// FromSplitConfig creates an editor holding the lines of cfg, clamped into bounds
func FromSplitConfig(cfg layout.SplitConfig, config Config) *Editor {
	e := NewWithConfig(config)
	e.Load(cfg)
	return e
}

// SetImageSize records the pixel size of the image, used by NudgePixels
func (e *Editor) SetImageSize(width, height int) {
	e.width, e.height = width, height
}

// ImageSize returns the size recorded by SetImageSize
func (e *Editor) ImageSize() (int, int) {
	return e.width, e.height
}

// Load replaces all lines with those of cfg. The selection is cleared.
func (e *Editor) Load(cfg layout.SplitConfig) {
	e.h = e.h[:0]
	e.v = e.v[:0]
	for _, p := range cfg.HLines {
		e.h = append(e.h, Line{Orientation: types.Horizontal, Pos: types.Clamp01(p)})
	}
	for _, p := range cfg.VLines {
		e.v = append(e.v, Line{Orientation: types.Vertical, Pos: types.Clamp01(p)})
	}
	e.sortLines()
}

// SplitConfig returns a snapshot of the current lines, sorted per axis
func (e *Editor) SplitConfig() layout.SplitConfig {
	cfg := layout.SplitConfig{
		HLines: positions(e.h),
		VLines: positions(e.v),
	}
	cfg.Normalize()
	return cfg
}

// ResetToEven discards all lines and places an even rows x cols grid
func (e *Editor) ResetToEven(rows, cols int) {
	e.Load(layout.Even(rows, cols))
}

// Lines returns a copy of the lines of one orientation in position order
func (e *Editor) Lines(o types.Orientation) []Line {
	return append([]Line{}, *e.slice(o)...)
}

// Count returns the number of lines of one orientation
func (e *Editor) Count(o types.Orientation) int {
	return len(*e.slice(o))
}

// AddLine inserts a line at pos, clamped to [0,1], and returns its reference
func (e *Editor) AddLine(o types.Orientation, pos float64) Ref {
	lines := e.slice(o)
	line := Line{Orientation: o, Pos: types.Clamp01(pos)}
	i := sort.Search(len(*lines), func(i int) bool { return (*lines)[i].Pos > line.Pos })
	*lines = append(*lines, Line{})
	copy((*lines)[i+1:], (*lines)[i:])
	(*lines)[i] = line
	return Ref{Orientation: o, Index: i}
}

// AddLineAt inserts a line of orientation o through point p
func (e *Editor) AddLineAt(o types.Orientation, p types.Point) Ref {
	if o == types.Horizontal {
		return e.AddLine(o, p.Y)
	}
	return e.AddLine(o, p.X)
}

// Remove deletes the referenced line. It reports false for an invalid reference.
func (e *Editor) Remove(ref Ref) bool {
	lines := e.slice(ref.Orientation)
	if ref.Index < 0 || ref.Index >= len(*lines) {
		return false
	}
	*lines = append((*lines)[:ref.Index], (*lines)[ref.Index+1:]...)
	return true
}

// RemoveSelected deletes every selected line and returns how many were removed
func (e *Editor) RemoveSelected() int {
	n := 0
	for _, o := range []types.Orientation{types.Horizontal, types.Vertical} {
		lines := e.slice(o)
		kept := (*lines)[:0]
		for _, l := range *lines {
			if l.Selected {
				n++
				continue
			}
			kept = append(kept, l)
		}
		*lines = kept
	}
	return n
}

// Selected returns references to the selected lines, horizontal lines first
func (e *Editor) Selected() []Ref {
	var refs []Ref
	for _, o := range []types.Orientation{types.Horizontal, types.Vertical} {
		for i, l := range *e.slice(o) {
			if l.Selected {
				refs = append(refs, Ref{Orientation: o, Index: i})
			}
		}
	}
	return refs
}

// HasSelection reports whether any line is selected
func (e *Editor) HasSelection() bool {
	for _, l := range e.h {
		if l.Selected {
			return true
		}
	}
	for _, l := range e.v {
		if l.Selected {
			return true
		}
	}
	return false
}

// ClearSelection deselects every line
func (e *Editor) ClearSelection() {
	e.setAll(false)
}

// SelectAll selects every line
func (e *Editor) SelectAll() {
	e.setAll(true)
}

// Select makes ref the only selected line
func (e *Editor) Select(ref Ref) bool {
	if !e.valid(ref) {
		return false
	}
	e.ClearSelection()
	(*e.slice(ref.Orientation))[ref.Index].Selected = true
	return true
}

// Toggle flips the selection of ref without touching other lines
func (e *Editor) Toggle(ref Ref) bool {
	if !e.valid(ref) {
		return false
	}
	l := &(*e.slice(ref.Orientation))[ref.Index]
	l.Selected = !l.Selected
	return true
}

// HitTest returns the line nearest to p within the configured tolerance
func (e *Editor) HitTest(p types.Point) (Ref, bool) {
	best := Ref{Index: -1}
	bestDist := math.Inf(1)
	for i, l := range e.h {
		if d := math.Abs(l.Pos - p.Y); d <= e.config.Tolerance && d < bestDist {
			best, bestDist = Ref{Orientation: types.Horizontal, Index: i}, d
		}
	}
	for i, l := range e.v {
		if d := math.Abs(l.Pos - p.X); d <= e.config.Tolerance && d < bestDist {
			best, bestDist = Ref{Orientation: types.Vertical, Index: i}, d
		}
	}
	return best, best.Index >= 0
}

// Click handles a pointer click at p. A plain click selects exactly the hit line or
// clears the selection when nothing is hit; with toggle set (ctrl-click) the hit line's
// membership is flipped and a miss changes nothing.
func (e *Editor) Click(p types.Point, toggle bool) (Ref, bool) {
	ref, hit := e.HitTest(p)
	switch {
	case hit && toggle:
		e.Toggle(ref)
	case hit:
		e.Select(ref)
	case !toggle:
		e.ClearSelection()
	}
	return ref, hit
}

// BoxSelect selects the lines whose position lies within r's span on their axis,
// bounds inclusive. Unless additive is set the previous selection is replaced.
// It returns the number of lines inside the box.
func (e *Editor) BoxSelect(r types.Rect, additive bool) int {
	r = types.RectFromPoints(r.Min, r.Max)
	if !additive {
		e.ClearSelection()
	}
	n := 0
	for _, o := range []types.Orientation{types.Horizontal, types.Vertical} {
		lo, hi := r.Span(o)
		lines := *e.slice(o)
		for i := range lines {
			if lines[i].Pos >= lo && lines[i].Pos <= hi {
				lines[i].Selected = true
				n++
			}
		}
	}
	return n
}

// Nudge moves the selected lines of the direction's axis by step, clamping to [0,1].
// It reports false when no line on that axis is selected.
func (e *Editor) Nudge(d types.Direction, step float64) bool {
	lines := e.slice(d.Axis())
	moved := false
	for i := range *lines {
		l := &(*lines)[i]
		if !l.Selected {
			continue
		}
		l.Pos = types.Clamp01(l.Pos + d.Sign()*step)
		moved = true
	}
	if moved {
		e.sortLines()
	}
	return moved
}

// NudgeFine moves the selection by the fine step, or by the coarse step when coarse is set
func (e *Editor) NudgeFine(d types.Direction, coarse bool) bool {
	if coarse {
		return e.Nudge(d, e.config.CoarseStep)
	}
	return e.Nudge(d, e.config.FineStep)
}

// NudgePixels moves the selection by n pixels of the image recorded with SetImageSize.
// Without a known size it falls back to the fine step per pixel.
func (e *Editor) NudgePixels(d types.Direction, n int) bool {
	dim := e.height
	if d.Axis() == types.Vertical {
		dim = e.width
	}
	if dim <= 0 {
		return e.Nudge(d, float64(n)*e.config.FineStep)
	}
	return e.Nudge(d, float64(n)/float64(dim))
}

// Drag moves the referenced line to pos, clamped, and returns its new reference
func (e *Editor) Drag(ref Ref, pos float64) (Ref, bool) {
	if !e.valid(ref) {
		return ref, false
	}
	lines := e.slice(ref.Orientation)
	line := (*lines)[ref.Index]
	line.Pos = types.Clamp01(pos)
	*lines = append((*lines)[:ref.Index], (*lines)[ref.Index+1:]...)

	i := sort.Search(len(*lines), func(i int) bool { return (*lines)[i].Pos > line.Pos })
	*lines = append(*lines, Line{})
	copy((*lines)[i+1:], (*lines)[i:])
	(*lines)[i] = line
	return Ref{Orientation: ref.Orientation, Index: i}, true
}

func (e *Editor) slice(o types.Orientation) *[]Line {
	if o == types.Horizontal {
		return &e.h
	}
	return &e.v
}

func (e *Editor) valid(ref Ref) bool {
	return ref.Index >= 0 && ref.Index < len(*e.slice(ref.Orientation))
}

func (e *Editor) setAll(selected bool) {
	for i := range e.h {
		e.h[i].Selected = selected
	}
	for i := range e.v {
		e.v[i].Selected = selected
	}
}

func (e *Editor) sortLines() {
	sort.SliceStable(e.h, func(i, j int) bool { return e.h[i].Pos < e.h[j].Pos })
	sort.SliceStable(e.v, func(i, j int) bool { return e.v[i].Pos < e.v[j].Pos })
}

func positions(lines []Line) []float64 {
	out := make([]float64, len(lines))
	for i, l := range lines {
		out[i] = l.Pos
	}
	return out
}
