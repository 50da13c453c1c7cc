package types

import (
	"fmt"
	"math"
	"strings"
)

// Orientation tells whether a split line runs horizontally or vertically
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	switch o {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the orientation by name
func (o Orientation) MarshalText() ([]byte, error) {
	switch o {
	case Horizontal, Vertical:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("invalid orientation %d", int(o))
}

// UnmarshalText decodes "horizontal"/"h" or "vertical"/"v"
func (o *Orientation) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "horizontal", "h":
		*o = Horizontal
	case "vertical", "v":
		*o = Vertical
	default:
		return fmt.Errorf("invalid orientation %q", string(text))
	}
	return nil
}

// Direction is an arrow-key nudge direction
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Axis returns the orientation of the lines a direction moves
func (d Direction) Axis() Orientation {
	if d == Up || d == Down {
		return Horizontal
	}
	return Vertical
}

// Sign returns -1 for up/left and +1 for down/right
func (d Direction) Sign() float64 {
	if d == Up || d == Left {
		return -1
	}
	return 1
}

// Point is a position in normalized image coordinates, both axes in [0,1]
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a normalized rectangle spanned by two corner points
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// RectFromPoints builds a rectangle from two arbitrary corners, as a drag gesture produces
func RectFromPoints(a, b Point) Rect {
	r := Rect{Min: a, Max: b}
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

// Span returns the rectangle's extent on the axis a line of the given orientation is positioned on
func (r Rect) Span(o Orientation) (lo, hi float64) {
	if o == Horizontal {
		return r.Min.Y, r.Max.Y
	}
	return r.Min.X, r.Max.X
}

// Clamp01 limits v to [0,1]; NaN maps to 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
