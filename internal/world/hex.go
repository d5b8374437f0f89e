// Package world provides the hex lattice: axial coordinates, directions and
// the pointy-top pixel layout.
// Uses axial coordinates (q, r); the third cube coordinate s is derived.
package world

import (
	"fmt"
	"math"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns h + o.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Sub returns h - o.
func (h HexCoord) Sub(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q - o.Q, R: h.R - o.R}
}

// Neg returns -h.
func (h HexCoord) Neg() HexCoord {
	return HexCoord{Q: -h.Q, R: -h.R}
}

// Scale multiplies both components by k.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

// Frac converts h to its continuous form.
func (h HexCoord) Frac() FracHex {
	return FracHex{Q: float64(h.Q), R: float64(h.R)}
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", h.Q, h.R, h.S())
}

// FracHex is a continuous axial coordinate, used while a position is still
// accumulating. Round snaps it to the containing hex.
type FracHex struct {
	Q float64 `json:"q"`
	R float64 `json:"r"`
}

// S returns the implicit third cube coordinate.
func (f FracHex) S() float64 {
	return -f.Q - f.R
}

// Add returns f + o.
func (f FracHex) Add(o FracHex) FracHex {
	return FracHex{Q: f.Q + o.Q, R: f.R + o.R}
}

// Sub returns f - o.
func (f FracHex) Sub(o FracHex) FracHex {
	return FracHex{Q: f.Q - o.Q, R: f.R - o.R}
}

// Neg returns -f.
func (f FracHex) Neg() FracHex {
	return FracHex{Q: -f.Q, R: -f.R}
}

// Scale multiplies both components by k.
func (f FracHex) Scale(k float64) FracHex {
	return FracHex{Q: f.Q * k, R: f.R * k}
}

// Round snaps f to the nearest hex using cube rounding. Each of q, r and s is
// rounded half away from zero; the coordinate with the largest rounding error
// is then rebuilt from the other two so q+r+s stays zero.
//
// Equal errors are resolved in the fixed order q, r, s: (0.5, 0) becomes (1, 0).
func (f FracHex) Round() HexCoord {
	q := math.Round(f.Q)
	r := math.Round(f.R)
	s := math.Round(f.S())

	dq := math.Abs(q - f.Q)
	dr := math.Abs(r - f.R)
	ds := math.Abs(s - f.S())

	switch {
	case dq >= dr && dq >= ds:
		q = -r - s
	case dr >= ds:
		r = -q - s
	}
	// Correcting s needs no write: it is never stored.

	return HexCoord{Q: int(q), R: int(r)}
}

func (f FracHex) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", f.Q, f.R, f.S())
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates,
// in Direction order (East first, counter-clockwise).
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 0, R: 1},
	{Q: -1, R: 1},
	{Q: -1, R: 0},
	{Q: 0, R: -1},
	{Q: 1, R: -1},
}

// Neighbor returns the adjacent hex in the given direction.
func (h HexCoord) Neighbor(d Direction) HexCoord {
	return h.Add(d.Offset())
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := a.Q - b.Q
	dr := a.R - b.R
	ds := a.S() - b.S()
	if dq < 0 {
		dq = -dq
	}
	if dr < 0 {
		dr = -dr
	}
	if ds < 0 {
		ds = -ds
	}
	// Max of the three absolute differences in cube coordinates.
	max := dq
	if dr > max {
		max = dr
	}
	if ds > max {
		max = ds
	}
	return max
}
