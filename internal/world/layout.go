package world

import "math"

// Sqrt3 is √3, the ratio between a pointy-top hex's width and its circumradius.
const Sqrt3 = 1.7320508075688772935274463415058723669428052538103806280558069795

// Point is a Cartesian position. The y axis points up.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Scale multiplies both components by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Layout maps the hex lattice onto Cartesian space for pointy-top hexes with
// alternate rows offset by half a tile.
//
// Adjacent hex centers are Size*√3 apart; rows are Size*3/2 apart.
type Layout struct {
	Size float64 // circumradius, i.e. half the tile height
}

// ToPixel converts a continuous axial coordinate to Cartesian space.
func (l Layout) ToPixel(f FracHex) Point {
	return Point{
		X: l.Size * (Sqrt3*f.Q + Sqrt3/2*f.R),
		Y: l.Size * (1.5 * f.R),
	}
}

// HexToPixel returns the center of h.
func (l Layout) HexToPixel(h HexCoord) Point {
	return l.ToPixel(h.Frac())
}

// FromPixel is the exact inverse of ToPixel.
func (l Layout) FromPixel(p Point) FracHex {
	return FracHex{
		Q: (Sqrt3/3*p.X - p.Y/3) / l.Size,
		R: (2.0 / 3.0 * p.Y) / l.Size,
	}
}

// PixelToHex returns the hex containing p.
func (l Layout) PixelToHex(p Point) HexCoord {
	return l.FromPixel(p).Round()
}

// UnitLayout places adjacent hex centers exactly 1 apart, so Cartesian
// lengths read directly in hex units.
func UnitLayout() Layout {
	return Layout{Size: 1 / math.Sqrt(3)}
}
