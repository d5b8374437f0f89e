package world

import "math"

// Direction is one of the six hex adjacency directions, at 60° steps
// counter-clockwise from East.
type Direction uint8

const (
	East Direction = iota
	NorthEast
	NorthWest
	West
	SouthWest
	SouthEast
)

// AllDirections lists every direction in angle order.
var AllDirections = [6]Direction{East, NorthEast, NorthWest, West, SouthWest, SouthEast}

// Offset returns the unit axial step for d.
func (d Direction) Offset() HexCoord {
	return HexNeighborDirections[d%6]
}

// Angle returns the Cartesian angle of d in radians (0 = +x, counter-clockwise).
func (d Direction) Angle() float64 {
	return float64(d%6) * math.Pi / 3
}

// Vector returns the unit Cartesian vector pointing along d.
func (d Direction) Vector() Point {
	a := d.Angle()
	return Point{X: math.Cos(a), Y: math.Sin(a)}
}

// Opposite returns the direction whose offset is the negation of d's.
func (d Direction) Opposite() Direction {
	return (d%6 + 3) % 6
}

// InvertX mirrors d across the vertical axis, as when bouncing off a left or
// right wall.
func (d Direction) InvertX() Direction {
	switch d {
	case East:
		return West
	case NorthEast:
		return NorthWest
	case NorthWest:
		return NorthEast
	case West:
		return East
	case SouthWest:
		return SouthEast
	default:
		return SouthWest
	}
}

// InvertY mirrors d across the horizontal axis. East and West map to themselves.
func (d Direction) InvertY() Direction {
	switch d {
	case NorthEast:
		return SouthEast
	case NorthWest:
		return SouthWest
	case SouthWest:
		return NorthWest
	case SouthEast:
		return NorthEast
	case West:
		return West
	default:
		return East
	}
}

func (d Direction) String() string {
	switch d {
	case East:
		return "East"
	case NorthEast:
		return "NorthEast"
	case NorthWest:
		return "NorthWest"
	case West:
		return "West"
	case SouthWest:
		return "SouthWest"
	case SouthEast:
		return "SouthEast"
	default:
		return "Unknown"
	}
}
