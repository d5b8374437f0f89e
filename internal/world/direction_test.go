package world

import (
	"math"
	"testing"
)

func TestDirectionOffsetsDistinctAndSymmetric(t *testing.T) {
	seen := make(map[HexCoord]Direction)
	for _, d := range AllDirections {
		off := d.Offset()
		if prev, ok := seen[off]; ok {
			t.Errorf("%v and %v share offset %v", prev, d, off)
		}
		seen[off] = d
	}
	for _, d := range AllDirections {
		if _, ok := seen[d.Offset().Neg()]; !ok {
			t.Errorf("negation of %v offset %v is not a direction", d, d.Offset())
		}
	}
}

func TestNeighborOppositeReturnsHome(t *testing.T) {
	origins := []HexCoord{{}, {Q: 4, R: -7}, {Q: -3, R: 2}}
	for _, o := range origins {
		for _, d := range AllDirections {
			got := o.Neighbor(d).Neighbor(d.Opposite())
			if got != o {
				t.Errorf("neighbor(neighbor(%v, %v), %v) = %v", o, d, d.Opposite(), got)
			}
			if d.Opposite().Offset() != d.Offset().Neg() {
				t.Errorf("Opposite(%v) offset %v, want %v", d, d.Opposite().Offset(), d.Offset().Neg())
			}
		}
	}
}

func TestDirectionAngles(t *testing.T) {
	want := map[Direction]float64{
		East:      0,
		NorthEast: math.Pi / 3,
		NorthWest: 2 * math.Pi / 3,
		West:      math.Pi,
		SouthWest: 4 * math.Pi / 3,
		SouthEast: 5 * math.Pi / 3,
	}
	for d, a := range want {
		if !approxEqual(d.Angle(), a, epsilon) {
			t.Errorf("%v.Angle() = %f, want %f", d, d.Angle(), a)
		}
	}
}

func TestOffsetMatchesAngle(t *testing.T) {
	l := UnitLayout()
	for _, d := range AllDirections {
		p := l.HexToPixel(d.Offset())
		v := d.Vector()
		if !approxEqual(p.X, v.X, epsilon) || !approxEqual(p.Y, v.Y, epsilon) {
			t.Errorf("%v: offset lands at %v, angle points at %v", d, p, v)
		}
	}
}

func TestInvertInvolution(t *testing.T) {
	for _, d := range AllDirections {
		if d.InvertX().InvertX() != d {
			t.Errorf("InvertX twice on %v = %v", d, d.InvertX().InvertX())
		}
		if d.InvertY().InvertY() != d {
			t.Errorf("InvertY twice on %v = %v", d, d.InvertY().InvertY())
		}
	}
}

func TestInvertMirrorsVector(t *testing.T) {
	for _, d := range AllDirections {
		v := d.Vector()
		x := d.InvertX().Vector()
		if !approxEqual(x.X, -v.X, epsilon) || !approxEqual(x.Y, v.Y, epsilon) {
			t.Errorf("InvertX(%v) = %v points at %v, want (%f, %f)", d, d.InvertX(), x, -v.X, v.Y)
		}
		y := d.InvertY().Vector()
		if !approxEqual(y.X, v.X, epsilon) || !approxEqual(y.Y, -v.Y, epsilon) {
			t.Errorf("InvertY(%v) = %v points at %v, want (%f, %f)", d, d.InvertY(), y, v.X, -v.Y)
		}
	}
}

func TestDirectionString(t *testing.T) {
	if East.String() != "East" || SouthEast.String() != "SouthEast" {
		t.Errorf("unexpected names %q %q", East, SouthEast)
	}
	if Direction(9).String() != "Unknown" {
		t.Errorf("Direction(9) = %q, want Unknown", Direction(9).String())
	}
}
