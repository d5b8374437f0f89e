package sky

import (
	"strconv"

	"github.com/talgya/hexsky/internal/entropy"
)

// Variant selects which background sprite a tile displays.
type Variant uint8

// MarshalJSON writes a number; without it a []Variant would encode as base64.
func (v Variant) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(v), 10), nil
}

// TileBuffer is a fixed-size grid of tile variants addressed by (col, row).
// Row 0 is the bottom row; rows increase along +y.
type TileBuffer struct {
	cells  []Variant // row-major, len = width * height
	width  int
	height int
}

// NewTileBuffer allocates a zeroed buffer.
func NewTileBuffer(width, height int) *TileBuffer {
	return &TileBuffer{
		cells:  make([]Variant, width*height),
		width:  width,
		height: height,
	}
}

// Width returns the buffer width in tiles.
func (b *TileBuffer) Width() int { return b.width }

// Height returns the buffer height in tiles.
func (b *TileBuffer) Height() int { return b.height }

// Len returns the number of cells.
func (b *TileBuffer) Len() int { return len(b.cells) }

// InBounds reports whether (col, row) addresses a cell.
func (b *TileBuffer) InBounds(col, row int) bool {
	return col >= 0 && col < b.width && row >= 0 && row < b.height
}

// At returns the variant at (col, row). ok is false outside the buffer.
func (b *TileBuffer) At(col, row int) (v Variant, ok bool) {
	if !b.InBounds(col, row) {
		return 0, false
	}
	return b.cells[row*b.width+col], true
}

// Set writes v at (col, row). Writes outside the buffer are ignored and
// reported as false.
func (b *TileBuffer) Set(col, row int, v Variant) bool {
	if !b.InBounds(col, row) {
		return false
	}
	b.cells[row*b.width+col] = v
	return true
}

// Fill assigns every cell a random variant in [0, n).
func (b *TileBuffer) Fill(rng entropy.Source, n int) {
	for i := range b.cells {
		b.cells[i] = Variant(rng.IntN(n))
	}
}

// Snapshot copies the buffer into rows, bottom row first.
func (b *TileBuffer) Snapshot() [][]Variant {
	rows := make([][]Variant, b.height)
	for r := range rows {
		rows[r] = make([]Variant, b.width)
		copy(rows[r], b.cells[r*b.width:(r+1)*b.width])
	}
	return rows
}

// Count returns how many cells hold each variant, indexed by variant.
func (b *TileBuffer) Count(n int) []int {
	counts := make([]int, n)
	for _, v := range b.cells {
		if int(v) < n {
			counts[v]++
		}
	}
	return counts
}
