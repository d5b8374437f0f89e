package sky

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/hexsky/internal/entropy"
	"github.com/talgya/hexsky/internal/world"
)

// TileDiff counts whole tile periods crossed along each axis.
type TileDiff struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// IsZero reports whether no boundary was crossed.
func (d TileDiff) IsZero() bool {
	return d.X == 0 && d.Y == 0
}

// Cells converts a period count into the buffer's column/row displacement.
// One vertical period is two rows, and because alternate rows are offset by
// half a tile, it also shifts one column back: (x - y, 2y).
func (d TileDiff) Cells() (dc, dr int) {
	return d.X - d.Y, 2 * d.Y
}

func (d TileDiff) String() string {
	return fmt.Sprintf("(%d, %d)", d.X, d.Y)
}

// Mutation is one cell write made while recycling the buffer.
type Mutation struct {
	Col     int     `json:"col"`
	Row     int     `json:"row"`
	Variant Variant `json:"variant"`
	Fresh   bool    `json:"fresh,omitempty"` // reseeded at the trailing edge
}

// Step is the outcome of one Update.
type Step struct {
	Offset    world.Point `json:"offset"`
	Diff      TileDiff    `json:"diff"`
	Mutations []Mutation  `json:"mutations,omitempty"`
	Clamped   bool        `json:"clamped,omitempty"`
}

// Stats counts scroller activity since creation.
type Stats struct {
	Ticks       uint64 `json:"ticks"`
	Crossings   uint64 `json:"crossings"`    // updates that shifted the buffer
	Copied      uint64 `json:"copied"`       // cells slid to a new position
	Reseeded    uint64 `json:"reseeded"`     // trailing-edge cells given fresh variants
	Dropped     uint64 `json:"dropped"`      // cells whose content slid off the buffer
	FullReseeds uint64 `json:"full_reseeds"` // shifts larger than the buffer
	Clamped     uint64 `json:"clamped"`      // updates whose dt was capped
}

// Scroller owns the tile buffer and the sub-tile scroll offset.
// It is not safe for concurrent use; call Update at most once per tick.
type Scroller struct {
	cfg    Config
	layout world.Layout
	period world.Point
	buf    *TileBuffer
	offset world.Point
	stats  Stats
}

// NewScroller validates cfg, allocates the buffer and seeds every cell from rng.
func NewScroller(cfg Config, rng entropy.Source) (*Scroller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scroller{
		cfg:    cfg,
		layout: cfg.Layout(),
		period: cfg.Period(),
		buf:    NewTileBuffer(cfg.Width, cfg.Height),
	}
	s.buf.Fill(rng, cfg.Variants)
	return s, nil
}

// Config returns the scroller's configuration.
func (s *Scroller) Config() Config { return s.cfg }

// Buffer returns the tile buffer. Callers must not write to it while the
// scroller is in use.
func (s *Scroller) Buffer() *TileBuffer { return s.buf }

// Offset returns the sub-tile pixel offset to apply to the tile layer.
func (s *Scroller) Offset() world.Point { return s.offset }

// Stats returns a copy of the activity counters.
func (s *Scroller) Stats() Stats { return s.stats }

// Reset returns the offset to the nominal alignment without touching tiles.
func (s *Scroller) Reset() {
	s.offset = world.Point{}
}

// Update advances the scroll by dt seconds at speed (hex units per second).
// Whole periods crossed are folded into a buffer shift; the remainder stays
// in the offset, strictly under one period per axis.
func (s *Scroller) Update(dt float64, speed world.FracHex, rng entropy.Source) Step {
	s.stats.Ticks++

	var clamped bool
	if dt < 0 || math.IsNaN(dt) {
		dt, clamped = 0, true
	} else if s.cfg.MaxStep > 0 && dt > s.cfg.MaxStep {
		dt, clamped = s.cfg.MaxStep, true
	}
	if clamped {
		s.stats.Clamped++
	}

	vel := s.layout.ToPixel(speed)
	next := s.offset.Add(vel.Scale(dt))

	remX, dx := fold(next.X, s.period.X)
	remY, dy := fold(next.Y, s.period.Y)
	s.offset = world.Point{X: remX, Y: remY}

	step := Step{
		Offset:  s.offset,
		Diff:    TileDiff{X: dx, Y: dy},
		Clamped: clamped,
	}
	if step.Diff.IsZero() {
		return step
	}
	step.Mutations = s.Shift(step.Diff, rng)
	return step
}

// maxFold bounds the period count taken from one update. Any shift this large
// has long since reseeded the whole buffer.
const maxFold = 1 << 30

// fold splits v into a remainder with |rem| < period and the whole number of
// periods removed, truncating toward zero.
func fold(v, period float64) (rem float64, n int) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0
	}
	rem = math.Mod(v, period)
	q := math.Round((v - rem) / period)
	if q > maxFold {
		q = maxFold
	} else if q < -maxFold {
		q = -maxFold
	}
	return rem, int(q)
}

// Shift slides every tile by diff periods and reseeds the trailing edge.
// It performs the shift in place: along an axis with a positive diff the pass
// runs from the high index down, so each cell is read before anything writes
// over it. Every cell is written exactly once.
func (s *Scroller) Shift(diff TileDiff, rng entropy.Source) []Mutation {
	if diff.IsZero() {
		return nil
	}
	s.stats.Crossings++

	w, h := s.buf.width, s.buf.height
	diff = s.clampDiff(diff)
	dc, dr := diff.Cells()

	mutations := make([]Mutation, 0, w*h)
	for i := 0; i < h; i++ {
		y := i
		if diff.Y > 0 {
			y = h - 1 - i
		}
		for j := 0; j < w; j++ {
			x := j
			if diff.X > 0 {
				x = w - 1 - j
			}

			cur := s.buf.cells[y*w+x]

			if s.buf.Set(x+dc, y+dr, cur) {
				mutations = append(mutations, Mutation{Col: x + dc, Row: y + dr, Variant: cur})
				s.stats.Copied++
			} else {
				s.stats.Dropped++
			}

			if !s.buf.InBounds(x-dc, y-dr) {
				v := Variant(rng.IntN(s.cfg.Variants))
				s.buf.cells[y*w+x] = v
				mutations = append(mutations, Mutation{Col: x, Row: y, Variant: v, Fresh: true})
				s.stats.Reseeded++
			}
		}
	}

	slog.Debug("sky shifted", "diff", diff, "mutations", len(mutations))
	return mutations
}

// clampDiff bounds diff so the cell displacement cannot overflow. Anything
// past the buffer extent already reseeds every cell, so the result of the
// pass is unchanged.
func (s *Scroller) clampDiff(d TileDiff) TileDiff {
	w, h := s.buf.width, s.buf.height
	out := TileDiff{X: clampInt(d.X, w+h), Y: clampInt(d.Y, h)}

	// Measure the clamped diff; the raw one can overflow in Cells.
	dc, dr := out.Cells()
	if abs(dr) >= h || abs(dc) >= w {
		s.stats.FullReseeds++
		slog.Warn("sky shift exceeds buffer, reseeding all tiles",
			"diff", d, "width", w, "height", h)
	}
	return out
}

func clampInt(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
