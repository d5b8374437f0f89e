package watch

import (
	"fmt"
	"math"

	"github.com/talgya/hexsky/internal/world"
)

// Health levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// SkyHealth holds derived diagnostic signals computed from two snapshots.
// Deterministic and free; nothing here talks to the API.
type SkyHealth struct {
	OffsetInBounds bool     // |offset| < period on both axes
	Stalled        bool     // running, not paused, and the tick did not advance
	Restarted      bool     // counters went backwards between snapshots
	TicksAdvanced  uint64   // tick delta since the previous snapshot
	FullReseeds    uint64   // shifts past the buffer since the previous snapshot
	Clamped        uint64   // capped frame deltas since the previous snapshot
	Dropped        uint64   // frames dropped for slow subscribers since the previous snapshot
	Level          string   // "CRITICAL", "WARNING", "WATCH", "HEALTHY"
	Findings       []string // human-readable reasons for Level
}

// Triage compares cur against prev (nil on the first cycle).
func Triage(prev, cur *SkySnapshot) *SkyHealth {
	h := &SkyHealth{Level: LevelHealthy}
	st := cur.Status

	h.OffsetInBounds = withinPeriod(st.Offset.X, st.Period.X) && withinPeriod(st.Offset.Y, st.Period.Y)
	if !h.OffsetInBounds {
		h.raise(LevelCritical, fmt.Sprintf("offset (%.2f, %.2f) outside period (%.2f, %.2f)",
			st.Offset.X, st.Offset.Y, st.Period.X, st.Period.Y))
	}

	if prev == nil {
		return h
	}

	// Counter reset detection: a skysim restart resets the tick and the
	// cumulative counters. Deltas across a restart are meaningless.
	if st.Tick < prev.Status.Tick || st.RunID != prev.Status.RunID {
		h.Restarted = true
		h.raise(LevelWatch, "sky restarted since the last observation")
		return h
	}

	h.TicksAdvanced = st.Tick - prev.Status.Tick
	if st.Running && st.Speed > 0 && h.TicksAdvanced == 0 {
		h.Stalled = true
		h.raise(LevelCritical, fmt.Sprintf("engine stalled at tick %d", st.Tick))
	}

	h.FullReseeds = delta(cur.Stats.Scroll.FullReseeds, prev.Stats.Scroll.FullReseeds)
	if h.FullReseeds > 0 {
		h.raise(LevelWarning, fmt.Sprintf("%d shifts outran the buffer (wind %.2f hex/s)", h.FullReseeds, magnitude(st.Wind)))
	}

	h.Clamped = delta(cur.Stats.Scroll.Clamped, prev.Stats.Scroll.Clamped)
	if h.Clamped > 0 {
		h.raise(LevelWatch, fmt.Sprintf("%d frame deltas capped", h.Clamped))
	}

	h.Dropped = delta(cur.Stats.DroppedBroadcast, prev.Stats.DroppedBroadcast)
	if h.Dropped > 0 {
		h.raise(LevelWatch, fmt.Sprintf("%d frames dropped for slow subscribers", h.Dropped))
	}

	return h
}

// raise records a finding and escalates Level if more severe.
func (h *SkyHealth) raise(level, finding string) {
	h.Findings = append(h.Findings, finding)
	if severity(level) > severity(h.Level) {
		h.Level = level
	}
}

func severity(level string) int {
	switch level {
	case LevelCritical:
		return 3
	case LevelWarning:
		return 2
	case LevelWatch:
		return 1
	default:
		return 0
	}
}

func withinPeriod(v, period float64) bool {
	return !math.IsNaN(v) && math.Abs(v) < period
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// magnitude is the wind speed in hex widths per second.
func magnitude(v Velocity) float64 {
	p := world.UnitLayout().ToPixel(world.FracHex{Q: v.Q, R: v.R})
	return math.Hypot(p.X, p.Y)
}
