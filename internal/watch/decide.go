package watch

import (
	"fmt"
	"math"
)

const (
	calmFactor   = 0.5  // Wind is halved per calming action
	calmDuration = 10.0 // Seconds to ease the wind down
	minWind      = 0.05 // Below this the watchdog never calms further
)

// Decision is the watchdog's recommended action for one cycle.
type Decision struct {
	Action    string    `json:"action"` // "none" or "calm_wind"
	Rationale string    `json:"rationale"`
	Wind      *WindPlan `json:"wind,omitempty"`
}

// WindPlan is the payload for POST /api/v1/wind.
type WindPlan struct {
	Q        float64 `json:"q"`
	R        float64 `json:"r"`
	Duration float64 `json:"duration"`
}

// Decide turns a health reading into at most one action.
func Decide(h *SkyHealth, snap *SkySnapshot) *Decision {
	if h.FullReseeds == 0 || h.Restarted {
		return &Decision{Action: "none", Rationale: fmt.Sprintf("sky %s", h.Level)}
	}

	// Gusts ride on top of the base; calming acts on the base alone.
	wind := snap.Status.WindBase
	d := &Decision{
		Action:    "calm_wind",
		Rationale: fmt.Sprintf("%d full reseeds since the last cycle; easing wind to %.0f%%", h.FullReseeds, calmFactor*100),
		Wind: &WindPlan{
			Q:        wind.Q * calmFactor,
			R:        wind.R * calmFactor,
			Duration: calmDuration,
		},
	}
	enforceGuardrails(d, wind)
	return d
}

// enforceGuardrails keeps a decision within safe bounds: the watchdog may only
// slow the wind, never speed it up or reverse it.
func enforceGuardrails(d *Decision, current Velocity) {
	if d.Wind == nil {
		d.Action = "none"
		return
	}
	w := d.Wind
	if math.IsNaN(w.Q) || math.IsNaN(w.R) || math.IsInf(w.Q, 0) || math.IsInf(w.R, 0) {
		d.Action, d.Wind = "none", nil
		d.Rationale += " (rejected: non-finite wind)"
		return
	}
	if magnitude(Velocity{Q: w.Q, R: w.R}) >= magnitude(current) || magnitude(current) < minWind {
		d.Action, d.Wind = "none", nil
		d.Rationale += " (rejected: would not slow the wind)"
		return
	}
	if w.Duration <= 0 {
		w.Duration = calmDuration
	}
}
