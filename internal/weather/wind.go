package weather

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/talgya/hexsky/internal/world"
)

// Wind produces the sky's scroll velocity in hex units per second: a base
// velocity that eases toward new targets, disturbed by simplex-noise gusts.
// Safe for concurrent use.
type Wind struct {
	mu        sync.Mutex
	base      world.FracHex
	gustiness float64 // Relative gust amplitude, 0 = steady
	noise     opensimplex.Noise
	elapsed   float64
	current   world.FracHex

	// Active retarget, nil when settled.
	tweenQ, tweenR *gween.Tween
}

// NewWind creates a wind blowing at base with the given gustiness (0..1).
func NewWind(base world.FracHex, gustiness float64, seed int64) *Wind {
	return &Wind{
		base:      base,
		gustiness: clamp01(gustiness),
		noise:     opensimplex.NewNormalized(seed),
		current:   base,
	}
}

// SetTarget eases the base velocity to v over dur seconds.
// A non-positive dur applies v immediately.
func (w *Wind) SetTarget(v world.FracHex, dur float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dur <= 0 {
		w.base = v
		w.tweenQ, w.tweenR = nil, nil
		return
	}
	w.tweenQ = gween.New(float32(w.base.Q), float32(v.Q), float32(dur), ease.InOutQuad)
	w.tweenR = gween.New(float32(w.base.R), float32(v.R), float32(dur), ease.InOutQuad)
	slog.Debug("wind retarget", "from", w.base, "to", v, "duration", dur)
}

// SetGustiness changes the gust amplitude (clamped to 0..1).
func (w *Wind) SetGustiness(g float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gustiness = clamp01(g)
}

// Update advances the wind by dt seconds and returns the velocity to apply.
func (w *Wind) Update(dt float64) world.FracHex {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dt > 0 && !math.IsInf(dt, 0) {
		w.elapsed += dt
	} else {
		dt = 0
	}

	if w.tweenQ != nil {
		q, doneQ := w.tweenQ.Update(float32(dt))
		r, doneR := w.tweenR.Update(float32(dt))
		w.base = world.FracHex{Q: float64(q), R: float64(r)}
		if doneQ && doneR {
			w.tweenQ, w.tweenR = nil, nil
		}
	}

	w.current = w.gust(w.base)
	return w.current
}

// gust scales and turns v by slowly varying noise.
func (w *Wind) gust(v world.FracHex) world.FracHex {
	if w.gustiness == 0 {
		return v
	}
	// Normalized noise is 0..1; recenter to -1..1.
	strength := octaveNoise(w.noise, w.elapsed, 0, 3, 0.2, 0.5)*2 - 1
	turn := octaveNoise(w.noise, 0, w.elapsed, 3, 0.1, 0.5)*2 - 1

	layout := world.UnitLayout()
	p := layout.ToPixel(v)
	angle := turn * w.gustiness * math.Pi / 6
	sin, cos := math.Sincos(angle)
	p = world.Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
	return layout.FromPixel(p.Scale(1 + strength*w.gustiness))
}

// Current returns the velocity produced by the last Update.
func (w *Wind) Current() world.FracHex {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Base returns the undisturbed velocity.
func (w *Wind) Base() world.FracHex {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.base
}

// Gustiness returns the gust amplitude.
func (w *Wind) Gustiness() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gustiness
}

// Follow polls c every interval and eases the wind toward the reported
// conditions. Blocks until ctx is done. A nil client returns immediately.
func (w *Wind) Follow(ctx context.Context, c *Client, scale float64, interval time.Duration) {
	if c == nil {
		return
	}
	apply := func() {
		cond, err := c.Fetch(ctx)
		if err != nil {
			slog.Warn("weather fetch failed", "error", err)
			return
		}
		target := MapToSky(cond, scale)
		w.SetTarget(target, interval.Seconds()/4)
		w.SetGustiness(MapGustiness(cond))
		slog.Info("wind follows weather",
			"speed_ms", cond.WindSpeed, "deg", cond.WindDeg, "desc", cond.Description, "target", target)
	}

	apply()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			apply()
		}
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
