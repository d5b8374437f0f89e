// Package engine provides the frame loop that drives the sky.
// Each frame calls OnFrame exactly once with the elapsed simulated seconds,
// so the scroller never sees the same time delta twice.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FramesPerSecond is the default frame rate.
const FramesPerSecond = 60

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Target frame interval (default 1/60 s)
	MaxFrame time.Duration // Longest real frame passed on; longer hitches are cut (default 250ms)

	// Callbacks for each tick layer, populated during setup.
	OnFrame  func(tick uint64, dt float64) // Every frame
	OnSecond func(tick uint64)             // Every FramesPerSecond() frames
	OnMinute func(tick uint64)             // Every 60 seconds of frames

	mu      sync.Mutex
	tick    uint64
	speed   float64 // 1.0 = real-time, 0 = paused
	running atomic.Bool
	stop    chan struct{}
}

// NewEngine creates an engine running at FramesPerSecond in real time.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second / FramesPerSecond,
		MaxFrame: 250 * time.Millisecond,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// FramesPerSecond returns how many frames make up one second at Interval.
func (e *Engine) FramesPerSecond() uint64 {
	if e.Interval <= 0 {
		return FramesPerSecond
	}
	n := uint64((time.Second + e.Interval/2) / e.Interval)
	if n == 0 {
		n = 1
	}
	return n
}

// Tick returns the number of frames stepped so far.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// GetSpeed returns the time multiplier.
func (e *Engine) GetSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the time multiplier. Values <= 0 pause the engine.
func (e *Engine) SetSpeed(s float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = s
}

// IsRunning reports whether Run is active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Run starts the frame loop. Blocks until ctx is done or Stop() is called.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("sky engine started", "tick", e.Tick(), "speed", e.GetSpeed(), "interval", e.Interval)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sky engine stopped", "tick", e.Tick(), "reason", ctx.Err())
			return
		case <-e.stop:
			slog.Info("sky engine stopped", "tick", e.Tick())
			return
		default:
		}

		speed := e.GetSpeed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			last = time.Now()
			continue
		}

		start := time.Now()
		elapsed := start.Sub(last)
		last = start
		if e.MaxFrame > 0 && elapsed > e.MaxFrame {
			slog.Debug("frame hitch cut", "elapsed", elapsed, "max", e.MaxFrame)
			elapsed = e.MaxFrame
		}

		e.Step(elapsed.Seconds() * speed)

		// Sleep for the remainder of the frame interval.
		if spent := time.Since(start); spent < e.Interval {
			time.Sleep(e.Interval - spent)
		}
	}
}

// Stop halts the frame loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Step advances the simulation by exactly one frame of dt seconds.
func (e *Engine) Step(dt float64) {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	// Every frame: scroll the sky.
	if e.OnFrame != nil {
		e.OnFrame(tick, dt)
	}

	fps := e.FramesPerSecond()

	// Every second: aggregate stats, flush diagnostics.
	if tick%fps == 0 && e.OnSecond != nil {
		e.OnSecond(tick)
	}

	// Every minute: recorder summaries.
	if tick%(fps*60) == 0 && e.OnMinute != nil {
		e.OnMinute(tick)
	}
}

// SimTime returns the simulated time covered by tick frames at fps.
func SimTime(tick, fps uint64) string {
	if fps == 0 {
		fps = FramesPerSecond
	}
	d := time.Duration(tick) * time.Second / time.Duration(fps)
	return d.Round(time.Millisecond).String()
}
