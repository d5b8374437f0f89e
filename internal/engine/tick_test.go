package engine

import (
	"context"
	"testing"
	"time"
)

func TestStepCallbacks(t *testing.T) {
	e := NewEngine()
	var frames, seconds, minutes int
	var lastDT float64
	e.OnFrame = func(tick uint64, dt float64) {
		frames++
		lastDT = dt
	}
	e.OnSecond = func(tick uint64) {
		seconds++
		if tick%60 != 0 {
			t.Errorf("OnSecond at tick %d", tick)
		}
	}
	e.OnMinute = func(tick uint64) { minutes++ }

	for i := 0; i < 3600; i++ {
		e.Step(0.02)
	}
	if frames != 3600 || seconds != 60 || minutes != 1 {
		t.Errorf("frames=%d seconds=%d minutes=%d, want 3600/60/1", frames, seconds, minutes)
	}
	if lastDT != 0.02 {
		t.Errorf("dt = %f, want 0.02", lastDT)
	}
	if e.Tick() != 3600 {
		t.Errorf("Tick() = %d, want 3600", e.Tick())
	}
}

func TestFramesPerSecond(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     uint64
	}{
		{time.Second / 60, 60},
		{time.Second / 30, 30},
		{time.Second, 1},
		{2 * time.Second, 1},
		{0, FramesPerSecond},
	}
	for _, tt := range tests {
		e := NewEngine()
		e.Interval = tt.interval
		if got := e.FramesPerSecond(); got != tt.want {
			t.Errorf("FramesPerSecond() at %v = %d, want %d", tt.interval, got, tt.want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	ticked := make(chan struct{}, 1)
	e.OnFrame = func(uint64, float64) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never stepped")
	}
	if !e.IsRunning() {
		t.Error("IsRunning() = false while running")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if e.IsRunning() {
		t.Error("IsRunning() = true after Run returned")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	e := NewEngine()
	e.Stop()
	e.Stop()

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestPausedEngineDoesNotStep(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)
	e.OnFrame = func(uint64, float64) { t.Error("stepped while paused") }

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	e.Run(ctx)
	if e.Tick() != 0 {
		t.Errorf("Tick() = %d after paused run", e.Tick())
	}
}

func TestSimTime(t *testing.T) {
	tests := []struct {
		tick, fps uint64
		want      string
	}{
		{0, 60, "0s"},
		{120, 60, "2s"},
		{90, 60, "1.5s"},
		{3600 * 60, 60, "1h0m0s"},
		{30, 0, "500ms"},
	}
	for _, tt := range tests {
		if got := SimTime(tt.tick, tt.fps); got != tt.want {
			t.Errorf("SimTime(%d, %d) = %q, want %q", tt.tick, tt.fps, got, tt.want)
		}
	}
}
