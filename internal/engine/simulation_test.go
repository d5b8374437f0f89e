package engine

import (
	"testing"

	"github.com/talgya/hexsky/internal/entropy"
	"github.com/talgya/hexsky/internal/sky"
	"github.com/talgya/hexsky/internal/world"
)

// steadyWind blows at a fixed velocity.
type steadyWind world.FracHex

func (w steadyWind) Update(float64) world.FracHex { return world.FracHex(w) }

func newTestSimulation(t *testing.T, speed world.FracHex) *Simulation {
	t.Helper()
	cfg := sky.DefaultConfig()
	cfg.Width, cfg.Height = 6, 4
	cfg.MaxStep = 0
	s, err := sky.NewScroller(cfg, entropy.NewSeeded(7))
	if err != nil {
		t.Fatal(err)
	}
	return NewSimulation(s, entropy.NewSeeded(8), steadyWind(speed))
}

func TestTickFrameRecordsCrossing(t *testing.T) {
	// (2, 0) hex/s is 2*26*sqrt(3) ≈ 90.07 px/s; one second crosses one 48 px period.
	sim := newTestSimulation(t, world.FracHex{Q: 2})
	id, frames := sim.Subscribe()
	defer sim.Unsubscribe(id)

	sim.TickFrame(1, 1.0)

	f := <-frames
	if f.Tick != 1 || f.Diff != (sky.TileDiff{X: 1}) {
		t.Errorf("frame = tick %d diff %s, want tick 1 diff (1, 0)", f.Tick, f.Diff)
	}
	if len(f.Mutations) != 6*4 {
		t.Errorf("len(Mutations) = %d, want %d", len(f.Mutations), 6*4)
	}

	recs := sim.DrainFrames()
	if len(recs) != 1 {
		t.Fatalf("DrainFrames() = %d records, want 1", len(recs))
	}
	if recs[0].DiffX != 1 || recs[0].Reseeded != 4 || recs[0].Mutations != 24 {
		t.Errorf("record = %+v", recs[0])
	}
	if len(sim.DrainFrames()) != 0 {
		t.Error("DrainFrames did not clear the buffer")
	}
	if sim.CurrentTick() != 1 {
		t.Errorf("CurrentTick() = %d", sim.CurrentTick())
	}
}

func TestTickFrameWithoutCrossing(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{Q: 0.5})
	for i := uint64(1); i <= 10; i++ {
		sim.TickFrame(i, 1.0/60)
	}
	if n := len(sim.DrainFrames()); n != 0 {
		t.Errorf("DrainFrames() = %d records without a crossing", n)
	}
	snap := sim.Snapshot()
	if snap.Offset.X <= 0 || snap.Offset.X >= snap.Period.X {
		t.Errorf("offset %v outside (0, %f)", snap.Offset, snap.Period.X)
	}
	if snap.Width != 6 || snap.Height != 4 || len(snap.Cells) != 4 {
		t.Errorf("snapshot %dx%d with %d rows", snap.Width, snap.Height, len(snap.Cells))
	}
}

func TestTickSecondRollsWindow(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{Q: 2})
	sim.TickFrame(1, 1.0)
	sim.TickFrame(2, 0.01)
	sim.TickSecond(2)

	st := sim.GetStats()
	if st.FramesPerSec != 2 || st.CrossingsPerSec != 1 || st.MutationsPerSec != 24 {
		t.Errorf("stats = %+v", st)
	}
	if st.Scroll.Ticks != 2 || st.Scroll.Crossings != 1 {
		t.Errorf("scroll stats = %+v", st.Scroll)
	}

	sim.TickSecond(3)
	if st := sim.GetStats(); st.FramesPerSec != 0 || st.CrossingsPerSec != 0 {
		t.Errorf("window not reset: %+v", st)
	}
}

func TestFullReseedRaisesEvent(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{Q: 100})
	sim.TickFrame(1, 1.0)

	events := sim.RecentEvents(0)
	if len(events) != 1 || events[0].Category != "reseed" {
		t.Fatalf("events = %+v, want one reseed", events)
	}
	if sim.GetStats().Scroll.FullReseeds != 1 {
		t.Error("FullReseeds not counted")
	}
}

func TestRecentEventsRing(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{})
	for i := 0; i < maxEvents+5; i++ {
		sim.AddEvent("admin", "poke")
	}
	if n := len(sim.RecentEvents(0)); n != maxEvents {
		t.Errorf("RecentEvents(0) = %d, want %d", n, maxEvents)
	}
	if n := len(sim.RecentEvents(3)); n != 3 {
		t.Errorf("RecentEvents(3) = %d", n)
	}
}

func TestSubscriberDropsWhenFull(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{})
	id, frames := sim.Subscribe()
	for i := uint64(1); i <= subscriberQueue+10; i++ {
		sim.TickFrame(i, 0.01)
	}
	if got := sim.GetStats().DroppedBroadcast; got != 10 {
		t.Errorf("DroppedBroadcast = %d, want 10", got)
	}

	sim.Unsubscribe(id)
	n := 0
	for range frames {
		n++
	}
	if n != subscriberQueue {
		t.Errorf("received %d frames, want %d", n, subscriberQueue)
	}
	sim.Unsubscribe(id)
}

func TestForceShift(t *testing.T) {
	sim := newTestSimulation(t, world.FracHex{})
	if muts := sim.ForceShift(sky.TileDiff{}); muts != nil {
		t.Errorf("zero shift returned %d mutations", len(muts))
	}
	muts := sim.ForceShift(sky.TileDiff{Y: 1})
	if len(muts) != 6*4 {
		t.Errorf("len(mutations) = %d, want 24", len(muts))
	}
	if ev := sim.RecentEvents(1); len(ev) != 1 || ev[0].Category != "admin" {
		t.Errorf("events = %+v", ev)
	}
}
