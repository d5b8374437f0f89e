// Simulation ties the scroller, its random source and the wind together and
// runs them each frame.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/hexsky/internal/entropy"
	"github.com/talgya/hexsky/internal/sky"
	"github.com/talgya/hexsky/internal/world"
)

const (
	maxEvents       = 1000  // Recent event ring
	maxPending      = 10000 // Frame records held for the recorder
	subscriberQueue = 64    // Frames buffered per subscriber before drops
)

// WindSource supplies the scroll velocity in hex units per second.
type WindSource interface {
	Update(dt float64) world.FracHex
}

// Event is a notable occurrence in the sky.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "reseed", "clamp", "wind", "admin"
}

// Frame is what subscribers receive for every scrolled frame.
type Frame struct {
	Tick      uint64         `json:"tick"`
	Offset    world.Point    `json:"offset"`
	Speed     world.FracHex  `json:"speed"`
	Diff      sky.TileDiff   `json:"diff"`
	Mutations []sky.Mutation `json:"mutations,omitempty"`
}

// FrameRecord is the diagnostic summary of a frame that shifted the buffer.
type FrameRecord struct {
	Tick      uint64  `db:"tick" json:"tick"`
	OffsetX   float64 `db:"offset_x" json:"offset_x"`
	OffsetY   float64 `db:"offset_y" json:"offset_y"`
	DiffX     int     `db:"diff_x" json:"diff_x"`
	DiffY     int     `db:"diff_y" json:"diff_y"`
	Mutations int     `db:"mutations" json:"mutations"`
	Reseeded  int     `db:"reseeded" json:"reseeded"`
	Clamped   bool    `db:"clamped" json:"clamped"`
}

// SimStats tracks aggregate sky statistics.
type SimStats struct {
	Scroll           sky.Stats     `json:"scroll"`
	Speed            world.FracHex `json:"speed"`
	CrossingsPerSec  int           `json:"crossings_per_sec"`
	MutationsPerSec  int           `json:"mutations_per_sec"`
	FramesPerSec     int           `json:"frames_per_sec"`
	Subscribers      int           `json:"subscribers"`
	PendingRecords   int           `json:"pending_records"`
	DroppedRecords   uint64        `json:"dropped_records"`
	DroppedBroadcast uint64        `json:"dropped_broadcast"`
}

// Snapshot is a consistent copy of the sky for readers outside the frame loop.
type Snapshot struct {
	Tick     uint64          `json:"tick"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Variants int             `json:"variants"`
	Cells    [][]sky.Variant `json:"cells"`
	Offset   world.Point     `json:"offset"`
	Period   world.Point     `json:"period"`
	Speed    world.FracHex   `json:"speed"`
}

// Simulation holds the sky state. All methods are safe for concurrent use.
type Simulation struct {
	mu       sync.RWMutex
	scroller *sky.Scroller
	rng      entropy.Source
	wind     WindSource
	speed    world.FracHex // Last velocity applied
	LastTick uint64        // Most recent tick processed

	events        []Event
	pendingEvents []Event
	pending       []FrameRecord
	subs          map[int]chan Frame
	nextSub       int

	// Per-second window counters.
	windowFrames    int
	windowCrossings int
	windowMutations int

	Stats SimStats
}

// NewSimulation creates a Simulation around an already seeded scroller.
// A nil wind keeps the scroller's configured speed.
func NewSimulation(s *sky.Scroller, rng entropy.Source, wind WindSource) *Simulation {
	sim := &Simulation{
		scroller: s,
		rng:      rng,
		wind:     wind,
		speed:    s.Config().Speed,
		subs:     make(map[int]chan Frame),
	}
	sim.Stats.Scroll = s.Stats()
	sim.Stats.Speed = sim.speed
	return sim
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// Config returns the scroller configuration.
func (s *Simulation) Config() sky.Config {
	return s.scroller.Config()
}

// TickFrame runs once per frame: pull the wind, scroll, fan out the result.
func (s *Simulation) TickFrame(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	if s.wind != nil {
		s.speed = s.wind.Update(dt)
	}

	before := s.scroller.Stats()
	step := s.scroller.Update(dt, s.speed, s.rng)
	after := s.scroller.Stats()

	s.windowFrames++
	if step.Clamped {
		s.addEventLocked(tick, "clamp", fmt.Sprintf("frame delta %.3fs capped at %.3fs", dt, s.scroller.Config().MaxStep))
	}
	if after.FullReseeds > before.FullReseeds {
		s.addEventLocked(tick, "reseed", fmt.Sprintf("shift %s exceeded the buffer, every tile reseeded", step.Diff))
	}

	if !step.Diff.IsZero() {
		s.windowCrossings++
		s.windowMutations += len(step.Mutations)
		s.pushRecordLocked(FrameRecord{
			Tick:      tick,
			OffsetX:   step.Offset.X,
			OffsetY:   step.Offset.Y,
			DiffX:     step.Diff.X,
			DiffY:     step.Diff.Y,
			Mutations: len(step.Mutations),
			Reseeded:  int(after.Reseeded - before.Reseeded),
			Clamped:   step.Clamped,
		})
	}

	s.broadcastLocked(Frame{
		Tick:      tick,
		Offset:    step.Offset,
		Speed:     s.speed,
		Diff:      step.Diff,
		Mutations: step.Mutations,
	})
}

// TickSecond runs once per second of frames: roll the rate window and refresh stats.
func (s *Simulation) TickSecond(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Stats.Scroll = s.scroller.Stats()
	s.Stats.Speed = s.speed
	s.Stats.FramesPerSec = s.windowFrames
	s.Stats.CrossingsPerSec = s.windowCrossings
	s.Stats.MutationsPerSec = s.windowMutations
	s.Stats.Subscribers = len(s.subs)
	s.Stats.PendingRecords = len(s.pending)
	s.windowFrames, s.windowCrossings, s.windowMutations = 0, 0, 0

	slog.Debug("sky second",
		"tick", tick,
		"offset", s.scroller.Offset(),
		"crossings", s.Stats.CrossingsPerSec,
		"mutations", s.Stats.MutationsPerSec,
	)
}

// Snapshot returns a copy of the buffer and offset.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.scroller.Config()
	buf := s.scroller.Buffer()
	return Snapshot{
		Tick:     s.LastTick,
		Width:    buf.Width(),
		Height:   buf.Height(),
		Variants: cfg.Variants,
		Cells:    buf.Snapshot(),
		Offset:   s.scroller.Offset(),
		Period:   cfg.Period(),
		Speed:    s.speed,
	}
}

// GetStats returns a copy of the latest aggregate statistics.
func (s *Simulation) GetStats() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.Stats
	st.Scroll = s.scroller.Stats()
	st.Subscribers = len(s.subs)
	st.PendingRecords = len(s.pending)
	return st
}

// Speed returns the velocity applied on the last frame.
func (s *Simulation) Speed() world.FracHex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// ForceShift slides the buffer by diff outside the normal scroll, e.g. from
// an admin request. The resulting frame is broadcast like any other.
func (s *Simulation) ForceShift(diff sky.TileDiff) []sky.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	muts := s.scroller.Shift(diff, s.rng)
	if len(muts) == 0 {
		return nil
	}
	s.addEventLocked(s.LastTick, "admin", fmt.Sprintf("forced shift %s", diff))
	s.broadcastLocked(Frame{
		Tick:      s.LastTick,
		Offset:    s.scroller.Offset(),
		Speed:     s.speed,
		Diff:      diff,
		Mutations: muts,
	})
	return muts
}

// AddEvent appends an event to the recent-event ring.
func (s *Simulation) AddEvent(category, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEventLocked(s.LastTick, category, description)
}

func (s *Simulation) addEventLocked(tick uint64, category, description string) {
	s.events = append(s.events, Event{Tick: tick, Description: description, Category: category})
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	if len(s.pendingEvents) < maxEvents {
		s.pendingEvents = append(s.pendingEvents, s.events[len(s.events)-1])
	}
	slog.Info("sky event", "tick", tick, "category", category, "description", description)
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

func (s *Simulation) pushRecordLocked(r FrameRecord) {
	if len(s.pending) >= maxPending {
		s.pending = s.pending[1:]
		s.Stats.DroppedRecords++
	}
	s.pending = append(s.pending, r)
}

// DrainFrames hands the buffered frame records to the caller and clears them.
func (s *Simulation) DrainFrames() []FrameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// DrainEvents hands events not yet drained to the caller and clears them.
func (s *Simulation) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingEvents
	s.pendingEvents = nil
	return out
}

// Subscribe registers a frame listener. Frames are dropped for a subscriber
// whose queue is full.
func (s *Simulation) Subscribe() (int, <-chan Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	ch := make(chan Frame, subscriberQueue)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Simulation) broadcastLocked(f Frame) {
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default:
			s.Stats.DroppedBroadcast++
		}
	}
}
