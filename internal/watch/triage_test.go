package watch

import (
	"math"
	"testing"
)

func snapshot(tick, reseeds, clamped, dropped uint64) *SkySnapshot {
	return &SkySnapshot{
		Status: SkyStatus{
			Tick:     tick,
			Speed:    1,
			Running:  true,
			Offset:   Point{X: 0.5, Y: -0.5},
			Period:   Point{X: 1.7, Y: 3},
			Wind:     Velocity{Q: 1, R: 0},
			WindBase: Velocity{Q: 1, R: 0},
			RunID:    "run",
		},
		Stats: SkyStats{
			Scroll:           ScrollStats{Ticks: tick, FullReseeds: reseeds, Clamped: clamped},
			DroppedBroadcast: dropped,
		},
	}
}

func TestTriage(t *testing.T) {
	tests := []struct {
		name  string
		prev  *SkySnapshot
		cur   *SkySnapshot
		level string
	}{
		{"first cycle", nil, snapshot(10, 0, 0, 0), LevelHealthy},
		{"steady", snapshot(10, 0, 0, 0), snapshot(70, 0, 0, 0), LevelHealthy},
		{"stalled", snapshot(10, 0, 0, 0), snapshot(10, 0, 0, 0), LevelCritical},
		{"reseeds", snapshot(10, 1, 0, 0), snapshot(70, 3, 0, 0), LevelWarning},
		{"clamped", snapshot(10, 0, 0, 0), snapshot(70, 0, 2, 0), LevelWatch},
		{"dropped", snapshot(10, 0, 0, 0), snapshot(70, 0, 0, 5), LevelWatch},
		{"restart", snapshot(100, 9, 0, 0), snapshot(5, 0, 0, 0), LevelWatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Triage(tt.prev, tt.cur)
			if h.Level != tt.level {
				t.Errorf("level = %s, want %s (findings %v)", h.Level, tt.level, h.Findings)
			}
		})
	}
}

func TestTriageDeltas(t *testing.T) {
	h := Triage(snapshot(10, 1, 0, 0), snapshot(70, 3, 1, 0))
	if h.TicksAdvanced != 60 || h.FullReseeds != 2 || h.Clamped != 1 {
		t.Errorf("health = %+v", h)
	}
	if len(h.Findings) != 2 {
		t.Errorf("findings = %v", h.Findings)
	}
}

func TestTriageRestartSkipsDeltas(t *testing.T) {
	prev := snapshot(10, 0, 0, 0)
	cur := snapshot(70, 4, 0, 0)
	cur.Status.RunID = "other"
	h := Triage(prev, cur)
	if !h.Restarted || h.FullReseeds != 0 {
		t.Errorf("health = %+v", h)
	}
}

func TestTriageOffsetOutOfBounds(t *testing.T) {
	cur := snapshot(10, 0, 0, 0)
	cur.Status.Offset.X = 2
	if h := Triage(nil, cur); h.Level != LevelCritical || h.OffsetInBounds {
		t.Errorf("health = %+v", h)
	}
	cur.Status.Offset.X = math.NaN()
	if h := Triage(nil, cur); h.OffsetInBounds {
		t.Error("NaN offset should be out of bounds")
	}
}

func TestTriagePausedIsNotStalled(t *testing.T) {
	prev := snapshot(10, 0, 0, 0)
	cur := snapshot(10, 0, 0, 0)
	cur.Status.Speed = 0
	if h := Triage(prev, cur); h.Stalled {
		t.Error("paused engine reported stalled")
	}
}

func TestMagnitude(t *testing.T) {
	tests := []struct {
		v    Velocity
		want float64
	}{
		{Velocity{Q: 1}, 1},
		{Velocity{R: 1}, 1},
		{Velocity{Q: 1, R: -1}, 1},
		{Velocity{Q: 2, R: -1}, math.Sqrt(3)},
	}
	for _, tt := range tests {
		if got := magnitude(tt.v); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("magnitude(%+v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
