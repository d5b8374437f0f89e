// Package watch implements the sky watchdog.
// It observes the sky through the public API, triages the readings against
// the scroller's invariants, and optionally calms the wind through the admin
// API when shifts keep outrunning the buffer.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Point mirrors world.Point on the wire.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Velocity mirrors world.FracHex on the wire.
type Velocity struct {
	Q float64 `json:"q"`
	R float64 `json:"r"`
}

// SkySnapshot holds all data collected during an observation cycle.
type SkySnapshot struct {
	Status SkyStatus `json:"status"`
	Stats  SkyStats  `json:"stats"`
	At     time.Time `json:"at"`
}

// SkyStatus mirrors GET /api/v1/status.
type SkyStatus struct {
	Name     string   `json:"name"`
	Tick     uint64   `json:"tick"`
	SimTime  string   `json:"sim_time"`
	Speed    float64  `json:"speed"`
	Running  bool     `json:"running"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Variants int      `json:"variants"`
	Offset   Point    `json:"offset"`
	Period   Point    `json:"period"`
	Wind     Velocity `json:"wind"`      // gusted, last frame
	WindBase Velocity `json:"wind_base"` // before gusts
	RunID    string   `json:"run_id"`
}

// ScrollStats mirrors the scroller counters inside GET /api/v1/stats.
type ScrollStats struct {
	Ticks       uint64 `json:"ticks"`
	Crossings   uint64 `json:"crossings"`
	Copied      uint64 `json:"copied"`
	Reseeded    uint64 `json:"reseeded"`
	Dropped     uint64 `json:"dropped"`
	FullReseeds uint64 `json:"full_reseeds"`
	Clamped     uint64 `json:"clamped"`
}

// SkyStats mirrors GET /api/v1/stats.
type SkyStats struct {
	Scroll           ScrollStats `json:"scroll"`
	CrossingsPerSec  int         `json:"crossings_per_sec"`
	MutationsPerSec  int         `json:"mutations_per_sec"`
	FramesPerSec     int         `json:"frames_per_sec"`
	Subscribers      int         `json:"subscribers"`
	PendingRecords   int         `json:"pending_records"`
	DroppedRecords   uint64      `json:"dropped_records"`
	DroppedBroadcast uint64      `json:"dropped_broadcast"`
}

// Observer fetches sky state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and stats and returns a SkySnapshot.
func (o *Observer) Observe(ctx context.Context) (*SkySnapshot, error) {
	snap := &SkySnapshot{At: time.Now()}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/stats", &snap.Stats); err != nil {
		return nil, fmt.Errorf("fetch stats: %w", err)
	}

	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
