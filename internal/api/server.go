// Package api provides the HTTP API for observing the sky.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
// The frame stream requires the relay key or a relay token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/hexsky/internal/engine"
	"github.com/talgya/hexsky/internal/persistence"
	"github.com/talgya/hexsky/internal/sky"
	"github.com/talgya/hexsky/internal/weather"
	"github.com/talgya/hexsky/internal/world"
)

const maxSSEConns = 4

// Server serves the sky over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Wind     *weather.Wind   // Nil = wind endpoint disabled.
	DB       *persistence.DB // Nil = history endpoint disabled.
	RunID    string          // Recorder run the history endpoint reads.
	Tokens   *TokenIssuer    // Nil = relay tokens disabled.
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for the frame stream. Empty = only relay tokens accepted.

	// Proxies (IPs or CIDRs) whose X-Forwarded-For the history limiter believes.
	TrustedProxies []string

	// Active stream connection counts (atomic).
	sseConns int32
	wsConns  int32
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	// Rate limiter for endpoints that read the recorder database.
	historyLimiter := NewRateLimiter(60, time.Minute)
	if err := historyLimiter.TrustProxies(s.TrustedProxies...); err != nil {
		slog.Warn("ignoring trusted proxies", "error", err)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/sky", s.handleSky)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/pixel", s.handlePixel)
	mux.HandleFunc("/api/v1/history", RateLimitMiddleware(historyLimiter, s.handleHistory))

	// Frame streams (GET, relay credentials).
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", s.handleWS)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/wind", s.adminOnly(s.handleWind))
	mux.HandleFunc("/api/v1/shift", s.adminOnly(s.handleShift))
	mux.HandleFunc("/api/v1/token", s.adminOnly(s.handleToken))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can
// be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "", "relay_tokens", s.Tokens != nil)

	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	cfg := s.Sim.Config()
	snap := s.Sim.Snapshot()
	base := snap.Speed
	if s.Wind != nil {
		base = s.Wind.Base()
	}

	status := map[string]any{
		"name":      "hexsky",
		"tick":      tick,
		"sim_time":  engine.SimTime(tick, s.Eng.FramesPerSecond()),
		"speed":     s.Eng.GetSpeed(),
		"running":   s.Eng.IsRunning(),
		"width":     cfg.Width,
		"height":    cfg.Height,
		"variants":  cfg.Variants,
		"offset":    snap.Offset,
		"period":    snap.Period,
		"wind":      snap.Speed,
		"wind_base": base,
		"run_id":    s.RunID,
	}
	writeJSON(w, status)
}

func (s *Server) handleSky(w http.ResponseWriter, r *http.Request) {
	type skyResponse struct {
		engine.Snapshot
		TileWidth  float64 `json:"tile_width"`
		TileHeight float64 `json:"tile_height"`
	}
	cfg := s.Sim.Config()
	writeJSON(w, skyResponse{
		Snapshot:   s.Sim.Snapshot(),
		TileWidth:  cfg.TileWidth,
		TileHeight: cfg.TileHeight,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GetStats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(0)

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	if events == nil {
		events = []engine.Event{}
	}

	writeJSON(w, events[start:])
}

// handlePixel converts a sky-space pixel to hex coordinates, both in the
// fixed layout and under the current scroll offset.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil || !finite(x) || !finite(y) {
		http.Error(w, "x and y must be numbers", http.StatusBadRequest)
		return
	}

	layout := s.Sim.Config().Layout()
	p := world.Point{X: x, Y: y}
	frac := layout.FromPixel(p)
	hex := frac.Round()
	scrolled := layout.PixelToHex(p.Sub(s.Sim.Snapshot().Offset))

	writeJSON(w, map[string]any{
		"point":    p,
		"frac":     frac,
		"hex":      hex,
		"center":   layout.HexToPixel(hex),
		"scrolled": scrolled,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil || s.RunID == "" {
		http.Error(w, "history disabled (no recorder)", http.StatusServiceUnavailable)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	frames, err := s.DB.RecentFrames(s.RunID, limit)
	if err != nil {
		slog.Error("history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	events, err := s.DB.RecentEvents(s.RunID, limit)
	if err != nil {
		slog.Error("history events query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	summary, err := s.DB.RunSummary(s.RunID)
	if err != nil {
		slog.Error("run summary failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if frames == nil {
		frames = []engine.FrameRecord{}
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, map[string]any{
		"summary": summary,
		"frames":  frames,
		"events":  events,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 100 || math.IsNaN(req.Speed) {
			http.Error(w, "speed must be 0-100", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		s.Sim.AddEvent("admin", fmt.Sprintf("engine speed set to %.2f", req.Speed))
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.GetSpeed()})
}

func (s *Server) handleWind(w http.ResponseWriter, r *http.Request) {
	if s.Wind == nil {
		http.Error(w, "wind control disabled", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Q         float64  `json:"q"`
			R         float64  `json:"r"`
			Duration  float64  `json:"duration"` // Seconds to ease over
			Gustiness *float64 `json:"gustiness,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !finite(req.Q) || !finite(req.R) || !finite(req.Duration) || math.Abs(req.Q) > 100 || math.Abs(req.R) > 100 {
			http.Error(w, "q and r must be finite and within ±100 hex/s", http.StatusBadRequest)
			return
		}
		target := world.FracHex{Q: req.Q, R: req.R}
		s.Wind.SetTarget(target, req.Duration)
		if req.Gustiness != nil {
			s.Wind.SetGustiness(*req.Gustiness)
		}
		s.Sim.AddEvent("wind", fmt.Sprintf("wind retargeted to %s over %.1fs", target, req.Duration))
	}

	writeJSON(w, map[string]any{
		"base":      s.Wind.Base(),
		"current":   s.Wind.Current(),
		"gustiness": s.Wind.Gustiness(),
	})
}

// handleShift forces a buffer shift of whole tile periods.
func (s *Server) handleShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var diff sky.TileDiff
	if err := json.NewDecoder(r.Body).Decode(&diff); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	muts := s.Sim.ForceShift(diff)
	writeJSON(w, map[string]any{
		"diff":      diff,
		"mutations": len(muts),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.Tokens == nil {
		http.Error(w, "relay tokens disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Subject) == "" {
		http.Error(w, "subject required", http.StatusBadRequest)
		return
	}
	tok, exp, err := s.Tokens.Issue(strings.TrimSpace(req.Subject))
	if err != nil {
		slog.Error("token issue failed", "error", err)
		http.Error(w, "token unavailable", http.StatusInternalServerError)
		return
	}
	slog.Info("relay token issued", "subject", req.Subject, "expires", exp)
	writeJSON(w, map[string]any{
		"token":      tok,
		"expires_at": exp.Unix(),
	})
}

// handleStream provides an SSE endpoint for real-time frame streaming.
// Requires relay credentials and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	client, code := s.relayAuthorized(r)
	if code != http.StatusOK {
		http.Error(w, http.StatusText(code), code)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	crossingsOnly := r.URL.Query().Get("crossings") == "1"
	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	// Catch-up: full snapshot first.
	writeSSE(w, "snapshot", s.Sim.Snapshot())
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID, "client", client)

	// Stream loop with heartbeat.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			if crossingsOnly && f.Diff.IsZero() {
				continue
			}
			writeSSE(w, "frame", f)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSE writes a single message in SSE format.
func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
