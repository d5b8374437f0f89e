// Command skywatch runs the sky watchdog for hexsky.
// It observes the scroller through the public API, triages each reading,
// and calms the wind via the admin API when shifts outrun the buffer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexsky/internal/watch"
)

// cooldownCycles is how many cycles must pass after a calming action before
// the watchdog will calm again.
const cooldownCycles = 2

func main() {
	level := slog.LevelInfo
	if os.Getenv("HEXSKY_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("HEXSKY_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("HEXSKY_ADMIN_KEY")
	intervalSec := envIntOrDefault("SKYWATCH_INTERVAL", 30)
	memoryPath := os.Getenv("SKYWATCH_MEMORY")

	if intervalSec < 1 {
		intervalSec = 1
	}
	interval := time.Duration(intervalSec) * time.Second

	observer := watch.NewObserver(apiURL)
	actor := watch.NewActor(apiURL, adminKey)
	if actor == nil {
		slog.Warn("HEXSKY_ADMIN_KEY not set, running observe-only")
	}
	mem := watch.LoadMemory(memoryPath)

	slog.Info("hexsky skywatch starting",
		"api_url", apiURL,
		"interval", interval,
		"memory", memoryPath,
		"remembered_cycles", len(mem.Records),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wait for skysim to answer before the first cycle.
	slog.Info("waiting for hexsky API...")
	if !waitForAPI(ctx, observer) {
		slog.Error("hexsky API did not become ready within 5 minutes")
		os.Exit(1)
	}

	w := &watcher{observer: observer, actor: actor, mem: mem}
	w.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cycle(ctx)
		case <-ctx.Done():
			slog.Info("received signal, shutting down")
			mem.Save()
			fmt.Println("Skywatch stopped.")
			return
		}
	}
}

// watcher carries state between cycles.
type watcher struct {
	observer *watch.Observer
	actor    *watch.Actor
	mem      *watch.CycleMemory
	prev     *watch.SkySnapshot
}

// cycle executes one observe → triage → decide → act pass.
func (w *watcher) cycle(ctx context.Context) {
	snap, err := w.observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}

	health := watch.Triage(w.prev, snap)
	w.prev = snap

	slog.Info("observation complete",
		"tick", humanize.Comma(int64(snap.Status.Tick)),
		"sim_time", snap.Status.SimTime,
		"level", health.Level,
		"crossings", humanize.Comma(int64(snap.Stats.Scroll.Crossings)),
		"mutations_per_sec", humanize.Comma(int64(snap.Stats.MutationsPerSec)),
	)
	for _, f := range health.Findings {
		slog.Warn("finding", "level", health.Level, "detail", f)
	}

	decision := watch.Decide(health, snap)
	if decision.Action != "none" && w.mem.CalmedRecently(cooldownCycles) {
		slog.Info("calming suppressed, cooling down", "rationale", decision.Rationale)
		decision = &watch.Decision{Action: "none", Rationale: "cooldown"}
	}

	rec := watch.CycleRecord{
		Tick:     snap.Status.Tick,
		RunID:    snap.Status.RunID,
		Level:    health.Level,
		Action:   decision.Action,
		Findings: health.Findings,
	}

	switch {
	case decision.Action == "none" || decision.Wind == nil:
		slog.Debug("skywatch cycle complete, no action", "rationale", decision.Rationale)
	case w.actor == nil:
		slog.Info("would calm wind (observe-only)",
			"q", fmt.Sprintf("%.3f", decision.Wind.Q),
			"r", fmt.Sprintf("%.3f", decision.Wind.R),
		)
		rec.Action = "none"
	default:
		state, err := w.actor.Act(ctx, decision)
		if err != nil {
			slog.Error("wind change failed", "error", err)
			rec.Action = "failed"
			break
		}
		slog.Info("wind calmed",
			"rationale", decision.Rationale,
			"base_q", fmt.Sprintf("%.3f", state.Base.Q),
			"base_r", fmt.Sprintf("%.3f", state.Base.R),
		)
	}

	w.mem.Record(rec)
	w.mem.Save()
	slog.Debug("recent cycles", "summary", w.mem.Summary())
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes or when ctx is cancelled.
func waitForAPI(ctx context.Context, o *watch.Observer) bool {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		if o.Ready(ctx) {
			slog.Info("hexsky API is ready")
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		slog.Info("hexsky not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
