// Command skysim runs the infinite hex sky headless and serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexsky/internal/api"
	"github.com/talgya/hexsky/internal/engine"
	"github.com/talgya/hexsky/internal/entropy"
	"github.com/talgya/hexsky/internal/persistence"
	"github.com/talgya/hexsky/internal/sky"
	"github.com/talgya/hexsky/internal/weather"
	"github.com/talgya/hexsky/internal/world"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("HEXSKY_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("hexsky starting")

	apiPort := envIntOrDefault("HEXSKY_PORT", 8080)
	dbPath := envOrDefault("HEXSKY_DB", "data/hexsky.db")

	// ── Configuration ─────────────────────────────────────────────────
	cfg := sky.DefaultConfig()
	cfg.Width = envIntOrDefault("HEXSKY_WIDTH", cfg.Width)
	cfg.Height = envIntOrDefault("HEXSKY_HEIGHT", cfg.Height)
	cfg.Variants = envIntOrDefault("HEXSKY_VARIANTS", cfg.Variants)
	cfg.Speed = world.FracHex{
		Q: envFloatOrDefault("HEXSKY_SPEED_Q", cfg.Speed.Q),
		R: envFloatOrDefault("HEXSKY_SPEED_R", cfg.Speed.R),
	}
	cfg.MaxStep = envFloatOrDefault("HEXSKY_MAX_STEP", cfg.MaxStep)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid sky configuration", "error", err)
		os.Exit(1)
	}

	// ── Seed ──────────────────────────────────────────────────────────
	// An explicit seed replays a sky; otherwise draw one from random.org
	// (crypto/rand without a key). The frame loop itself never blocks on it.
	seed := int64(envIntOrDefault("HEXSKY_SEED", 0))
	if seed == 0 {
		rng := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY"))
		seed = int64(rng.IntN(1<<31-1)) + 1
		slog.Info("seed drawn", "seed", seed, "random_org", rng != nil)
	}
	tiles := entropy.NewSeeded(seed)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	var runID string
	if dbPath != "none" {
		var err error
		db, runID, err = openRecorder(dbPath, cfg, seed)
		if err != nil {
			slog.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
		slog.Info("database opened", "path", dbPath, "run", runID)
	} else {
		slog.Warn("HEXSKY_DB=none, diagnostics recorder disabled")
	}

	// fatal closes the recorder before exiting.
	fatal := func(msg string, err error) {
		slog.Error(msg, "error", err)
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}

	// ── Sky ───────────────────────────────────────────────────────────
	scroller, err := sky.NewScroller(cfg, tiles)
	if err != nil {
		fatal("failed to build sky", err)
	}
	wind := weather.NewWind(cfg.Speed, envFloatOrDefault("HEXSKY_GUSTINESS", 0.15), seed)
	sim := engine.NewSimulation(scroller, tiles, wind)

	slog.Info("sky ready",
		"width", cfg.Width,
		"height", cfg.Height,
		"variants", cfg.Variants,
		"speed", cfg.Speed,
		"period", cfg.Period(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Real weather ──────────────────────────────────────────────────
	weatherClient := weather.NewClient(os.Getenv("OPENWEATHER_API_KEY"), os.Getenv("OPENWEATHER_LOCATION"))
	if weatherClient != nil {
		scale := envFloatOrDefault("HEXSKY_WIND_SCALE", 0.1)
		go wind.Follow(ctx, weatherClient, scale, 10*time.Minute)
		slog.Info("wind follows OpenWeatherMap", "scale", scale)
	} else {
		slog.Info("OPENWEATHER_API_KEY not set, wind stays on the configured speed")
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	if fps := envIntOrDefault("HEXSKY_FPS", engine.FramesPerSecond); fps > 0 {
		eng.Interval = time.Second / time.Duration(fps)
	}

	eng.OnFrame = sim.TickFrame
	eng.OnSecond = sim.TickSecond
	eng.OnMinute = func(tick uint64) {
		st := sim.GetStats()
		slog.Info("sky minute",
			"sim_time", engine.SimTime(tick, eng.FramesPerSecond()),
			"crossings", humanize.Comma(int64(st.Scroll.Crossings)),
			"reseeded", humanize.Comma(int64(st.Scroll.Reseeded)),
			"subscribers", st.Subscribers,
		)
	}

	if db != nil {
		go recordLoop(ctx, db, runID, sim, 5*time.Second)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("HEXSKY_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("HEXSKY_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	tokens, err := api.NewTokenIssuer([]byte(os.Getenv("HEXSKY_TOKEN_KEY")), 24*time.Hour)
	if err != nil {
		fatal("failed to create token issuer", err)
	}

	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Wind:     wind,
		DB:       db,
		RunID:    runID,
		Tokens:   tokens,
		Port:     apiPort,
		AdminKey: adminKey,
		RelayKey: os.Getenv("HEXSKY_RELAY_KEY"),
	}
	if proxies := os.Getenv("HEXSKY_TRUSTED_PROXIES"); proxies != "" {
		apiServer.TrustedProxies = strings.Split(proxies, ",")
	}
	httpServer := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	fmt.Printf("\nThe sky is open: %d×%d tiles, %d variants, seed %d.\n", cfg.Width, cfg.Height, cfg.Variants, seed)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Scrolling... (Ctrl+C to stop)")

	started := time.Now()
	eng.Run(ctx)

	// ── Shutdown ──────────────────────────────────────────────────────
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	if db != nil {
		defer db.Close()
		slog.Info("final flush...")
		if err := db.Flush(runID, sim); err != nil {
			slog.Error("final flush failed", "error", err)
		}
		if err := db.EndRun(runID, eng.Tick()); err != nil {
			slog.Error("end run failed", "error", err)
		}
		if sum, err := db.RunSummary(runID); err == nil {
			fmt.Printf("Run %s: %s recorded crossings, %s tile writes, %s reseeds, %s clamped frames.\n",
				sum.RunID,
				humanize.Comma(int64(sum.Frames)),
				humanize.Comma(int64(sum.TotalMutations)),
				humanize.Comma(int64(sum.TotalReseeded)),
				humanize.Comma(int64(sum.ClampedFrames)),
			)
		}
	}

	fmt.Printf("Sky closed after %s of scrolling (%s frames, started %s).\n",
		engine.SimTime(eng.Tick(), eng.FramesPerSecond()),
		humanize.Comma(int64(eng.Tick())),
		humanize.Time(started),
	)
}

// openRecorder opens the diagnostics database, creating its directory, and
// starts a run. The database is closed again on any error.
func openRecorder(path string, cfg sky.Config, seed int64) (*persistence.DB, string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, "", fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, "", err
	}
	runID, err := db.StartRun(cfg)
	if err != nil {
		db.Close()
		return nil, "", fmt.Errorf("start run: %w", err)
	}
	if err := db.SaveMeta("last_run", runID); err != nil {
		slog.Warn("save meta failed", "error", err)
	}
	if err := db.SaveMeta("last_seed", strconv.FormatInt(seed, 10)); err != nil {
		slog.Warn("save meta failed", "error", err)
	}
	return db, runID, nil
}

// recordLoop flushes the simulation's pending diagnostics every interval.
func recordLoop(ctx context.Context, db *persistence.DB, runID string, sim *engine.Simulation, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Flush(runID, sim); err != nil {
				slog.Error("diagnostics flush failed", "error", err)
			}
		}
	}
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
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
	}
	return defaultVal
}
