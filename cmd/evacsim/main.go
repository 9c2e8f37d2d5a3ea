// Command evacsim runs a batch of floor-field evacuation simulations.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/evacsim/internal/api"
	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/persistence"
)

func main() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if path := os.Getenv("EVACSIM_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			slog.Error("failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("config loaded", "path", path)
	} else {
		slog.Info("EVACSIM_CONFIG not set, using defaults")
	}

	dbPath := os.Getenv("EVACSIM_DB")
	if dbPath == "" {
		dbPath = "data/evacsim.db"
	}
	apiPort := 0
	if p := os.Getenv("EVACSIM_PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 || v > 65535 {
			slog.Error("invalid EVACSIM_PORT", "value", p)
			os.Exit(1)
		}
		apiPort = v
	}

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if dbPath != "off" {
		os.MkdirAll(filepath.Dir(dbPath), 0755)
		var err error
		db, err = persistence.Open(dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", dbPath)
	}

	// ── Simulation ────────────────────────────────────────────────────
	rng := entropy.New(cfg.Seed)
	sim, err := engine.NewSimulation(cfg, rng, nil)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	eng := engine.NewEngine(sim)

	batchID := ""
	if db != nil {
		batchID, err = db.StartBatch(cfg, sim.Seed())
		if err != nil {
			slog.Error("failed to record batch", "error", err)
			os.Exit(1)
		}
		slog.Info("batch recorded", "id", batchID)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if apiPort > 0 {
		apiServer = &api.Server{Sim: sim, Eng: eng, DB: db, Port: apiPort}
		apiServer.SetBatch(batchID)
		apiServer.Start()
	}

	// Wire step callbacks: live view every step, persisted samples every
	// snapshot_every steps.
	eng.OnStep = func(snap engine.Snapshot) {
		if apiServer != nil {
			apiServer.ObserveStep(snap)
		}
		if db != nil && cfg.SnapshotEvery > 0 && snap.Step%cfg.SnapshotEvery == 0 {
			if err := db.SaveSnapshot(batchID, snap); err != nil {
				slog.Error("snapshot save failed", "run", snap.Run, "step", snap.Step, "error", err)
			}
		}
	}
	eng.OnRunEnd = func(res engine.RunResult) {
		if db == nil {
			return
		}
		if err := db.SaveRun(batchID, res); err != nil {
			slog.Error("run save failed", "run", res.Index, "error", err)
		}
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping after current step", "signal", sig)
		eng.Stop()
	}()

	rows, cols := sim.Topology.Dimensions()
	fmt.Printf("\nEvacuating %s pedestrians from a %.1f m × %.1f m room (%d×%d cells, %d exits).\n",
		humanize.Comma(int64(cfg.Pedestrians)), cfg.Width, cfg.Height, rows, cols, len(sim.Topology.ExitCells()))
	if apiPort > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	}
	fmt.Println("Running batch... (Ctrl+C to stop)")

	report, err := eng.RunBatch()
	if db != nil && len(report.Runs) > 0 {
		if ferr := db.FinishBatch(batchID, report); ferr != nil {
			slog.Error("batch save failed", "error", ferr)
		}
	}
	if err != nil {
		slog.Error("batch aborted", "error", err, "runs_completed", len(report.Runs))
		os.Exit(1)
	}

	printReport(report)
}

// printReport writes the end-of-batch summary.
func printReport(r engine.Report) {
	slog.Info("batch summary",
		"pedestrians", r.Pedestrians,
		"width_m", r.Width,
		"height_m", r.Height,
		"kappa_s", r.KappaS,
		"kappa_d", r.KappaD,
		"runs", len(r.Runs),
		"evacuated_runs", r.Evacuated(),
		"mean_evac_time_s", r.MeanEvacTime,
		"std_evac_time_s", r.StdEvacTime,
		"wall_clock", r.WallClock,
		"factor", r.Factor,
	)

	fmt.Println()
	fmt.Printf("Pedestrians:      %s\n", humanize.Comma(int64(r.Pedestrians)))
	fmt.Printf("Space:            %s m × %s m\n", humanize.Ftoa(r.Width), humanize.Ftoa(r.Height))
	fmt.Printf("κS / κD:          %s / %s\n", humanize.Ftoa(r.KappaS), humanize.Ftoa(r.KappaD))
	fmt.Printf("Runs:             %s (%s evacuated)\n", humanize.Comma(int64(len(r.Runs))), humanize.Comma(int64(r.Evacuated())))
	fmt.Printf("Evacuation time:  %s s (σ %s s)\n",
		humanize.FtoaWithDigits(r.MeanEvacTime, 2), humanize.FtoaWithDigits(r.StdEvacTime, 2))
	fmt.Printf("Wall clock:       %s\n", r.WallClock.Round(time.Millisecond))
	fmt.Printf("Real-time factor: %s×\n", humanize.FtoaWithDigits(r.Factor, 1))
	if r.Stopped {
		fmt.Println("Batch stopped early.")
	}
}
