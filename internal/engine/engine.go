// Package engine provides the step loop that drives evacuation runs.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is the state handed to observers after every step.
type Snapshot struct {
	Run       int       `json:"run"`
	Step      int       `json:"step"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Occupancy []uint8   `json:"occupancy"` // Flat row-major, 0/1
	Dynamic   []int     `json:"dynamic"`   // Flat row-major trace counts
	Occupied  int       `json:"occupied"`
	Stats     StepStats `json:"stats"`
}

// Status is a cheap view of where the engine is.
type Status struct {
	Running   bool `json:"running"`
	Run       int  `json:"run"`
	Step      int  `json:"step"`
	Occupied  int  `json:"occupied"`
	Evacuated int  `json:"evacuated"`
}

// Engine drives the runs of a simulation forward.
type Engine struct {
	Sim *Simulation

	// Callbacks, set before RunBatch.
	OnStep   func(Snapshot)  // After every committed step
	OnRunEnd func(RunResult) // After every finished run

	stop atomic.Bool

	mu     sync.RWMutex
	status Status
}

// NewEngine creates an engine for sim.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{Sim: sim}
}

// Stop ends the batch after the step in progress.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Status returns the current position of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// RunBatch executes the configured number of runs in sequence and returns the
// aggregate report. An error aborts the batch; the report then covers the
// runs finished before it.
func (e *Engine) RunBatch() (Report, error) {
	cfg := e.Sim.Config
	slog.Info("batch started", "runs", cfg.Runs, "pedestrians", cfg.Pedestrians, "max_steps", cfg.MaxSteps)

	start := time.Now()
	var results []RunResult
	for i := 0; i < cfg.Runs; i++ {
		if e.stop.Load() {
			break
		}
		res, err := e.RunOne(i)
		if err != nil {
			e.setStatus(Status{})
			return NewReport(cfg, results, time.Since(start), e.stop.Load()), err
		}
		results = append(results, res)
	}
	e.setStatus(Status{})

	report := NewReport(cfg, results, time.Since(start), e.stop.Load())
	slog.Info("batch finished", "runs", len(results), "stopped", report.Stopped)
	return report, nil
}

// RunOne executes a single run until the room is empty, the step cap is
// reached, or Stop is called.
func (e *Engine) RunOne(index int) (RunResult, error) {
	run, err := e.Sim.NewRun(index)
	if err != nil {
		return RunResult{}, err
	}

	maxSteps := e.Sim.Config.MaxSteps
	start := time.Now()
	t := 0
	for ; t < maxSteps; t++ {
		stats, err := run.Advance()
		if err != nil {
			return RunResult{}, err
		}

		occupied := run.Occupancy.Count()
		e.setStatus(Status{
			Running:   true,
			Run:       index,
			Step:      run.Step,
			Occupied:  occupied,
			Evacuated: run.Evacuated,
		})
		if e.OnStep != nil {
			e.OnStep(Snapshot{
				Run:       index,
				Step:      run.Step,
				Rows:      e.Sim.Topology.Rows(),
				Cols:      e.Sim.Topology.Cols(),
				Occupancy: run.Occupancy.Cells(),
				Dynamic:   run.Dynamic.Counts(),
				Occupied:  occupied,
				Stats:     stats,
			})
		}

		if occupied == 0 || e.stop.Load() {
			break
		}
	}
	if t == maxSteps {
		t = maxSteps - 1
	}

	res := RunResult{
		Index:     index,
		Steps:     run.Step,
		EvacSteps: t,
		EvacTime:  float64(t) * StepDuration,
		Initial:   run.Seeding.Placed,
		Remaining: run.Occupancy.Count(),
		Evacuated: run.Done(),
		Clamped:   run.Seeding.Clamped,
		Stopped:   e.stop.Load() && !run.Done(),
		WallClock: time.Since(start),
	}
	if !res.Evacuated && !res.Stopped {
		slog.Warn("step cap reached before evacuation finished",
			"run", index,
			"max_steps", maxSteps,
			"remaining", res.Remaining,
		)
	}
	slog.Info("run finished",
		"run", index,
		"steps", res.Steps,
		"evac_time_s", res.EvacTime,
		"remaining", res.Remaining,
	)
	if e.OnRunEnd != nil {
		e.OnRunEnd(res)
	}
	return res, nil
}
