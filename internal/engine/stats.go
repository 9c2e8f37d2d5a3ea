package engine

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/evacsim/internal/config"
)

// RunResult is the outcome of one run.
type RunResult struct {
	Index     int           `json:"index"`
	Steps     int           `json:"steps"`      // Steps executed
	EvacSteps int           `json:"evac_steps"` // Zero-based index of the last step
	EvacTime  float64       `json:"evac_time"`  // EvacSteps × StepDuration, seconds
	Initial   int           `json:"initial"`
	Remaining int           `json:"remaining"`
	Evacuated bool          `json:"evacuated"` // Room empty at the end
	Clamped   bool          `json:"clamped"`   // Pedestrian count was clamped at seeding
	Stopped   bool          `json:"stopped"`
	WallClock time.Duration `json:"wall_clock"`
}

// Report aggregates the runs of a batch.
type Report struct {
	Pedestrians  int           `json:"pedestrians"`
	Width        float64       `json:"width"`
	Height       float64       `json:"height"`
	KappaS       float64       `json:"kappa_s"`
	KappaD       float64       `json:"kappa_d"`
	Runs         []RunResult   `json:"runs"`
	MeanEvacTime float64       `json:"mean_evac_time"` // Seconds
	StdEvacTime  float64       `json:"std_evac_time"`
	TotalSimTime float64       `json:"total_sim_time"` // Σ evacuation time, seconds
	WallClock    time.Duration `json:"wall_clock"`
	Factor       float64       `json:"factor"` // Simulated seconds per wall-clock second
	Stopped      bool          `json:"stopped"`
}

// NewReport computes batch statistics over results.
func NewReport(cfg config.Config, results []RunResult, wall time.Duration, stopped bool) Report {
	r := Report{
		Pedestrians: cfg.Pedestrians,
		Width:       cfg.Width,
		Height:      cfg.Height,
		KappaS:      cfg.KappaS,
		KappaD:      cfg.KappaD,
		Runs:        results,
		WallClock:   wall,
		Stopped:     stopped,
	}
	if len(results) == 0 {
		return r
	}
	// Seeding may clamp the request; report what was actually placed.
	r.Pedestrians = results[0].Initial

	times := make([]float64, len(results))
	for i, res := range results {
		times[i] = res.EvacTime
	}
	r.TotalSimTime = floats.Sum(times)
	if len(times) > 1 {
		r.MeanEvacTime, r.StdEvacTime = stat.MeanStdDev(times, nil)
	} else {
		r.MeanEvacTime = times[0]
	}
	if secs := wall.Seconds(); secs > 0 {
		r.Factor = r.TotalSimTime / secs
	}
	return r
}

// Evacuated returns how many runs emptied the room.
func (r Report) Evacuated() int {
	n := 0
	for _, res := range r.Runs {
		if res.Evacuated {
			n++
		}
	}
	return n
}
