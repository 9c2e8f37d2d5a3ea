// Simulation ties together the immutable scenario (room, neighbourhoods,
// static field) and hands out fresh per-run state.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/field"
	"github.com/talgya/evacsim/internal/grid"
	"github.com/talgya/evacsim/internal/peds"
)

// VMax is the free walking speed in m/s; one step moves a pedestrian one cell.
const VMax = 1.2

// StepDuration is the simulated time of one step in seconds.
const StepDuration = grid.CellSize / VMax

// Simulation holds state shared by every run of a batch. Topology, resolver
// and static field are built once; occupancy and dynamic field are per run.
type Simulation struct {
	Config   config.Config
	Topology *grid.Topology
	Resolver *grid.Resolver
	Region   peds.Region

	rng     *entropy.Source
	statics *field.StaticCache
	scan    config.ScanOrder
}

// NewSimulation builds the room described by cfg. All randomness of the batch
// is drawn from rng, in a fixed sequence, so a seed reproduces the batch.
// statics may be shared between simulations over the same topology; nil
// creates a private cache.
func NewSimulation(cfg config.Config, rng *entropy.Source, statics *field.StaticCache) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := cfg.Connectivity()
	if err != nil {
		return nil, err
	}
	scan, err := cfg.ScanOrder()
	if err != nil {
		return nil, err
	}
	exits, err := cfg.ExitLayout()
	if err != nil {
		return nil, err
	}

	rows, cols := grid.Dimensions(cfg.Width, cfg.Height)
	region := cfg.SpawnRegion(rows, cols)

	layout := grid.Layout{Width: cfg.Width, Height: cfg.Height, Exits: exits}
	if cfg.Obstacles.Density > 0 {
		exitCells, err := grid.ExitCells(rows, cols, exits)
		if err != nil {
			return nil, fmt.Errorf("topology: %w", err)
		}
		layout.Obstacles = grid.GenerateObstacles(rows, cols, exitCells, region.Contains, grid.ObstacleConfig{
			Density: cfg.Obstacles.Density,
			Scale:   cfg.Obstacles.Scale,
			Seed:    rng.Seed() + 1,
		})
	}

	topo, err := grid.New(layout)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	if err := region.Check(topo); err != nil {
		return nil, err
	}

	if statics == nil {
		statics = field.NewStaticCache()
	}
	sim := &Simulation{
		Config:   cfg,
		Topology: topo,
		Resolver: grid.NewResolver(topo, conn, rng, cfg.MemoizeNeighbors),
		Region:   region,
		rng:      rng,
		statics:  statics,
		scan:     scan,
	}
	if _, err := sim.Static(); err != nil {
		return nil, err
	}

	slog.Info("simulation ready",
		"grid", topo.String(),
		"connectivity", conn.String(),
		"scan_order", scan.String(),
		"memoize_neighbors", cfg.MemoizeNeighbors,
		"seed", rng.Seed(),
	)
	return sim, nil
}

// Static returns the static floor field of the simulation's topology.
func (s *Simulation) Static() (*field.Static, error) {
	sff, err := s.statics.Get(s.Resolver)
	if err != nil {
		return nil, fmt.Errorf("static floor field: %w", err)
	}
	return sff, nil
}

// Seed returns the seed of the batch's random stream.
func (s *Simulation) Seed() int64 {
	return s.rng.Seed()
}

// Run is the mutable state of one evacuation run.
type Run struct {
	Index     int
	Step      int // Steps executed so far
	Occupancy *peds.Occupancy
	Dynamic   *field.Dynamic
	Seeding   peds.SeedResult
	Evacuated int

	stepper *Stepper
}

// NewRun seeds fresh pedestrians and a zero dynamic field.
func (s *Simulation) NewRun(index int) (*Run, error) {
	sff, err := s.Static()
	if err != nil {
		return nil, err
	}
	occ, seeding, err := peds.Seed(s.Topology, s.Region, s.Config.Pedestrians, s.rng)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", index, err)
	}
	dff := field.NewDynamic(s.Resolver, s.rng, field.Params{
		Decay:     s.Config.Decay,
		Diffusion: s.Config.Diffusion,
	})
	return &Run{
		Index:     index,
		Occupancy: occ,
		Dynamic:   dff,
		Seeding:   seeding,
		stepper:   NewStepper(s.Resolver, sff, s.rng, s.Config.KappaS, s.Config.KappaD, s.scan),
	}, nil
}

// Advance executes one step of the run.
func (r *Run) Advance() (StepStats, error) {
	next, stats, err := r.stepper.Step(r.Occupancy, r.Dynamic)
	if err != nil {
		return stats, fmt.Errorf("run %d step %d: %w", r.Index, r.Step+1, err)
	}
	r.Occupancy = next
	r.Step++
	r.Evacuated += stats.Evacuated
	return stats, nil
}

// Done reports whether every pedestrian has left.
func (r *Run) Done() bool {
	return r.Occupancy.Empty()
}
