package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/field"
	"github.com/talgya/evacsim/internal/grid"
	"github.com/talgya/evacsim/internal/peds"
)

// ErrInvariant reports a post-step consistency failure. It is fatal for the run.
var ErrInvariant = errors.New("post-step invariant violated")

// Rand is the part of the random source the stepper draws from.
type Rand interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// StepStats counts what happened in one step.
type StepStats struct {
	Moved     int // Pedestrians that changed cell
	Evacuated int // Pedestrians removed from exit cells
	Stuck     int // Pedestrians with zero total transition weight
}

// Stepper applies the sequential floor-field update rule.
type Stepper struct {
	topo   *grid.Topology
	res    *grid.Resolver
	sff    *field.Static
	rng    Rand
	kappaS float64
	kappaD float64
	scan   config.ScanOrder

	order    []grid.Cell // Current scan order; shuffled in place for ScanShuffled
	reversed []grid.Cell
	weights  []float64 // Scratch, reused across cells
}

// NewStepper creates a stepper over the static field's topology.
func NewStepper(res *grid.Resolver, sff *field.Static, rng Rand, kappaS, kappaD float64, scan config.ScanOrder) *Stepper {
	topo := res.Topology()
	order := topo.ActiveCells()
	reversed := make([]grid.Cell, len(order))
	for i, c := range order {
		reversed[len(order)-1-i] = c
	}
	return &Stepper{
		topo:     topo,
		res:      res,
		sff:      sff,
		rng:      rng,
		kappaS:   kappaS,
		kappaD:   kappaD,
		scan:     scan,
		order:    order,
		reversed: reversed,
		weights:  make([]float64, 0, 8),
	}
}

func (st *Stepper) scanOrder() []grid.Cell {
	switch st.scan {
	case config.ScanShuffled:
		st.rng.Shuffle(len(st.order), func(i, j int) { st.order[i], st.order[j] = st.order[j], st.order[i] })
		return st.order
	case config.ScanReversed:
		return st.reversed
	default:
		return st.order
	}
}

// Step advances occ by one time step and feeds the departures into dff.
// occ is read-only; the returned occupancy is the committed next state.
//
// Occupancy is read from the current grid, destination availability from the
// next-state buffer: a cell entered earlier in the scan is closed to later
// movers, a cell vacated earlier is open to them.
func (st *Stepper) Step(occ *peds.Occupancy, dff *field.Dynamic) (*peds.Occupancy, StepStats, error) {
	var stats StepStats
	next := occ.Clone()
	departures := make([]int, st.topo.Size())
	before := occ.Count()

	for _, c := range st.scanOrder() {
		if !occ.Occupied(c) {
			continue
		}
		idx := st.topo.Index(c)

		if st.topo.IsExit(c) {
			next.Set(c, false)
			departures[idx]++
			stats.Evacuated++
			continue
		}

		nbs := st.res.Neighbors(c)
		dest, ok := st.choose(c, nbs, next, dff)
		if !ok {
			stats.Stuck++
			continue
		}
		next.Set(dest, true)
		next.Set(c, false)
		departures[idx]++
		stats.Moved++
	}

	if err := next.Validate(); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	if after := next.Count(); after != before-stats.Evacuated {
		return nil, stats, fmt.Errorf("%w: %d pedestrians before, %d evacuated, %d after", ErrInvariant, before, stats.Evacuated, after)
	}
	if err := dff.Update(departures); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return next, stats, nil
}

// choose draws the destination of the pedestrian on c. nbs is evaluated once
// and used in the same order for summing and for selection.
func (st *Stepper) choose(c grid.Cell, nbs []grid.Cell, next *peds.Occupancy, dff *field.Dynamic) (grid.Cell, bool) {
	st.weights = st.weights[:0]
	sum := 0.0
	sc, dc := st.sff.At(c), dff.At(c)
	for _, nb := range nbs {
		w := 0.0
		if !next.Occupied(nb) {
			// One exponent: a product of two factors turns Inf·0 into NaN.
			w = math.Exp(st.kappaS*(sc-st.sff.At(nb)) + st.kappaD*(dff.At(nb)-dc))
		}
		st.weights = append(st.weights, w)
		sum += w
	}
	if sum == 0 || math.IsNaN(sum) {
		return grid.Cell{}, false
	}

	// An overflowing weight dominates everything finite.
	if math.IsInf(sum, 1) {
		for i, w := range st.weights {
			if math.IsInf(w, 1) {
				return nbs[i], true
			}
		}
	}

	r := st.rng.Float64() * sum
	last := -1
	for i, w := range st.weights {
		if w <= 0 {
			continue
		}
		last = i
		r -= w
		if r <= 0 {
			return nbs[i], true
		}
	}
	// Rounding left r marginally positive: the last open neighbour takes it.
	return nbs[last], true
}
