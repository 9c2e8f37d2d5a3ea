package field

import (
	"fmt"

	"github.com/talgya/evacsim/internal/grid"
)

// Rand is the part of the random source the dynamic field draws from.
type Rand interface {
	Below(p float64) bool // One uniform draw in [0, 1) compared against p
	Intn(n int) int
}

// Params are the decay and diffusion probabilities applied per unit per step.
type Params struct {
	Decay     float64 // δ: probability a unit vanishes
	Diffusion float64 // α: probability a surviving unit hops to a neighbour
}

// Dynamic is the dynamic floor field: an integer trace count per cell left by
// departing pedestrians. Impassable cells always hold 0.
type Dynamic struct {
	topo   *grid.Topology
	res    *grid.Resolver
	rng    Rand
	params Params
	counts []int       // Flat index row*cols+col
	order  []grid.Cell // Passable interior cells, then exits
}

// NewDynamic creates an all-zero dynamic field.
func NewDynamic(res *grid.Resolver, rng Rand, params Params) *Dynamic {
	topo := res.Topology()
	return &Dynamic{
		topo:   topo,
		res:    res,
		rng:    rng,
		params: params,
		counts: make([]int, topo.Size()),
		order:  topo.ActiveCells(),
	}
}

// At returns the field value at c.
func (d *Dynamic) At(c grid.Cell) float64 {
	return float64(d.counts[d.topo.Index(c)])
}

// AtIndex returns the field value at flat index i.
func (d *Dynamic) AtIndex(i int) float64 {
	return float64(d.counts[i])
}

// Count returns the integer unit count at c.
func (d *Dynamic) Count(c grid.Cell) int {
	return d.counts[d.topo.Index(c)]
}

// Add deposits n units at c.
func (d *Dynamic) Add(c grid.Cell, n int) {
	d.counts[d.topo.Index(c)] += n
}

// Total returns the number of units on the grid.
func (d *Dynamic) Total() int {
	total := 0
	for _, n := range d.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the field in flat row-major order.
func (d *Dynamic) Counts() []int {
	out := make([]int, len(d.counts))
	copy(out, d.counts)
	return out
}

// Update adds the step's departure counts and then runs one decay/diffusion
// pass. Each unit present when its cell is visited decays with probability δ;
// otherwise it hops to a uniformly chosen neighbour with probability α.
// Units that hop into a cell not yet visited this pass are processed again
// when that cell comes up.
func (d *Dynamic) Update(departures []int) error {
	if len(departures) != len(d.counts) {
		return fmt.Errorf("departures cover %d cells, grid has %d: %w", len(departures), len(d.counts), ErrInvariant)
	}
	for i, n := range departures {
		d.counts[i] += n
	}

	for _, c := range d.order {
		idx := d.topo.Index(c)
		units := d.counts[idx]
		for u := 0; u < units; u++ {
			if d.rng.Below(d.params.Decay) {
				d.counts[idx]--
				continue
			}
			if d.rng.Below(d.params.Diffusion) {
				nbs := d.res.Neighbors(c)
				if len(nbs) == 0 {
					continue
				}
				target := nbs[d.rng.Intn(len(nbs))]
				d.counts[idx]--
				d.counts[d.topo.Index(target)]++
			}
		}
	}

	return d.Validate()
}

// Validate checks that no count is negative and impassable cells hold 0.
func (d *Dynamic) Validate() error {
	for i, n := range d.counts {
		if n < 0 {
			return fmt.Errorf("dynamic field at %s = %d: %w", d.topo.CellAt(i), n, ErrInvariant)
		}
		if n != 0 && !d.topo.Passable(d.topo.CellAt(i)) {
			return fmt.Errorf("dynamic field at impassable %s = %d: %w", d.topo.CellAt(i), n, ErrInvariant)
		}
	}
	return nil
}
