// Package peds holds the pedestrian occupancy grid and its initial seeding.
package peds

import (
	"errors"
	"fmt"

	"github.com/talgya/evacsim/internal/grid"
)

// ErrOccupancy reports an occupancy value outside {0, 1} or a pedestrian on
// an impassable cell.
var ErrOccupancy = errors.New("occupancy invariant violated")

// Occupancy is a binary grid: 1 where a pedestrian stands.
type Occupancy struct {
	topo  *grid.Topology
	cells []uint8 // Flat index row*cols+col
}

// NewOccupancy creates an empty occupancy grid.
func NewOccupancy(topo *grid.Topology) *Occupancy {
	return &Occupancy{
		topo:  topo,
		cells: make([]uint8, topo.Size()),
	}
}

// Topology returns the grid the occupancy lives on.
func (o *Occupancy) Topology() *grid.Topology { return o.topo }

// Occupied reports whether a pedestrian stands on c.
func (o *Occupancy) Occupied(c grid.Cell) bool {
	return o.cells[o.topo.Index(c)] != 0
}

// OccupiedIndex reports whether flat index i is occupied.
func (o *Occupancy) OccupiedIndex(i int) bool {
	return o.cells[i] != 0
}

// Set marks c occupied or vacant.
func (o *Occupancy) Set(c grid.Cell, occupied bool) {
	var v uint8
	if occupied {
		v = 1
	}
	o.cells[o.topo.Index(c)] = v
}

// Count returns the number of pedestrians on the grid.
func (o *Occupancy) Count() int {
	n := 0
	for _, v := range o.cells {
		n += int(v)
	}
	return n
}

// Empty reports whether every pedestrian has left.
func (o *Occupancy) Empty() bool {
	for _, v := range o.cells {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (o *Occupancy) Clone() *Occupancy {
	c := &Occupancy{topo: o.topo, cells: make([]uint8, len(o.cells))}
	copy(c.cells, o.cells)
	return c
}

// Cells returns a copy of the grid in flat row-major order.
func (o *Occupancy) Cells() []uint8 {
	out := make([]uint8, len(o.cells))
	copy(out, o.cells)
	return out
}

// Validate checks that every value is 0 or 1 and impassable cells are empty.
func (o *Occupancy) Validate() error {
	for i, v := range o.cells {
		if v > 1 {
			return fmt.Errorf("occupancy at %s = %d: %w", o.topo.CellAt(i), v, ErrOccupancy)
		}
		if v == 1 && !o.topo.Passable(o.topo.CellAt(i)) {
			return fmt.Errorf("pedestrian on impassable %s: %w", o.topo.CellAt(i), ErrOccupancy)
		}
	}
	return nil
}
