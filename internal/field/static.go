// Package field provides the two floor fields that steer pedestrians:
// the static distance-to-exit field and the dynamic trace field.
package field

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/evacsim/internal/grid"
)

// ErrInvariant reports a floor field that broke one of its invariants.
// It always indicates an internal-consistency fault.
var ErrInvariant = errors.New("floor field invariant violated")

// Static is the static floor field: per-cell shortest-path distance, in
// steps, to the nearest exit. Immutable once computed.
type Static struct {
	topo        *grid.Topology
	conn        grid.Connectivity
	values      []float64 // Flat index row*cols+col
	unreachable float64   // Sentinel for cells no exit reaches
}

// ComputeStatic propagates distances from every exit over the passable cells
// reachable through res.
//
// All exits are seeded with 0 and queued. Cells are popped FIFO; any neighbour
// whose distance exceeds popped+1 is lowered and re-queued. With unit edge
// weights this label-correcting pass converges to the BFS distances.
func ComputeStatic(res *grid.Resolver) *Static {
	topo := res.Topology()
	s := &Static{
		topo:        topo,
		conn:        res.Connectivity(),
		values:      make([]float64, topo.Size()),
		unreachable: topo.Diagonal(),
	}
	for i := range s.values {
		s.values[i] = s.unreachable
	}

	queue := make([]grid.Cell, 0, topo.Size())
	for _, e := range topo.ExitCells() {
		s.values[topo.Index(e)] = 0
		queue = append(queue, e)
	}

	for head := 0; head < len(queue); head++ {
		cell := queue[head]
		next := s.values[topo.Index(cell)] + 1
		for _, nb := range res.Neighbors(cell) {
			if idx := topo.Index(nb); next < s.values[idx] {
				s.values[idx] = next
				queue = append(queue, nb)
			}
		}
	}

	return s
}

// At returns the distance at c.
func (s *Static) At(c grid.Cell) float64 {
	return s.values[s.topo.Index(c)]
}

// AtIndex returns the distance at flat index i.
func (s *Static) AtIndex(i int) float64 {
	return s.values[i]
}

// Values returns a copy of the field in flat row-major order.
func (s *Static) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Unreachable returns the sentinel carried by cells no exit can reach.
func (s *Static) Unreachable() float64 {
	return s.unreachable
}

// Topology returns the topology the field was computed on.
func (s *Static) Topology() *grid.Topology {
	return s.topo
}

// Validate checks that every value is finite and non-negative, every exit is
// 0, and passable neighbours differ by at most 1.
func (s *Static) Validate() error {
	for i, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("static field at %s = %v: %w", s.topo.CellAt(i), v, ErrInvariant)
		}
	}
	for _, e := range s.topo.ExitCells() {
		if v := s.At(e); v != 0 {
			return fmt.Errorf("static field at exit %s = %v: %w", e, v, ErrInvariant)
		}
	}
	for i, v := range s.values {
		c := s.topo.CellAt(i)
		if !s.topo.Passable(c) {
			continue
		}
		for _, nb := range s.topo.Adjacent(c, s.conn) {
			if d := math.Abs(v - s.At(nb)); d > 1 {
				return fmt.Errorf("static field jumps %v between %s and %s: %w", d, c, nb, ErrInvariant)
			}
		}
	}
	return nil
}
