// Pedestrian seeding: scatters the requested number of pedestrians uniformly
// over a rectangular spawn region.
package peds

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/evacsim/internal/grid"
)

// ErrSpawnRegion is returned for malformed or out-of-room spawn regions.
var ErrSpawnRegion = errors.New("invalid spawn region")

// Region is an inclusive rectangle of grid cells.
type Region struct {
	RowFrom int `json:"row_from" yaml:"row_from"`
	RowTo   int `json:"row_to" yaml:"row_to"`
	ColFrom int `json:"col_from" yaml:"col_from"`
	ColTo   int `json:"col_to" yaml:"col_to"`
}

// InteriorRegion returns the region covering the whole interior of a
// rows×cols grid.
func InteriorRegion(rows, cols int) Region {
	return Region{RowFrom: 1, RowTo: rows - 2, ColFrom: 1, ColTo: cols - 2}
}

// IsZero reports whether the region is unset.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Check validates the bounds: from < to on both axes, and the rectangle must
// lie inside the interior of topo.
func (r Region) Check(topo *grid.Topology) error {
	if r.RowFrom >= r.RowTo {
		return fmt.Errorf("row_from %d >= row_to %d: %w", r.RowFrom, r.RowTo, ErrSpawnRegion)
	}
	if r.ColFrom >= r.ColTo {
		return fmt.Errorf("col_from %d >= col_to %d: %w", r.ColFrom, r.ColTo, ErrSpawnRegion)
	}
	rows, cols := topo.Dimensions()
	if r.RowFrom < 1 || r.ColFrom < 1 || r.RowTo > rows-2 || r.ColTo > cols-2 {
		return fmt.Errorf("%+v outside interior of %dx%d grid: %w", r, rows, cols, ErrSpawnRegion)
	}
	return nil
}

// Contains reports whether c lies inside the region.
func (r Region) Contains(c grid.Cell) bool {
	return c.Row >= r.RowFrom && c.Row <= r.RowTo && c.Col >= r.ColFrom && c.Col <= r.ColTo
}

// Cells returns the region's cells in row-major order.
func (r Region) Cells() []grid.Cell {
	cells := make([]grid.Cell, 0, (r.RowTo-r.RowFrom+1)*(r.ColTo-r.ColFrom+1))
	for row := r.RowFrom; row <= r.RowTo; row++ {
		for col := r.ColFrom; col <= r.ColTo; col++ {
			cells = append(cells, grid.C(row, col))
		}
	}
	return cells
}

// Shuffler is the slice of the random source seeding needs.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// SeedResult describes what Seed actually placed.
type SeedResult struct {
	Requested int
	Placed    int
	Capacity  int
	Clamped   bool // Requested exceeded Capacity and was reduced
}

// Seed builds an occupancy with count pedestrians spread uniformly at random
// over the passable cells of region. A count above the region's capacity is
// clamped with a warning rather than failing.
func Seed(topo *grid.Topology, region Region, count int, rng Shuffler) (*Occupancy, SeedResult, error) {
	if err := region.Check(topo); err != nil {
		return nil, SeedResult{}, err
	}
	if count < 0 {
		return nil, SeedResult{}, fmt.Errorf("negative pedestrian count %d: %w", count, ErrSpawnRegion)
	}

	var slots []grid.Cell
	for _, c := range region.Cells() {
		if topo.Passable(c) {
			slots = append(slots, c)
		}
	}

	res := SeedResult{Requested: count, Capacity: len(slots)}
	if count > len(slots) {
		slog.Warn("pedestrian count exceeds spawn region capacity, clamping",
			"requested", count,
			"capacity", len(slots),
		)
		count = len(slots)
		res.Clamped = true
	}
	res.Placed = count

	// count ones followed by zeros, permuted, laid over the slots.
	pattern := make([]uint8, len(slots))
	for i := 0; i < count; i++ {
		pattern[i] = 1
	}
	rng.Shuffle(len(pattern), func(i, j int) { pattern[i], pattern[j] = pattern[j], pattern[i] })

	occ := NewOccupancy(topo)
	for i, c := range slots {
		occ.cells[topo.Index(c)] = pattern[i]
	}

	slog.Debug("pedestrians seeded",
		"placed", res.Placed,
		"rows", fmt.Sprintf("[%d, %d]", region.RowFrom, region.RowTo),
		"cols", fmt.Sprintf("[%d, %d]", region.ColFrom, region.ColTo),
	)
	return occ, res, nil
}
