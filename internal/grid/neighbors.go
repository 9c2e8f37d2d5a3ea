package grid

import "fmt"

// Connectivity selects which adjacent cells count as neighbours.
type Connectivity uint8

const (
	VonNeumann Connectivity = iota // 4 orthogonal neighbours
	Moore                          // plus the 4 diagonals
)

// ParseConnectivity maps a config name to a Connectivity.
func ParseConnectivity(name string) (Connectivity, error) {
	switch name {
	case "von-neumann", "vonneumann", "4":
		return VonNeumann, nil
	case "moore", "8":
		return Moore, nil
	}
	return 0, fmt.Errorf("unknown connectivity %q", name)
}

func (c Connectivity) String() string {
	if c == Moore {
		return "moore"
	}
	return "von-neumann"
}

// Candidate offsets in the order they are examined before shuffling:
// down, up, right, left, then the diagonals.
var (
	orthogonalOffsets = [4]Cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonalOffsets   = [4]Cell{{-1, -1}, {1, 1}, {1, -1}, {-1, 1}}
)

// Shuffler is the slice of the random source the resolver needs.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Resolver enumerates the passable neighbours of a cell in random order.
//
// With memoization on, the order drawn on a cell's first lookup is frozen and
// returned on every later lookup. With it off, every call draws a new order.
type Resolver struct {
	topo  *Topology
	conn  Connectivity
	rng   Shuffler
	memo  bool
	cache [][]Cell // Flat index; nil until first lookup
}

// NewResolver creates a resolver over topo drawing its shuffles from rng.
func NewResolver(topo *Topology, conn Connectivity, rng Shuffler, memoize bool) *Resolver {
	r := &Resolver{
		topo: topo,
		conn: conn,
		rng:  rng,
		memo: memoize,
	}
	if memoize {
		r.cache = make([][]Cell, topo.Size())
	}
	return r
}

// Topology returns the topology the resolver works on.
func (r *Resolver) Topology() *Topology { return r.topo }

// Connectivity returns the configured neighbourhood.
func (r *Resolver) Connectivity() Connectivity { return r.conn }

// Memoized reports whether neighbour orders are frozen after the first lookup.
func (r *Resolver) Memoized() bool { return r.memo }

// Neighbors returns the in-bounds, non-negative-wall neighbours of c.
// The returned slice must not be modified by the caller.
func (r *Resolver) Neighbors(c Cell) []Cell {
	if r.memo {
		idx := r.topo.Index(c)
		if cached := r.cache[idx]; cached != nil {
			return cached
		}
		n := r.resolve(c)
		r.cache[idx] = n
		return n
	}
	return r.resolve(c)
}

func (r *Resolver) resolve(c Cell) []Cell {
	n := r.topo.Adjacent(c, r.conn)
	r.rng.Shuffle(len(n), func(i, j int) { n[i], n[j] = n[j], n[i] })
	return n
}

// Adjacent returns the passable neighbours of c in fixed examination order:
// down, up, right, left, then (for Moore) the diagonals.
func (t *Topology) Adjacent(c Cell, conn Connectivity) []Cell {
	n := make([]Cell, 0, 8)
	for _, d := range orthogonalOffsets {
		if nb := C(c.Row+d.Row, c.Col+d.Col); t.InBounds(nb) && t.Wall(nb) >= 0 {
			n = append(n, nb)
		}
	}
	if conn == Moore {
		for _, d := range diagonalOffsets {
			if nb := C(c.Row+d.Row, c.Col+d.Col); t.InBounds(nb) && t.Wall(nb) >= 0 {
				n = append(n, nb)
			}
		}
	}
	return n
}
