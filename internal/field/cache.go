package field

import (
	"log/slog"
	"sync"

	"github.com/talgya/evacsim/internal/grid"
)

type staticKey struct {
	topo *grid.Topology
	conn grid.Connectivity
}

// StaticCache computes each static field once per (topology, connectivity)
// and hands out the same immutable field afterwards.
type StaticCache struct {
	mu     sync.Mutex
	fields map[staticKey]*Static
	hits   int
}

// NewStaticCache creates an empty cache.
func NewStaticCache() *StaticCache {
	return &StaticCache{fields: make(map[staticKey]*Static)}
}

// Get returns the static field for res's topology and connectivity,
// computing and validating it on first use.
func (c *StaticCache) Get(res *grid.Resolver) (*Static, error) {
	key := staticKey{topo: res.Topology(), conn: res.Connectivity()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.fields[key]; ok {
		c.hits++
		return s, nil
	}

	s := ComputeStatic(res)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c.fields[key] = s
	slog.Debug("static floor field computed", "topology", key.topo.String(), "connectivity", key.conn.String())
	return s, nil
}

// Len returns the number of cached fields.
func (c *StaticCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fields)
}

// Hits returns how many lookups were served from the cache.
func (c *StaticCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
