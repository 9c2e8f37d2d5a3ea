package field

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/grid"
)

// smallRoom is a 7x7 grid (5x5 interior) with one exit pair at (3,6),(4,6).
func smallRoom(t *testing.T, obstacles ...grid.Cell) *grid.Topology {
	t.Helper()
	topo, err := grid.New(grid.Layout{
		Width: 2.0, Height: 2.0,
		Exits:     grid.ExitLayout{Sides: []grid.Side{grid.SideRight}, Width: 2},
		Obstacles: obstacles,
	})
	require.NoError(t, err)
	return topo
}

func TestStaticVonNeumann(t *testing.T) {
	topo := smallRoom(t)
	res := grid.NewResolver(topo, grid.VonNeumann, entropy.New(1), true)
	sff := ComputeStatic(res)

	require.NoError(t, sff.Validate())
	assert.Equal(t, 0.0, sff.At(grid.C(3, 6)))
	assert.Equal(t, 0.0, sff.At(grid.C(4, 6)))
	assert.Equal(t, 1.0, sff.At(grid.C(3, 5)))
	assert.Equal(t, 1.0, sff.At(grid.C(4, 5)))
	assert.Equal(t, 2.0, sff.At(grid.C(2, 5)))
	assert.Equal(t, 7.0, sff.At(grid.C(1, 1)))
	assert.Equal(t, 6.0, sff.At(grid.C(5, 1)))

	// Ring cells keep the diagonal sentinel.
	assert.Equal(t, math.Sqrt(98), sff.At(grid.C(0, 0)))
	assert.Equal(t, sff.Unreachable(), sff.At(grid.C(2, 6)))
}

func TestStaticMoore(t *testing.T) {
	topo := smallRoom(t)
	res := grid.NewResolver(topo, grid.Moore, entropy.New(1), false)
	sff := ComputeStatic(res)

	require.NoError(t, sff.Validate())
	assert.Equal(t, 5.0, sff.At(grid.C(1, 1)))
	assert.Equal(t, 1.0, sff.At(grid.C(2, 5)))
	assert.Equal(t, 1.0, sff.At(grid.C(5, 5)))
}

func TestStaticUnreachablePocket(t *testing.T) {
	topo := smallRoom(t, grid.C(1, 2), grid.C(2, 1))
	res := grid.NewResolver(topo, grid.VonNeumann, entropy.New(1), true)
	sff := ComputeStatic(res)

	require.NoError(t, sff.Validate())
	assert.Equal(t, sff.Unreachable(), sff.At(grid.C(1, 1)))
	assert.Equal(t, 5.0, sff.At(grid.C(2, 2)))
}

func TestStaticInvariantsHold(t *testing.T) {
	topo, err := grid.New(grid.Layout{Width: 6.0, Height: 4.4, Exits: grid.DefaultExitLayout()})
	require.NoError(t, err)

	for _, conn := range []grid.Connectivity{grid.VonNeumann, grid.Moore} {
		res := grid.NewResolver(topo, conn, entropy.New(11), false)
		sff := ComputeStatic(res)
		require.NoError(t, sff.Validate())
		for _, c := range topo.ActiveCells() {
			v := sff.At(c)
			assert.True(t, v >= 0 && v < sff.Unreachable(), "cell %s = %v", c, v)
		}
	}
}

func TestStaticCache(t *testing.T) {
	topo := smallRoom(t)
	rng := entropy.New(2)
	cache := NewStaticCache()

	vn := grid.NewResolver(topo, grid.VonNeumann, rng, true)
	a, err := cache.Get(vn)
	require.NoError(t, err)
	b, err := cache.Get(vn)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, cache.Hits())

	moore := grid.NewResolver(topo, grid.Moore, rng, true)
	c, err := cache.Get(moore)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, cache.Len())

	other := smallRoom(t)
	d, err := cache.Get(grid.NewResolver(other, grid.VonNeumann, rng, true))
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, a.Values(), d.Values())
}

func TestDynamicSingleNeighbourDiffusion(t *testing.T) {
	// (5,5) has a single passable neighbour, (4,5), once (5,4) is blocked.
	topo := smallRoom(t, grid.C(5, 4))
	rng := entropy.New(3)
	res := grid.NewResolver(topo, grid.VonNeumann, rng, true)
	require.Equal(t, []grid.Cell{grid.C(4, 5)}, res.Neighbors(grid.C(5, 5)))

	dff := NewDynamic(res, rng, Params{Decay: 0, Diffusion: 1})
	dff.Add(grid.C(5, 5), 1)

	require.NoError(t, dff.Update(make([]int, topo.Size())))
	assert.Equal(t, 0, dff.Count(grid.C(5, 5)))
	assert.Equal(t, 1, dff.Count(grid.C(4, 5)))
	assert.Equal(t, 1, dff.Total())
}

func TestDynamicDecayRemovesEverything(t *testing.T) {
	topo := smallRoom(t)
	rng := entropy.New(4)
	res := grid.NewResolver(topo, grid.VonNeumann, rng, true)
	dff := NewDynamic(res, rng, Params{Decay: 1, Diffusion: 1})

	departures := make([]int, topo.Size())
	departures[topo.Index(grid.C(2, 2))] = 3
	departures[topo.Index(grid.C(3, 6))] = 2
	require.NoError(t, dff.Update(departures))
	assert.Equal(t, 0, dff.Total())
}

func TestDynamicFrozenWithoutDecayOrDiffusion(t *testing.T) {
	topo := smallRoom(t)
	rng := entropy.New(4)
	res := grid.NewResolver(topo, grid.VonNeumann, rng, true)
	dff := NewDynamic(res, rng, Params{})

	departures := make([]int, topo.Size())
	departures[topo.Index(grid.C(2, 2))] = 3
	require.NoError(t, dff.Update(departures))
	require.NoError(t, dff.Update(departures))
	assert.Equal(t, 6, dff.Count(grid.C(2, 2)))
	assert.Equal(t, 6.0, dff.At(grid.C(2, 2)))
}

func TestDynamicDiffusionConservesUnits(t *testing.T) {
	topo := smallRoom(t)
	rng := entropy.New(5)
	res := grid.NewResolver(topo, grid.Moore, rng, false)
	dff := NewDynamic(res, rng, Params{Decay: 0, Diffusion: 0.7})

	departures := make([]int, topo.Size())
	for _, c := range topo.ActiveCells() {
		departures[topo.Index(c)] = 2
	}
	for step := 0; step < 30; step++ {
		require.NoError(t, dff.Update(departures))
		departures = make([]int, topo.Size())
	}
	assert.Equal(t, 2*len(topo.ActiveCells()), dff.Total())
	for i, n := range dff.Counts() {
		if !topo.Passable(topo.CellAt(i)) {
			assert.Zero(t, n)
		}
	}
}

func TestDynamicRejectsImpassableDeposit(t *testing.T) {
	topo := smallRoom(t)
	rng := entropy.New(6)
	dff := NewDynamic(grid.NewResolver(topo, grid.VonNeumann, rng, true), rng, Params{})

	departures := make([]int, topo.Size())
	departures[topo.Index(grid.C(0, 0))] = 1
	assert.ErrorIs(t, dff.Update(departures), ErrInvariant)

	assert.ErrorIs(t, dff.Update(make([]int, 3)), ErrInvariant)
}
