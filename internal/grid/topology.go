package grid

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDegenerateGrid is returned when the derived grid has no interior.
	ErrDegenerateGrid = errors.New("degenerate grid dimensions")
	// ErrExitPlacement is returned when an exit would not fit on its side.
	ErrExitPlacement = errors.New("exit does not fit on side")
)

// DefaultExitWidth is the number of adjacent cells forming one exit.
const DefaultExitWidth = 2

// ExitLayout describes where exits are cut into the ghost boundary.
// Each listed side gets one exit of Width cells starting at the side's midpoint.
type ExitLayout struct {
	Sides []Side
	Width int
}

// DefaultExitLayout returns one two-cell exit on each of the four sides.
func DefaultExitLayout() ExitLayout {
	return ExitLayout{Sides: AllSides, Width: DefaultExitWidth}
}

// Layout holds everything needed to build a Topology.
type Layout struct {
	Width     float64 // Room width in metres (columns)
	Height    float64 // Room height in metres (rows)
	Exits     ExitLayout
	Obstacles []Cell // Interior cells to mark impassable
}

// Topology is the immutable wall mask of a room. Its pointer identity is the
// cache key for anything derived from it.
type Topology struct {
	rows, cols int
	class      []Class // Flat index row*cols+col
	exits      []Cell
	obstacles  int
}

// Dimensions converts a physical room size into grid rows and columns,
// including the ghost ring.
func Dimensions(width, height float64) (rows, cols int) {
	rows = int(height/CellSize + 2 + dimensionEpsilon)
	cols = int(width/CellSize + 2 + dimensionEpsilon)
	return rows, cols
}

// ExitCells returns the exit cells of the layout on a rows×cols grid, in side
// order. Each exit starts at the side's midpoint and extends Width cells
// toward increasing row/col.
func ExitCells(rows, cols int, layout ExitLayout) ([]Cell, error) {
	width := layout.Width
	if width <= 0 {
		width = DefaultExitWidth
	}
	var exits []Cell
	seen := make(map[Cell]bool)
	for _, side := range layout.Sides {
		for k := 0; k < width; k++ {
			var c Cell
			switch side {
			case SideTop:
				c = C(0, cols/2+k)
			case SideBottom:
				c = C(rows-1, cols/2+k)
			case SideLeft:
				c = C(rows/2+k, 0)
			case SideRight:
				c = C(rows/2+k, cols-1)
			default:
				return nil, fmt.Errorf("side %d: %w", side, ErrExitPlacement)
			}
			// Corners are never exits: their only neighbours are boundary cells.
			switch side {
			case SideTop, SideBottom:
				if c.Col < 1 || c.Col > cols-2 {
					return nil, fmt.Errorf("%s exit cell %s: %w", SideName(side), c, ErrExitPlacement)
				}
			default:
				if c.Row < 1 || c.Row > rows-2 {
					return nil, fmt.Errorf("%s exit cell %s: %w", SideName(side), c, ErrExitPlacement)
				}
			}
			if !seen[c] {
				seen[c] = true
				exits = append(exits, c)
			}
		}
	}
	return exits, nil
}

// New builds the topology for a layout. The boundary ring is impassable
// except for exit cells; listed obstacles are impassable unless they are exits.
func New(layout Layout) (*Topology, error) {
	rows, cols := Dimensions(layout.Width, layout.Height)
	if rows <= 2 || cols <= 2 {
		return nil, fmt.Errorf("%dx%d from %.2fx%.2f m: %w", rows, cols, layout.Width, layout.Height, ErrDegenerateGrid)
	}

	exits, err := ExitCells(rows, cols, layout.Exits)
	if err != nil {
		return nil, err
	}

	t := &Topology{
		rows:  rows,
		cols:  cols,
		class: make([]Class, rows*cols),
		exits: exits,
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if r == 0 || c == 0 || r == rows-1 || c == cols-1 {
				t.class[r*cols+c] = ClassImpassable
			}
		}
	}
	for _, o := range layout.Obstacles {
		if !t.InBounds(o) || t.class[t.Index(o)] != ClassInterior {
			continue
		}
		t.class[t.Index(o)] = ClassImpassable
		t.obstacles++
	}
	for _, e := range exits {
		t.class[t.Index(e)] = ClassExit
	}

	return t, nil
}

// Dimensions returns the grid size including the ghost ring.
func (t *Topology) Dimensions() (rows, cols int) {
	return t.rows, t.cols
}

// Rows returns the number of grid rows.
func (t *Topology) Rows() int { return t.rows }

// Cols returns the number of grid columns.
func (t *Topology) Cols() int { return t.cols }

// Size returns the number of cells in the grid.
func (t *Topology) Size() int { return t.rows * t.cols }

// Index returns the flat index of c.
func (t *Topology) Index(c Cell) int {
	return c.Row*t.cols + c.Col
}

// CellAt returns the cell at flat index i.
func (t *Topology) CellAt(i int) Cell {
	return C(i/t.cols, i%t.cols)
}

// InBounds reports whether c lies on the grid.
func (t *Topology) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Col >= 0 && c.Row < t.rows && c.Col < t.cols
}

// Classify returns the class of c. Out-of-bounds cells are impassable.
func (t *Topology) Classify(c Cell) Class {
	if !t.InBounds(c) {
		return ClassImpassable
	}
	return t.class[t.Index(c)]
}

// Wall returns the wall-mask value of c: negative for impassable cells.
func (t *Topology) Wall(c Cell) int {
	if t.Classify(c) == ClassImpassable {
		return WallImpassable
	}
	return WallPassable
}

// Passable reports whether pedestrians may stand on c.
func (t *Topology) Passable(c Cell) bool {
	return t.Wall(c) >= 0
}

// IsExit reports whether c is an exit cell.
func (t *Topology) IsExit(c Cell) bool {
	return t.Classify(c) == ClassExit
}

// ExitCells returns a copy of the exit cells in placement order.
func (t *Topology) ExitCells() []Cell {
	out := make([]Cell, len(t.exits))
	copy(out, t.exits)
	return out
}

// ObstacleCount returns the number of interior cells turned into obstacles.
func (t *Topology) ObstacleCount() int {
	return t.obstacles
}

// Diagonal returns the grid diagonal length, the sentinel distance for cells
// no exit can reach.
func (t *Topology) Diagonal() float64 {
	return math.Sqrt(float64(t.rows*t.rows + t.cols*t.cols))
}

// ActiveCells returns every passable interior cell in row-major order followed
// by the exit cells. This is the identity scan order of a step.
func (t *Topology) ActiveCells() []Cell {
	cells := make([]Cell, 0, (t.rows-2)*(t.cols-2)+len(t.exits))
	for r := 1; r < t.rows-1; r++ {
		for c := 1; c < t.cols-1; c++ {
			if t.class[r*t.cols+c] == ClassInterior {
				cells = append(cells, C(r, c))
			}
		}
	}
	return append(cells, t.exits...)
}

// String returns a summary of the topology.
func (t *Topology) String() string {
	return fmt.Sprintf("Topology(%dx%d, exits=%d, obstacles=%d)", t.rows, t.cols, len(t.exits), t.obstacles)
}
