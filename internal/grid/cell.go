// Package grid provides the rectangular cell grid the evacuation model runs on:
// geometry, wall/exit classification and neighbour resolution.
// Coordinates are (row, col); row 0 and col 0 belong to the ghost boundary.
package grid

import "fmt"

// CellSize is the edge length of one cell in metres.
const CellSize = 0.4

// dimensionEpsilon guards the float→int conversion of width/CellSize against
// values like 4.999999999 for a 2.0 m wide room.
const dimensionEpsilon = 1e-8

// Wall-mask values. Anything negative is impassable.
const (
	WallImpassable = -1
	WallPassable   = 1
)

// Cell is a grid coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// C is shorthand for Cell{Row: row, Col: col}.
func C(row, col int) Cell {
	return Cell{Row: row, Col: col}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Class is the classification of a cell in the wall mask.
type Class uint8

const (
	ClassInterior   Class = iota // Passable interior cell
	ClassImpassable              // Ghost boundary or obstacle
	ClassExit                    // Passable boundary cell acting as a sink
)

// ClassName returns a human-readable name for a cell class.
func ClassName(c Class) string {
	switch c {
	case ClassInterior:
		return "interior"
	case ClassImpassable:
		return "impassable"
	case ClassExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Side identifies one of the four walls of the room.
type Side uint8

const (
	SideTop Side = iota
	SideRight
	SideBottom
	SideLeft
)

// AllSides lists the four sides in placement order.
var AllSides = []Side{SideTop, SideRight, SideBottom, SideLeft}

// ParseSide maps a config name to a Side.
func ParseSide(name string) (Side, error) {
	switch name {
	case "top":
		return SideTop, nil
	case "right":
		return SideRight, nil
	case "bottom":
		return SideBottom, nil
	case "left":
		return SideLeft, nil
	}
	return 0, fmt.Errorf("unknown side %q", name)
}

// SideName returns the config name of a side.
func SideName(s Side) string {
	switch s {
	case SideTop:
		return "top"
	case SideRight:
		return "right"
	case SideBottom:
		return "bottom"
	case SideLeft:
		return "left"
	default:
		return "unknown"
	}
}
