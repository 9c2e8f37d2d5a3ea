// Obstacle generation using layered simplex noise.
// Produces blob-shaped furniture/pillars inside the room.
package grid

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// ObstacleConfig controls noise-based obstacle placement.
type ObstacleConfig struct {
	Density float64 // 0 disables; roughly the fraction of the noise range that becomes obstacle
	Scale   float64 // Noise frequency per cell (default 0.25)
	Seed    int64
}

// GenerateObstacles returns the interior cells of a rows×cols grid whose noise
// value lies in the top Density of the range. Cells adjacent to an exit and
// cells for which keepClear returns true are never chosen.
func GenerateObstacles(rows, cols int, exits []Cell, keepClear func(Cell) bool, cfg ObstacleConfig) []Cell {
	if cfg.Density <= 0 {
		return nil
	}
	scale := cfg.Scale
	if scale <= 0 {
		scale = 0.25
	}

	protected := make(map[Cell]bool, len(exits)*5)
	for _, e := range exits {
		protected[e] = true
		for _, d := range orthogonalOffsets {
			protected[C(e.Row+d.Row, e.Col+d.Col)] = true
		}
	}

	noise := opensimplex.NewNormalized(cfg.Seed)
	threshold := 1 - cfg.Density

	var out []Cell
	for r := 1; r < rows-1; r++ {
		for c := 1; c < cols-1; c++ {
			cell := C(r, c)
			if protected[cell] || (keepClear != nil && keepClear(cell)) {
				continue
			}
			if octaveNoise(noise, float64(c), float64(r), 3, scale, 0.5) >= threshold {
				out = append(out, cell)
			}
		}
	}
	return out
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
