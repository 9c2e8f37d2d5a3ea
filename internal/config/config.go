// Package config holds the immutable simulation configuration and its YAML
// loader. Every other package reads a Config; none mutates it.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/evacsim/internal/grid"
	"github.com/talgya/evacsim/internal/peds"
)

// ErrInvalid is returned for configuration values that cannot be simulated.
var ErrInvalid = errors.New("invalid configuration")

// DefaultMaxSteps caps the number of steps per run.
const DefaultMaxSteps = 1000

// ScanOrder selects how cells are visited within one step.
type ScanOrder uint8

const (
	ScanIdentity ScanOrder = iota // Row-major interior, then exits
	ScanShuffled                  // Fresh uniform permutation every step
	ScanReversed                  // Identity order backwards
)

// ParseScanOrder maps a config name to a ScanOrder.
func ParseScanOrder(name string) (ScanOrder, error) {
	switch name {
	case "identity", "fixed", "":
		return ScanIdentity, nil
	case "shuffled", "shuffle", "random":
		return ScanShuffled, nil
	case "reversed", "reverse":
		return ScanReversed, nil
	}
	return 0, fmt.Errorf("unknown scan order %q", name)
}

func (s ScanOrder) String() string {
	switch s {
	case ScanShuffled:
		return "shuffled"
	case ScanReversed:
		return "reversed"
	default:
		return "identity"
	}
}

// ExitConfig places the exits.
type ExitConfig struct {
	Sides []string `yaml:"sides" json:"sides"` // Subset of top, right, bottom, left
	Width int      `yaml:"width" json:"width"` // Cells per exit
}

// ObstacleConfig enables noise-generated interior obstacles.
type ObstacleConfig struct {
	Density float64 `yaml:"density" json:"density"` // 0 disables
	Scale   float64 `yaml:"scale" json:"scale"`
}

// Config is the complete simulation configuration.
type Config struct {
	Pedestrians      int            `yaml:"pedestrians" json:"pedestrians"`
	KappaS           float64        `yaml:"kappa_s" json:"kappa_s"`
	KappaD           float64        `yaml:"kappa_d" json:"kappa_d"`
	Decay            float64        `yaml:"decay" json:"decay"`
	Diffusion        float64        `yaml:"diffusion" json:"diffusion"`
	Neighborhood     string         `yaml:"connectivity" json:"connectivity"`
	Scan             string         `yaml:"scan_order" json:"scan_order"`
	Width            float64        `yaml:"width" json:"width"`           // metres
	Height           float64        `yaml:"height" json:"height"`         // metres
	Spawn            *peds.Region   `yaml:"spawn" json:"spawn,omitempty"` // nil = whole interior
	Runs             int            `yaml:"runs" json:"runs"`
	MaxSteps         int            `yaml:"max_steps" json:"max_steps"`
	Seed             int64          `yaml:"seed" json:"seed"` // 0 = derive from crypto/rand
	MemoizeNeighbors bool           `yaml:"memoize_neighbors" json:"memoize_neighbors"`
	Exits            ExitConfig     `yaml:"exits" json:"exits"`
	Obstacles        ObstacleConfig `yaml:"obstacles" json:"obstacles"`
	SnapshotEvery    int            `yaml:"snapshot_every" json:"snapshot_every"` // 0 = no persisted snapshots
}

// Default returns a 4 m × 4 m room with four two-cell exits.
func Default() Config {
	return Config{
		Pedestrians:      10,
		KappaS:           2,
		KappaD:           1,
		Decay:            0.3,
		Diffusion:        0.1,
		Neighborhood:     "von-neumann",
		Scan:             "identity",
		Width:            4,
		Height:           4,
		Runs:             1,
		MaxSteps:         DefaultMaxSteps,
		MemoizeNeighbors: true,
		Exits: ExitConfig{
			Sides: []string{"top", "right", "bottom", "left"},
			Width: grid.DefaultExitWidth,
		},
		Obstacles: ObstacleConfig{Scale: 0.25},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field that can be checked without building the grid.
func (c Config) Validate() error {
	if c.Pedestrians < 0 {
		return fmt.Errorf("pedestrians %d: %w", c.Pedestrians, ErrInvalid)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("room %.2fx%.2f m: %w", c.Width, c.Height, ErrInvalid)
	}
	if c.Runs < 1 {
		return fmt.Errorf("runs %d: %w", c.Runs, ErrInvalid)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps %d: %w", c.MaxSteps, ErrInvalid)
	}
	if _, err := c.Connectivity(); err != nil {
		return fmt.Errorf("connectivity: %v: %w", err, ErrInvalid)
	}
	if _, err := c.ScanOrder(); err != nil {
		return fmt.Errorf("scan_order: %v: %w", err, ErrInvalid)
	}
	if _, err := c.ExitLayout(); err != nil {
		return err
	}
	if c.Obstacles.Density < 0 || c.Obstacles.Density > 1 {
		return fmt.Errorf("obstacles.density %v: %w", c.Obstacles.Density, ErrInvalid)
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every %d: %w", c.SnapshotEvery, ErrInvalid)
	}
	if c.Spawn != nil && !c.Spawn.IsZero() && (c.Spawn.RowFrom >= c.Spawn.RowTo || c.Spawn.ColFrom >= c.Spawn.ColTo) {
		return fmt.Errorf("spawn %+v: %w", *c.Spawn, peds.ErrSpawnRegion)
	}
	return nil
}

// Connectivity returns the parsed neighbourhood.
func (c Config) Connectivity() (grid.Connectivity, error) {
	return grid.ParseConnectivity(c.Neighborhood)
}

// ScanOrder returns the parsed scan order.
func (c Config) ScanOrder() (ScanOrder, error) {
	return ParseScanOrder(c.Scan)
}

// ExitLayout returns the parsed exit layout.
func (c Config) ExitLayout() (grid.ExitLayout, error) {
	if len(c.Exits.Sides) == 0 {
		return grid.ExitLayout{}, fmt.Errorf("exits.sides empty: %w", ErrInvalid)
	}
	if c.Exits.Width < 1 {
		return grid.ExitLayout{}, fmt.Errorf("exits.width %d: %w", c.Exits.Width, ErrInvalid)
	}
	layout := grid.ExitLayout{Width: c.Exits.Width}
	for _, name := range c.Exits.Sides {
		side, err := grid.ParseSide(name)
		if err != nil {
			return grid.ExitLayout{}, fmt.Errorf("exits.sides: %v: %w", err, ErrInvalid)
		}
		layout.Sides = append(layout.Sides, side)
	}
	return layout, nil
}

// SpawnRegion returns the configured spawn region, or the whole interior of
// a rows×cols grid when none is set. An empty `spawn: {}` counts as unset.
func (c Config) SpawnRegion(rows, cols int) peds.Region {
	if c.Spawn == nil || c.Spawn.IsZero() {
		return peds.InteriorRegion(rows, cols)
	}
	return *c.Spawn
}
