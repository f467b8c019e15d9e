// Package config loads the streaming configuration: world, streamer, tracker,
// telemetry and per-layer capacities.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// LayerKind selects which coordinator a layer uses.
type LayerKind string

const (
	LayerGeometry  LayerKind = "geometry"
	LayerInstanced LayerKind = "instanced"
)

// Config holds all streaming configuration.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Streamer  StreamerConfig  `yaml:"streamer"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Assets    AssetsConfig    `yaml:"assets"`
	Layers    []LayerConfig   `yaml:"layers"`
}

// WorldConfig holds the world seed and chunk geometry.
type WorldConfig struct {
	Seed      int64   `yaml:"seed"`
	ChunkSize float32 `yaml:"chunk_size"` // world size of a lod 0 chunk
	MinHeight float32 `yaml:"min_height"`
	MaxHeight float32 `yaml:"max_height"`
}

// StreamerConfig holds the owner loop and worker pool settings.
type StreamerConfig struct {
	TickRate   float64       `yaml:"tick_rate"`
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	WorkerIdle time.Duration `yaml:"worker_idle"`
}

// TrackerConfig holds the ring tracker shape.
type TrackerConfig struct {
	Levels      int     `yaml:"levels"`
	ViewRadius  int     `yaml:"view_radius"`  // coarsest-level chunks on each side of the viewer
	SplitRadius float32 `yaml:"split_radius"` // split while closer than this many chunk sizes
}

// TelemetryConfig holds the recorder settings. An empty CSVPath disables export.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	CSVPath  string        `yaml:"csv_path"`
}

// AssetsConfig selects where instanced layers load their bundles from. An
// empty Dir uses the builtin procedural models; otherwise each geometry name
// resolves to <dir>/<name>.glb or .gltf.
type AssetsConfig struct {
	Dir             string `yaml:"dir"`
	BillboardFrames int    `yaml:"billboard_frames"`
}

// LayerConfig holds one layer. Instanced-only fields are ignored for geometry layers.
type LayerConfig struct {
	Name     string           `yaml:"name"`
	Kind     LayerKind        `yaml:"kind"`
	Category content.Category `yaml:"category"`

	VertexCapacity uint32 `yaml:"vertex_capacity"`
	IndexCapacity  uint32 `yaml:"index_capacity"`
	Physics        bool   `yaml:"physics"`

	Bundle            []string `yaml:"bundle"`
	InstancesPerChunk int      `yaml:"instances_per_chunk"`
	LODCutoff         uint8    `yaml:"lod_cutoff"`
	MeshLODs          int      `yaml:"mesh_lods"`
	MaxPerDrawCall    uint32   `yaml:"max_instances_per_draw_call"`
	DrawCallSlots     uint32   `yaml:"draw_call_slots"`
	MaxPerGeometryLOD int      `yaml:"max_draw_calls_per_geometry_lod"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file over the embedded defaults and
// validates it. If path is empty, only the defaults are used. A file that
// sets layers replaces the default layer list.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg; only fields present in data change.
// A layers list in data replaces cfg's list.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.World.ChunkSize > 0, "world.chunk_size must be positive")
	check(c.World.MinHeight < c.World.MaxHeight, "world.min_height must be below max_height")
	check(c.Streamer.Workers > 0, "streamer.workers must be positive")
	check(c.Streamer.QueueSize > 0, "streamer.queue_size must be positive")
	check(c.Tracker.Levels >= 1 && c.Tracker.Levels <= 16, "tracker.levels must be in [1,16]")
	check(c.Tracker.SplitRadius > 0, "tracker.split_radius must be positive")
	check(c.Assets.BillboardFrames >= 1, "assets.billboard_frames must be at least 1")

	seen := make(map[string]bool)
	for i, l := range c.Layers {
		check(l.Name != "", "layers[%d].name is empty", i)
		check(!seen[l.Name], "layers[%d].name %q repeats", i, l.Name)
		seen[l.Name] = true
		check(content.FlagFor(l.Category) != 0, "layers[%d].category %q is unknown", i, l.Category)
		check(l.VertexCapacity > 0 && l.IndexCapacity > 0, "layers[%d] needs vertex and index capacity", i)

		switch l.Kind {
		case LayerGeometry:
		case LayerInstanced:
			check(len(l.Bundle) > 0, "layers[%d].bundle is empty", i)
			check(l.MeshLODs >= 1, "layers[%d].mesh_lods must be at least 1", i)
			check(l.MaxPerDrawCall > 0 && l.DrawCallSlots > 0, "layers[%d] needs draw call capacity", i)
			check(!l.Physics, "layers[%d]: physics is only supported on geometry layers", i)
		default:
			check(false, "layers[%d].kind %q is not geometry or instanced", i, l.Kind)
		}
	}
	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
