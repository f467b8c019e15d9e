package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.World.ChunkSize != 32 || cfg.Streamer.WorkerIdle != time.Second || cfg.Telemetry.Interval != time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Layers) != 5 {
		t.Fatalf("default layers = %d, want 5", len(cfg.Layers))
	}
	if cfg.Layers[0].Kind != LayerGeometry || !cfg.Layers[0].Physics {
		t.Errorf("terrain layer = %+v", cfg.Layers[0])
	}
	if cfg.Layers[2].Kind != LayerInstanced || len(cfg.Layers[2].Bundle) != 2 {
		t.Errorf("vegetation layer = %+v", cfg.Layers[2])
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.yaml")
	data := []byte(`
world:
  seed: 42
streamer:
  worker_idle: 250ms
layers:
  - name: ground
    kind: geometry
    category: terrain
    vertex_capacity: 1024
    index_capacity: 3072
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Seed != 42 || cfg.World.ChunkSize != 32 {
		t.Errorf("world = %+v, want seed overridden and chunk size kept", cfg.World)
	}
	if cfg.Streamer.WorkerIdle != 250*time.Millisecond || cfg.Streamer.Workers != 4 {
		t.Errorf("streamer = %+v", cfg.Streamer)
	}
	if len(cfg.Layers) != 1 || cfg.Layers[0].Name != "ground" {
		t.Errorf("layers = %+v, want the file's list", cfg.Layers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"chunk size", func(c *Config) { c.World.ChunkSize = 0 }},
		{"heights", func(c *Config) { c.World.MinHeight = c.World.MaxHeight }},
		{"workers", func(c *Config) { c.Streamer.Workers = 0 }},
		{"levels", func(c *Config) { c.Tracker.Levels = 17 }},
		{"duplicate layer", func(c *Config) { c.Layers[1].Name = c.Layers[0].Name }},
		{"unknown category", func(c *Config) { c.Layers[0].Category = "lava" }},
		{"unknown kind", func(c *Config) { c.Layers[0].Kind = "voxel" }},
		{"empty bundle", func(c *Config) { c.Layers[2].Bundle = nil }},
		{"instanced physics", func(c *Config) { c.Layers[2].Physics = true }},
		{"no capacity", func(c *Config) { c.Layers[1].IndexCapacity = 0 }},
		{"billboard frames", func(c *Config) { c.Assets.BillboardFrames = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.World.Seed = 9
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.World.Seed != 9 || len(back.Layers) != len(cfg.Layers) || back.Streamer.WorkerIdle != cfg.Streamer.WorkerIdle {
		t.Errorf("round trip = %+v", back)
	}
}
