package strata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DistanceMode selects how the active set measures camera-to-region distance.
type DistanceMode string

const (
	// DistanceHorizontal ignores the vertical axis; regions are streamed on
	// the y=0 plane (single-layer worlds).
	DistanceHorizontal DistanceMode = "horizontal"
	// DistanceSpherical streams the full 3D neighborhood.
	DistanceSpherical DistanceMode = "spherical"
)

// Config holds the streaming director's tuning parameters.
type Config struct {
	// RegionSize is the world-space edge length of one region in voxels.
	RegionSize int32 `yaml:"region_size"`
	// BaseResolution is the sampled grid edge at LOD 0. Coarser LODs derive
	// their resolution as BaseResolution/(lod+1).
	BaseResolution int32 `yaml:"base_resolution"`

	// RenderRadius is the camera-centered distance (world units) within which
	// regions are selected for rendering.
	RenderRadius float32      `yaml:"render_radius"`
	DistanceMode DistanceMode `yaml:"distance_mode"`

	// LodThresholds is the ordered distance list T[0] < T[1] < ...; a region
	// farther than T[i] renders no finer than LOD i+1. HysteresisMargin
	// offsets thresholds against the current LOD to stop boundary thrash.
	LodThresholds    []float32 `yaml:"lod_thresholds"`
	HysteresisMargin float32   `yaml:"hysteresis_margin"`

	// Connectivity is the neighbor set used for the needed-set expansion and
	// invalidation cascade: 6 (face) or 26 (full cube), matching the lighting
	// model's reach.
	Connectivity int `yaml:"connectivity"`

	// LightBakeIterations is the fixed propagation iteration count run at the
	// light-bake pipeline stage.
	LightBakeIterations int `yaml:"light_bake_iterations"`

	// ReadbackInterval time-slices visibility readbacks: culling updates are
	// issued only every this many frames.
	ReadbackInterval int `yaml:"readback_interval"`

	// Pending-queue scoring: distance from camera is penalized by
	// DistanceWeight, alignment with the camera's forward vector rewarded by
	// AlignmentWeight. Lower score generates first.
	DistanceWeight  float32 `yaml:"distance_weight"`
	AlignmentWeight float32 `yaml:"alignment_weight"`
}

// DefaultConfig mirrors the tuning of the original host: 256-voxel regions,
// three LOD tiers, face connectivity.
func DefaultConfig() *Config {
	return &Config{
		RegionSize:          256,
		BaseResolution:      256,
		RenderRadius:        384,
		DistanceMode:        DistanceHorizontal,
		LodThresholds:       []float32{256, 512},
		HysteresisMargin:    32,
		Connectivity:        6,
		LightBakeIterations: 4,
		ReadbackInterval:    8,
		DistanceWeight:      1.0,
		AlignmentWeight:     128.0,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RegionSize <= 0 {
		return preconditionf("region_size must be positive, got %d", c.RegionSize)
	}
	if c.BaseResolution <= 0 {
		return preconditionf("base_resolution must be positive, got %d", c.BaseResolution)
	}
	if c.RenderRadius <= 0 {
		return preconditionf("render_radius must be positive, got %g", c.RenderRadius)
	}
	if len(c.LodThresholds) == 0 {
		return preconditionf("lod_thresholds must not be empty")
	}
	for i := 1; i < len(c.LodThresholds); i++ {
		if c.LodThresholds[i] <= c.LodThresholds[i-1] {
			return preconditionf("lod_thresholds must be strictly increasing at index %d", i)
		}
	}
	if c.HysteresisMargin < 0 {
		return preconditionf("hysteresis_margin must not be negative")
	}
	if c.Connectivity != 6 && c.Connectivity != 26 {
		return preconditionf("connectivity must be 6 or 26, got %d", c.Connectivity)
	}
	if c.DistanceMode != DistanceHorizontal && c.DistanceMode != DistanceSpherical {
		return preconditionf("distance_mode must be %q or %q", DistanceHorizontal, DistanceSpherical)
	}
	if c.LightBakeIterations <= 0 {
		return preconditionf("light_bake_iterations must be positive")
	}
	if c.ReadbackInterval <= 0 {
		return preconditionf("readback_interval must be positive")
	}
	return nil
}

// resolutionForLod derives the sampled grid edge for a LOD tier.
func (c *Config) resolutionForLod(lod Lod) int32 {
	return c.BaseResolution / (int32(lod) + 1)
}
