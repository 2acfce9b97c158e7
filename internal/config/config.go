// Package config holds the frozen configuration values consumed by every
// vision-fusion and trajectory-planning component (§6, §9 of the
// specification). A Config is constructed once, optionally overridden from
// a YAML file, and then passed by value or read-only pointer into
// constructors; nothing in this package or its consumers mutates package
// level state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RobotFilterConfig holds C3 robot filter tuning.
type RobotFilterConfig struct {
	AssociationGateMeters float64       `yaml:"association_gate_meters"`
	MinFrameCountMature   int           `yaml:"min_frame_count_mature"`
	ResetGracePeriod      time.Duration `yaml:"reset_grace_period"`
	MaxTimeLimit          time.Duration `yaml:"max_time_limit"`
	MaxTimeLastLimit      time.Duration `yaml:"max_time_last_limit"`
	ProcessNoisePos       float64       `yaml:"process_noise_pos"`
	ProcessNoiseVel       float64       `yaml:"process_noise_vel"`
	MeasurementNoise      float64       `yaml:"measurement_noise"`
	MaxReasonableSpeedMps float64       `yaml:"max_reasonable_speed_mps"`
}

// BallFilterConfig holds C4 ball ground collision filter tuning.
type BallFilterConfig struct {
	AcceptDistanceMeters        float64       `yaml:"accept_distance_meters"`
	MinFrameCountMature         int           `yaml:"min_frame_count_mature"`
	ResetGracePeriod            time.Duration `yaml:"reset_grace_period"`
	MaxTimeLimit                time.Duration `yaml:"max_time_limit"`
	MaxTimeLastLimit            time.Duration `yaml:"max_time_last_limit"`
	ActivateDribblingThreshold  time.Duration `yaml:"activate_dribbling_threshold"`
	ResetSpeedThreshold         time.Duration `yaml:"reset_speed_threshold"`
	ProcessNoisePos             float64       `yaml:"process_noise_pos"`
	ProcessNoiseVel             float64       `yaml:"process_noise_vel"`
	MeasurementNoise            float64       `yaml:"measurement_noise"`
	MaxReasonableSpeedMps       float64       `yaml:"max_reasonable_speed_mps"`
	EnableCollisionRules        bool          `yaml:"enable_collision_rules"`
	FarNearRatioForFarSelection float64       `yaml:"far_near_ratio_for_far_selection"`
}

// TrackerConfig holds C5 fusion supervisor tuning.
type TrackerConfig struct {
	SystemDelay          time.Duration `yaml:"system_delay"`
	VisionProcessingTime time.Duration `yaml:"vision_processing_time"`
}

// RobotPhysicalConfig holds §6 robot physical constants.
type RobotPhysicalConfig struct {
	RobotRadius    float64 `yaml:"robot_radius"`
	RobotHeight    float64 `yaml:"robot_height"`
	DribblerWidth  float64 `yaml:"dribbler_width"`
	ShootRadius    float64 `yaml:"shoot_radius"`
}

// PlannerConfig holds C7/C9 trajectory planning tuning.
type PlannerConfig struct {
	MaxSpeed                float64       `yaml:"max_speed"`
	Acceleration            float64       `yaml:"acceleration"`
	ExponentialSlowdown     bool          `yaml:"exponential_slowdown"`
	ObstacleAvoidanceRadius float64       `yaml:"obstacle_avoidance_radius"`
	ObstacleAvoidanceBonus  float64       `yaml:"obstacle_avoidance_bonus"`
	TotalSlowdownTime       float64       `yaml:"total_slowdown_time"`
	MinAccFactor            float64       `yaml:"min_acc_factor"`
	MaxSamplerIterations    int           `yaml:"max_sampler_iterations"`
	EscapeSamplerIterations int           `yaml:"escape_sampler_iterations"`
	EndSearchIterations     int           `yaml:"end_search_iterations"`
	EndSearchWidenFactor    float64       `yaml:"end_search_widen_factor"`
	TrajectoryPointInterval time.Duration `yaml:"trajectory_point_interval"`
}

// Config is the frozen, whole-repository configuration value.
type Config struct {
	RobotFilter    RobotFilterConfig   `yaml:"robot_filter"`
	BallFilter     BallFilterConfig    `yaml:"ball_filter"`
	Tracker        TrackerConfig       `yaml:"tracker"`
	RobotPhysical  RobotPhysicalConfig `yaml:"robot_physical"`
	Planner        PlannerConfig       `yaml:"planner"`
}

// Default returns the production-default configuration, matching the
// numeric values enumerated in specification §6.
func Default() Config {
	return Config{
		RobotFilter: RobotFilterConfig{
			AssociationGateMeters: 0.5,
			MinFrameCountMature:   5,
			ResetGracePeriod:      100 * time.Millisecond,
			MaxTimeLimit:          200 * time.Millisecond,
			MaxTimeLastLimit:      1 * time.Second,
			ProcessNoisePos:       0.1,
			ProcessNoiseVel:       0.5,
			MeasurementNoise:      0.02,
			MaxReasonableSpeedMps: 12.0,
		},
		BallFilter: BallFilterConfig{
			AcceptDistanceMeters:        0.5,
			MinFrameCountMature:         5,
			ResetGracePeriod:            500 * time.Millisecond,
			MaxTimeLimit:                100 * time.Millisecond,
			MaxTimeLastLimit:            1 * time.Second,
			ActivateDribblingThreshold:  80 * time.Millisecond,
			ResetSpeedThreshold:         150 * time.Millisecond,
			ProcessNoisePos:             0.05,
			ProcessNoiseVel:             1.0,
			MeasurementNoise:            0.01,
			MaxReasonableSpeedMps:       12.0,
			EnableCollisionRules:        false,
			FarNearRatioForFarSelection: 2.0,
		},
		Tracker: TrackerConfig{
			SystemDelay:          0,
			VisionProcessingTime: 0,
		},
		RobotPhysical: RobotPhysicalConfig{
			RobotRadius:   0.088,
			RobotHeight:   0.148,
			DribblerWidth: 0.07,
			ShootRadius:   0.0669,
		},
		Planner: PlannerConfig{
			MaxSpeed:                3.5,
			Acceleration:            3.0,
			ExponentialSlowdown:     true,
			ObstacleAvoidanceRadius: 0.1,
			ObstacleAvoidanceBonus:  1.2,
			TotalSlowdownTime:       0.3,
			MinAccFactor:            0.3,
			MaxSamplerIterations:    100,
			EscapeSamplerIterations: 100,
			EndSearchIterations:     200,
			EndSearchWidenFactor:    1.3,
			TrajectoryPointInterval: 30 * time.Millisecond,
		},
	}
}

// Load reads a YAML file at path and applies it as an override on top of
// Default(). Fields absent from the file retain their default value. The
// result is validated before being returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid %q: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first violated invariant among the numeric ranges
// this package relies on. It never mutates cfg.
func (cfg Config) Validate() error {
	switch {
	case cfg.Planner.MaxSpeed <= 0:
		return fmt.Errorf("planner.max_speed must be positive, got %g", cfg.Planner.MaxSpeed)
	case cfg.Planner.Acceleration <= 0:
		return fmt.Errorf("planner.acceleration must be positive, got %g", cfg.Planner.Acceleration)
	case cfg.RobotPhysical.RobotRadius <= 0:
		return fmt.Errorf("robot_physical.robot_radius must be positive, got %g", cfg.RobotPhysical.RobotRadius)
	case cfg.RobotFilter.AssociationGateMeters <= 0:
		return fmt.Errorf("robot_filter.association_gate_meters must be positive, got %g", cfg.RobotFilter.AssociationGateMeters)
	case cfg.BallFilter.AcceptDistanceMeters <= 0:
		return fmt.Errorf("ball_filter.accept_distance_meters must be positive, got %g", cfg.BallFilter.AcceptDistanceMeters)
	case cfg.Planner.MaxSamplerIterations <= 0:
		return fmt.Errorf("planner.max_sampler_iterations must be positive, got %d", cfg.Planner.MaxSamplerIterations)
	}
	return nil
}
