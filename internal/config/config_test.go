package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robocin/framework/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	t.Parallel()
	require.NoError(t, config.Default().Validate())
}

func TestLoad_PartialOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
planner:
  max_speed: 4.2
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 4.2, cfg.Planner.MaxSpeed, 1e-9)
	// Unspecified fields retain their defaults.
	assert.InDelta(t, config.Default().Planner.Acceleration, cfg.Planner.Acceleration, 1e-9)
}

func TestLoad_InvalidOverrideRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
planner:
  max_speed: -1
`), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/path/tuning.yaml")
	assert.Error(t, err)
}

func TestValidate_TableDriven(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{"valid default", func(c *config.Config) {}, false},
		{"zero max speed", func(c *config.Config) { c.Planner.MaxSpeed = 0 }, true},
		{"negative acceleration", func(c *config.Config) { c.Planner.Acceleration = -1 }, true},
		{"zero robot radius", func(c *config.Config) { c.RobotPhysical.RobotRadius = 0 }, true},
		{"zero association gate", func(c *config.Config) { c.RobotFilter.AssociationGateMeters = 0 }, true},
		{"zero sampler iterations", func(c *config.Config) { c.Planner.MaxSamplerIterations = 0 }, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
