package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "class_reco", cfg.Input.ClassField)
	assert.Empty(t, cfg.Input.IDField)
	assert.Equal(t, "geoid", cfg.Input.TractField)
	assert.Equal(t, 4326, cfg.Input.DefaultEPSG)
	assert.Equal(t, "geo_id", cfg.ACS.GEOIDColumn)
	assert.Equal(t, "B25010_001E", cfg.ACS.HouseholdSizeVariable)
	assert.Equal(t, "B01003_001E", cfg.ACS.PopulationVariable)
	assert.Equal(t, 4269, cfg.ACS.CRS)
	assert.InDelta(t, 2.2, cfg.Population.ImputedHouseholdSize, 1e-9)
	assert.Equal(t, "drop", cfg.Population.UnmatchedPolicy)
	assert.Equal(t, 3035, cfg.Projection.EqualAreaEPSG)
	assert.InDelta(t, 1.0, cfg.Access.ThresholdMiles, 1e-9)
	assert.InDelta(t, 3958.7613, cfg.Access.EarthRadiusMiles, 1e-9)
	assert.Equal(t, 1_000_000, cfg.Access.WarnPairs)
	assert.Equal(t, 25_000_000, cfg.Access.MaxPairs)
	assert.Equal(t, "https://api.census.gov/data", cfg.Census.BaseURL)
	assert.Equal(t, 2020, cfg.Census.Year)
	assert.Equal(t, "42", cfg.Census.State)
	assert.Equal(t, "003", cfg.Census.County)
	assert.Equal(t, 5, cfg.Census.MaxAttempts)
	assert.Equal(t, 500, cfg.Census.InitialBackoffMs)
	assert.Equal(t, 30000, cfg.Census.MaxBackoffMs)
	assert.InDelta(t, 5.0, cfg.Census.RequestsPerSecond, 1e-9)
	assert.Equal(t, "csv", cfg.Output.Driver)
	assert.Equal(t, "building_population", cfg.Output.Table)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
  format: console
population:
  unmatched_policy: zero
access:
  threshold_miles: 0.5
output:
  driver: sqlite
  path: out.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "zero", cfg.Population.UnmatchedPolicy)
	assert.InDelta(t, 0.5, cfg.Access.ThresholdMiles, 1e-9)
	assert.Equal(t, "sqlite", cfg.Output.Driver)
	assert.Equal(t, "out.db", cfg.Output.Path)
	// Defaults still apply for unset values
	assert.InDelta(t, 2.2, cfg.Population.ImputedHouseholdSize, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
output:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BUILDPOP_OUTPUT_DRIVER", "xlsx")
	t.Setenv("BUILDPOP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "xlsx", cfg.Output.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("BUILDPOP_CENSUS_API_KEY", "abc123")
	t.Setenv("BUILDPOP_CENSUS_YEAR", "2019")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.Census.APIKey)
	assert.Equal(t, 2019, cfg.Census.Year)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the documented defaults for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Population.ImputedHouseholdSize = 2.2
	cfg.Access.ThresholdMiles = 1
	cfg.Access.EarthRadiusMiles = 3958.7613
	cfg.Census.State = "42"
	cfg.Census.MaxAttempts = 5
	cfg.Output.Driver = "csv"
	return cfg
}

func settingOf(t *testing.T, err error) string {
	t.Helper()
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce), "want ConfigurationError, got %v", err)
	return ce.Setting
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"allocate", "access", "acs"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("serve")
	assert.Equal(t, "mode", settingOf(t, err))
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		setting string
	}{
		{"negative imputation", "allocate", func(c *Config) { c.Population.ImputedHouseholdSize = -1 }, "population.imputed_household_size"},
		{"negative threshold", "access", func(c *Config) { c.Access.ThresholdMiles = -0.1 }, "access.threshold_miles"},
		{"zero threshold", "access", func(c *Config) { c.Access.ThresholdMiles = 0 }, "access.threshold_miles"},
		{"zero radius", "access", func(c *Config) { c.Access.EarthRadiusMiles = 0 }, "access.earth_radius_miles"},
		{"negative max pairs", "access", func(c *Config) { c.Access.MaxPairs = -1 }, "access.max_pairs"},
		{"no state", "acs", func(c *Config) { c.Census.State = "" }, "census.state"},
		{"no attempts", "acs", func(c *Config) { c.Census.MaxAttempts = 0 }, "census.max_attempts"},
		{"unknown driver", "allocate", func(c *Config) { c.Output.Driver = "parquet" }, "output.driver"},
		{"postgres without url", "access", func(c *Config) { c.Output.Driver = "postgres" }, "output.database_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			assert.Equal(t, tt.setting, settingOf(t, cfg.Validate(tt.mode)))
		})
	}
}

func TestValidate_PostgresWithURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Driver = "Postgres"
	cfg.Output.DatabaseURL = "postgres://localhost/gis"
	assert.NoError(t, cfg.Validate("allocate"))
}

func TestValidate_NegativeThresholdOnlyMattersForAccess(t *testing.T) {
	cfg := validDefaults()
	cfg.Access.ThresholdMiles = -1
	assert.NoError(t, cfg.Validate("allocate"))
}
