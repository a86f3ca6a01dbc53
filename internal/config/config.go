package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/buildpop/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	ACS        ACSConfig        `yaml:"acs" mapstructure:"acs"`
	Population PopulationConfig `yaml:"population" mapstructure:"population"`
	Projection ProjectionConfig `yaml:"projection" mapstructure:"projection"`
	Access     AccessConfig     `yaml:"access" mapstructure:"access"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InputConfig names the attributes of the building layer.
type InputConfig struct {
	ClassField       string `yaml:"class_field" mapstructure:"class_field"`
	IDField          string `yaml:"id_field" mapstructure:"id_field"`
	TractField       string `yaml:"tract_field" mapstructure:"tract_field"`
	DefaultEPSG      int    `yaml:"default_epsg" mapstructure:"default_epsg"`
	ClassAliasesPath string `yaml:"class_aliases_path" mapstructure:"class_aliases_path"`
}

// ACSConfig names the columns of the tract table.
type ACSConfig struct {
	GEOIDColumn           string `yaml:"geoid_column" mapstructure:"geoid_column"`
	NameColumn            string `yaml:"name_column" mapstructure:"name_column"`
	GeometryColumn        string `yaml:"geometry_column" mapstructure:"geometry_column"`
	HouseholdSizeVariable string `yaml:"household_size_variable" mapstructure:"household_size_variable"`
	PopulationVariable    string `yaml:"population_variable" mapstructure:"population_variable"`
	CRS                   int    `yaml:"crs" mapstructure:"crs"`
}

// PopulationConfig configures the allocator.
type PopulationConfig struct {
	ImputedHouseholdSize float64 `yaml:"imputed_household_size" mapstructure:"imputed_household_size"`
	UnmatchedPolicy      string  `yaml:"unmatched_policy" mapstructure:"unmatched_policy"`
}

// ProjectionConfig selects the equal-area CRS used for centroids.
type ProjectionConfig struct {
	EqualAreaEPSG int `yaml:"equal_area_epsg" mapstructure:"equal_area_epsg"`
}

// AccessConfig configures the access calculator.
type AccessConfig struct {
	ThresholdMiles   float64 `yaml:"threshold_miles" mapstructure:"threshold_miles"`
	EarthRadiusMiles float64 `yaml:"earth_radius_miles" mapstructure:"earth_radius_miles"`
	WarnPairs        int     `yaml:"warn_pairs" mapstructure:"warn_pairs"`
	MaxPairs         int     `yaml:"max_pairs" mapstructure:"max_pairs"`
}

// CensusConfig holds Census API and TIGER/Line settings.
type CensusConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TigerBaseURL      string  `yaml:"tiger_base_url" mapstructure:"tiger_base_url"`
	Year              int     `yaml:"year" mapstructure:"year"`
	State             string  `yaml:"state" mapstructure:"state"`
	County            string  `yaml:"county" mapstructure:"county"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TempDir           string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// OutputConfig selects where results are written.
type OutputConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	Table       string `yaml:"table" mapstructure:"table"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BUILDPOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.class_field", "class_reco")
	v.SetDefault("input.id_field", "")
	v.SetDefault("input.tract_field", "geoid")
	v.SetDefault("input.default_epsg", model.EPSGWGS84)
	v.SetDefault("input.class_aliases_path", "")
	v.SetDefault("acs.geoid_column", "geo_id")
	v.SetDefault("acs.name_column", "name")
	v.SetDefault("acs.geometry_column", "geometry")
	v.SetDefault("acs.household_size_variable", model.VarHouseholdSize)
	v.SetDefault("acs.population_variable", model.VarTotalPopulation)
	v.SetDefault("acs.crs", model.EPSGNAD83)
	v.SetDefault("population.imputed_household_size", 2.2)
	v.SetDefault("population.unmatched_policy", "drop")
	v.SetDefault("projection.equal_area_epsg", model.EPSGLAEAEurope)
	v.SetDefault("access.threshold_miles", 1.0)
	v.SetDefault("access.earth_radius_miles", 3958.7613)
	v.SetDefault("access.warn_pairs", 1_000_000)
	v.SetDefault("access.max_pairs", 25_000_000)
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.tiger_base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("census.year", 2020)
	v.SetDefault("census.state", "42")
	v.SetDefault("census.county", "003")
	v.SetDefault("census.max_attempts", 5)
	v.SetDefault("census.initial_backoff_ms", 500)
	v.SetDefault("census.max_backoff_ms", 30000)
	v.SetDefault("census.requests_per_second", 5)
	v.SetDefault("census.temp_dir", "/tmp/buildpop")
	v.SetDefault("output.driver", "csv")
	v.SetDefault("output.path", "")
	v.SetDefault("output.table", "building_population")
	v.SetDefault("output.database_url", "")
}

// Validate checks the settings a command needs. mode is one of "allocate",
// "access" or "acs".
func (c *Config) Validate(mode string) error {
	if err := c.validateOutput(); err != nil {
		return err
	}
	switch mode {
	case "allocate":
		if c.Population.ImputedHouseholdSize < 0 {
			return &model.ConfigurationError{
				Setting: "population.imputed_household_size",
				Reason:  fmt.Sprintf("must be non-negative, got %g", c.Population.ImputedHouseholdSize),
			}
		}
	case "access":
		if c.Access.ThresholdMiles <= 0 {
			return &model.ConfigurationError{
				Setting: "access.threshold_miles",
				Reason:  fmt.Sprintf("must be positive, got %g", c.Access.ThresholdMiles),
			}
		}
		if c.Access.EarthRadiusMiles <= 0 {
			return &model.ConfigurationError{
				Setting: "access.earth_radius_miles",
				Reason:  fmt.Sprintf("must be positive, got %g", c.Access.EarthRadiusMiles),
			}
		}
		if c.Access.MaxPairs < 0 {
			return &model.ConfigurationError{Setting: "access.max_pairs", Reason: "must be non-negative"}
		}
	case "acs":
		if c.Census.State == "" {
			return &model.ConfigurationError{Setting: "census.state", Reason: "is required"}
		}
		if c.Census.MaxAttempts < 1 {
			return &model.ConfigurationError{Setting: "census.max_attempts", Reason: "must be at least 1"}
		}
	default:
		return &model.ConfigurationError{Setting: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch strings.ToLower(c.Output.Driver) {
	case "csv", "xlsx", "sqlite", "shapefile":
	case "postgres":
		if c.Output.DatabaseURL == "" {
			return &model.ConfigurationError{Setting: "output.database_url", Reason: "is required for the postgres driver"}
		}
	default:
		return &model.ConfigurationError{
			Setting: "output.driver",
			Reason:  fmt.Sprintf("unknown driver %q (want csv, xlsx, sqlite, postgres or shapefile)", c.Output.Driver),
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
