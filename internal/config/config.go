// Package config loads the tool configuration: the scene to bundle adjust,
// the external solver, the status server and logging.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scene  SceneConfig  `yaml:"scene" mapstructure:"scene"`
	Solver SolverConfig `yaml:"solver" mapstructure:"solver"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SceneConfig describes one scene to bundle adjust.
type SceneConfig struct {
	// GeotiffDir contains the scene's geotiff images (searched recursively).
	GeotiffDir string `yaml:"geotiff_dir" mapstructure:"geotiff_dir"`
	// RPCDir contains the initial camera model files when RPCSource is not
	// "geotiff".
	RPCDir string `yaml:"rpc_dir" mapstructure:"rpc_dir"`
	// RPCSource tells where initial models come from: "geotiff" (sidecar
	// .rpc next to each image), "json" or "txt".
	RPCSource string `yaml:"rpc_src" mapstructure:"rpc_src"`
	// OutputDir receives initial/adjusted models, the AOI and statistics.
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`

	Strategy        string `yaml:"strategy" mapstructure:"strategy"`
	TimelineIndices []int  `yaml:"timeline_indices" mapstructure:"timeline_indices"`
	GeotiffLabel    string `yaml:"geotiff_label" mapstructure:"geotiff_label"`
	// PreviousDates is the number of anchor dates used by the sequential
	// strategy, and the pair lookahead of the global strategy.
	PreviousDates int `yaml:"n_dates" mapstructure:"n_dates"`

	CamModel          string   `yaml:"cam_model" mapstructure:"cam_model"`
	CorrectionParams  []string `yaml:"correction_params" mapstructure:"correction_params"`
	PredefinedMatches bool     `yaml:"predefined_matches" mapstructure:"predefined_matches"`
	FixRefCam         bool     `yaml:"fix_ref_cam" mapstructure:"fix_ref_cam"`
	RefCamWeight      float64  `yaml:"ref_cam_weight" mapstructure:"ref_cam_weight"`
	CleanOutliers     bool     `yaml:"clean_outliers" mapstructure:"clean_outliers"`
	Reset             bool     `yaml:"reset" mapstructure:"reset"`
	RemoveTempFiles   bool     `yaml:"remove_temp_files" mapstructure:"remove_temp_files"`
	// AOIGeoJSON optionally supplies the area of interest; when empty the
	// AOI is derived from the union of the image footprints.
	AOIGeoJSON string `yaml:"aoi_geojson" mapstructure:"aoi_geojson"`
}

// SolverConfig configures the external bundle-adjustment solver.
type SolverConfig struct {
	// Command is the solver executable; it receives the path of a JSON
	// manifest as its last argument.
	Command     string   `yaml:"command" mapstructure:"command"`
	Args        []string `yaml:"args" mapstructure:"args"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// MaxAttempts reruns a solver killed by a signal, 1 disables retries.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// validCorrectionParams are the camera parameter groups the solver may be
// asked to correct.
var validCorrectionParams = map[string]bool{
	"rotation":          true,
	"translation":       true,
	"intrinsics":        true,
	"shared-intrinsics": true,
}

// validRPCSources are the accepted rpc_src values.
var validRPCSources = map[string]bool{
	"geotiff": true,
	"json":    true,
	"txt":     true,
}

// Validate checks the scene configuration before any work is attempted.
// Directory and name errors here are fatal: no partial work follows them.
func (c *SceneConfig) Validate() error {
	if c.GeotiffDir == "" {
		return eris.New("config: geotiff_dir is required")
	}
	if info, err := os.Stat(c.GeotiffDir); err != nil || !info.IsDir() {
		return eris.Errorf("config: geotiff_dir %q does not exist", c.GeotiffDir)
	}
	if !validRPCSources[c.RPCSource] {
		return eris.Errorf("config: rpc_src %q is not valid, accepted values are: [geotiff, json, txt]", c.RPCSource)
	}
	if c.RPCSource != "geotiff" {
		if c.RPCDir == "" {
			return eris.Errorf("config: rpc_dir is required when rpc_src is %q", c.RPCSource)
		}
		if info, err := os.Stat(c.RPCDir); err != nil || !info.IsDir() {
			return eris.Errorf("config: rpc_dir %q does not exist", c.RPCDir)
		}
	}
	if c.OutputDir == "" {
		return eris.New("config: output_dir is required")
	}
	for _, p := range c.CorrectionParams {
		if !validCorrectionParams[p] {
			return eris.Errorf("config: %q is not a valid camera parameter to optimize", p)
		}
	}
	if c.RefCamWeight < 0 {
		return eris.Errorf("config: ref_cam_weight must be >= 0, got %f", c.RefCamWeight)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SATBA")
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
	v.SetDefault("scene.rpc_src", "geotiff")
	v.SetDefault("scene.strategy", "bruteforce")
	v.SetDefault("scene.n_dates", 1)
	v.SetDefault("scene.cam_model", "rpc")
	v.SetDefault("scene.correction_params", []string{"rotation"})
	v.SetDefault("scene.ref_cam_weight", 1.0)
	v.SetDefault("scene.clean_outliers", true)
	v.SetDefault("scene.reset", true)
	v.SetDefault("solver.command", "ba-solver")
	v.SetDefault("solver.timeout_secs", 0)
	v.SetDefault("solver.max_attempts", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
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
