// Package config loads process-wide application configuration via viper,
// the same construction this module uses for broker specs: SetConfigFile,
// SetEnvPrefix + AutomaticEnv for overrides, Unmarshal, then an explicit
// Validate pass. Grounded on this module's existing viper-based config
// loader, generalized from a single-purpose trading config to the four
// ancillary boolean flags the backtesting engine honors (§6, §10).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide ambient configuration (§10).
type Config struct {
	// DevMode relaxes strict validation (e.g. allows overlapping scenario
	// windows) for local iteration.
	DevMode bool `mapstructure:"dev_mode"`
	// Debug forces the batch coordinator into sequential dispatch so a
	// debugger attached to the process sees a deterministic, single
	// goroutine call stack (§4.10).
	Debug bool `mapstructure:"debug"`
	// MoveFiles moves (rather than copies) collector output into the tick
	// store on import.
	MoveFiles bool `mapstructure:"move_files"`
	// DeleteOnError removes partially imported files if an import fails
	// partway through.
	DeleteOnError bool `mapstructure:"delete_on_error"`

	DataRoot   string `mapstructure:"data_root"`
	ConfigRoot string `mapstructure:"config_root"`
}

// Default returns the zero-value-safe defaults before any override layer
// is applied.
func Default() Config {
	return Config{
		DataRoot:   "./data",
		ConfigRoot: "./configs",
	}
}

// Load reads an optional JSON config file (configPath may be empty, in
// which case only environment variables and defaults apply) and binds the
// four FINIEX_* boolean environment overrides on top of it.
func Load(configPath string) (Config, error) {
	v := viper.New()
	cfg := Default()
	v.SetDefault("dev_mode", cfg.DevMode)
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("move_files", cfg.MoveFiles)
	v.SetDefault("delete_on_error", cfg.DeleteOnError)
	v.SetDefault("data_root", cfg.DataRoot)
	v.SetDefault("config_root", cfg.ConfigRoot)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("FINIEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// Validate checks invariants that SetDefault/AutomaticEnv can't enforce on
// their own.
func (c Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("config: data_root must not be empty")
	}
	if c.ConfigRoot == "" {
		return fmt.Errorf("config: config_root must not be empty")
	}
	return nil
}
