package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime settings for the binaries. Values come from an
// optional config.yaml and BUDGET_-prefixed environment variables, env
// winning.
type Config struct {
	DatabaseURL string        `mapstructure:"database_url"`
	Environment string        `mapstructure:"environment"`
	Planner     PlannerConfig `mapstructure:"planner"`
}

type PlannerConfig struct {
	// Interval between sweeps of the due plans.
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads the configuration. An empty path means config.yaml in the
// working directory; a missing file is fine, env alone is enough.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_url", "")
	v.SetDefault("environment", "development")
	v.SetDefault("planner.interval", time.Hour)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("BUDGET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
