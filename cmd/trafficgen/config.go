package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rmax-ai/trafficgen/pkg/client"
	"github.com/rmax-ai/trafficgen/pkg/observability"
	storeredis "github.com/rmax-ai/trafficgen/pkg/store/redis"
	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

const envPrefix = "TRAFFICGEN"

// Config is the complete trafficgen configuration.
type Config struct {
	Target   TargetConfig               `mapstructure:"target"`
	Run      RunConfig                  `mapstructure:"run"`
	Actions  []traffic.Weight           `mapstructure:"actions"`
	Registry RegistryConfig             `mapstructure:"registry"`
	History  HistoryConfig              `mapstructure:"history"`
	Status   StatusConfig               `mapstructure:"status"`
	Logger   observability.LoggerConfig `mapstructure:"logger"`
}

type TargetConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	WaitReady time.Duration `mapstructure:"wait_ready"`
	Paths     client.Paths  `mapstructure:"paths"`
}

type RunConfig struct {
	Iterations  int           `mapstructure:"iterations"`
	SleepMin    time.Duration `mapstructure:"sleep_min"`
	SleepMax    time.Duration `mapstructure:"sleep_max"`
	Seed        int64         `mapstructure:"seed"`
	SearchRatio float64       `mapstructure:"search_ratio"`
}

type RegistryConfig struct {
	Backend  string      `mapstructure:"backend"` // memory | redis
	Capacity int         `mapstructure:"capacity"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	paths := client.DefaultPaths()
	v.SetDefault("target.base_url", "http://localhost:5000")
	v.SetDefault("target.timeout", "10s")
	v.SetDefault("target.wait_ready", "0s")
	v.SetDefault("target.paths.products", paths.Products)
	v.SetDefault("target.paths.error", paths.Error)
	v.SetDefault("target.paths.slow", paths.Slow)
	v.SetDefault("target.paths.db_error", paths.DBError)
	v.SetDefault("target.paths.status", paths.Status)

	v.SetDefault("run.iterations", 0)
	v.SetDefault("run.sleep_min", "1s")
	v.SetDefault("run.sleep_max", "3s")
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.search_ratio", traffic.DefaultSearchRatio)

	weights := make([]map[string]any, 0, len(traffic.DefaultWeights()))
	for _, w := range traffic.DefaultWeights() {
		weights = append(weights, map[string]any{"name": w.Name, "weight": w.Weight})
	}
	v.SetDefault("actions", weights)

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.capacity", traffic.DefaultRegistryCapacity)
	v.SetDefault("registry.redis.addr", "localhost:6379")
	v.SetDefault("registry.redis.password", "")
	v.SetDefault("registry.redis.db", 0)
	v.SetDefault("registry.redis.key", storeredis.DefaultKey)

	v.SetDefault("history.path", "")
	v.SetDefault("status.addr", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service_name", "trafficgen")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// initializeConfig reads the config file and environment into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("trafficgen")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// BACKEND_URL is what the demo stack's compose files already export.
	if err := v.BindEnv("target.base_url", envPrefix+"_TARGET_BASE_URL", "BACKEND_URL"); err != nil {
		return fmt.Errorf("failed to bind target.base_url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// NewConfigFromViper decodes the configuration, applies the --weights
// overrides and validates the result.
func NewConfigFromViper(v *viper.Viper, weights map[string]float64) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(weights) > 0 {
		cfg.Actions = applyWeights(cfg.Actions, weights)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required")
	}
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target.base_url %q is not an absolute URL", c.Target.BaseURL)
	}
	if c.Target.Timeout < 0 || c.Target.WaitReady < 0 {
		return fmt.Errorf("target timeouts must not be negative")
	}

	if c.Run.Iterations < 0 {
		return fmt.Errorf("run.iterations must not be negative")
	}
	if c.Run.SleepMin < 0 || c.Run.SleepMax < 0 {
		return fmt.Errorf("run sleep bounds must not be negative")
	}
	if c.Run.SleepMin > c.Run.SleepMax {
		return fmt.Errorf("run.sleep_min (%s) exceeds run.sleep_max (%s)", c.Run.SleepMin, c.Run.SleepMax)
	}
	if c.Run.SearchRatio < 0 || c.Run.SearchRatio > 1 {
		return fmt.Errorf("run.search_ratio must be within [0, 1], got %v", c.Run.SearchRatio)
	}

	if len(c.Actions) == 0 {
		return fmt.Errorf("at least one action must be configured")
	}
	known := make(map[string]bool)
	for _, name := range traffic.ActionNames() {
		known[name] = true
	}
	for _, a := range c.Actions {
		if !known[a.Name] {
			return fmt.Errorf("unknown action %q", a.Name)
		}
	}

	switch c.Registry.Backend {
	case "memory":
	case "redis":
		if c.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown registry.backend %q", c.Registry.Backend)
	}
	if c.Registry.Capacity < 1 {
		return fmt.Errorf("registry.capacity must be a positive integer")
	}
	return nil
}

// applyWeights overrides configured weights by name. Names not already
// configured are appended in their default order.
func applyWeights(actions []traffic.Weight, overrides map[string]float64) []traffic.Weight {
	out := make([]traffic.Weight, len(actions))
	copy(out, actions)

	seen := make(map[string]bool)
	for i := range out {
		if w, ok := overrides[out[i].Name]; ok {
			out[i].Weight = w
		}
		seen[out[i].Name] = true
	}
	for _, name := range traffic.ActionNames() {
		if w, ok := overrides[name]; ok && !seen[name] {
			out = append(out, traffic.Weight{Name: name, Weight: w})
			seen[name] = true
		}
	}
	// Unknown names are appended too so Validate can reject them.
	for name, w := range overrides {
		if !seen[name] {
			out = append(out, traffic.Weight{Name: name, Weight: w})
		}
	}
	return out
}

// parseWeights converts name=value pairs from the command line.
func parseWeights(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for name, val := range raw {
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %q", name, val)
		}
		out[strings.TrimSpace(name)] = w
	}
	return out, nil
}
