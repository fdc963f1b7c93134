package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := NewConfigFromViper(newTestViper(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Target.BaseURL)
	assert.Equal(t, time.Second, cfg.Run.SleepMin)
	assert.Equal(t, 3*time.Second, cfg.Run.SleepMax)
	assert.Equal(t, 0, cfg.Run.Iterations)
	assert.Equal(t, traffic.DefaultWeights(), cfg.Actions)
	assert.Equal(t, "memory", cfg.Registry.Backend)
	assert.Equal(t, traffic.DefaultRegistryCapacity, cfg.Registry.Capacity)
	assert.Equal(t, "/products", cfg.Target.Paths.Products)
	assert.Equal(t, "trafficgen", cfg.Logger.ServiceName)
}

func TestBackendURLFromEnvironment(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend:8080")

	v := newTestViper(t)
	require.NoError(t, initializeConfig(v, ""))
	cfg, err := NewConfigFromViper(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8080", cfg.Target.BaseURL)

	t.Setenv("TRAFFICGEN_TARGET_BASE_URL", "http://preferred:9000")
	v = newTestViper(t)
	require.NoError(t, initializeConfig(v, ""))
	cfg, err = NewConfigFromViper(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://preferred:9000", cfg.Target.BaseURL)
}

func TestNestedEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRAFFICGEN_RUN_ITERATIONS", "7")
	t.Setenv("TRAFFICGEN_RUN_SLEEP_MAX", "5s")
	t.Setenv("TRAFFICGEN_REGISTRY_BACKEND", "redis")

	v := newTestViper(t)
	require.NoError(t, initializeConfig(v, ""))
	cfg, err := NewConfigFromViper(v, nil)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Run.Iterations)
	assert.Equal(t, 5*time.Second, cfg.Run.SleepMax)
	assert.Equal(t, "redis", cfg.Registry.Backend)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafficgen.yaml")
	content := `
target:
  base_url: http://shop.internal:5000
  paths:
    products: /api/products
run:
  iterations: 250
  sleep_min: 100ms
  sleep_max: 250ms
  seed: 99
actions:
  - name: create_product
    weight: 2
  - name: query_products
    weight: 1
history:
  path: /var/lib/trafficgen/history.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := newTestViper(t)
	require.NoError(t, initializeConfig(v, path))
	cfg, err := NewConfigFromViper(v, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://shop.internal:5000", cfg.Target.BaseURL)
	assert.Equal(t, "/api/products", cfg.Target.Paths.Products)
	assert.Equal(t, "/error-test", cfg.Target.Paths.Error, "unset paths keep their defaults")
	assert.Equal(t, 250, cfg.Run.Iterations)
	assert.Equal(t, 100*time.Millisecond, cfg.Run.SleepMin)
	assert.Equal(t, int64(99), cfg.Run.Seed)
	assert.Equal(t, []traffic.Weight{
		{Name: traffic.ActionCreateProduct, Weight: 2},
		{Name: traffic.ActionQueryProducts, Weight: 1},
	}, cfg.Actions)
	assert.Equal(t, "/var/lib/trafficgen/history.db", cfg.History.Path)
}

func TestMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unterminated"), 0o644))

	err := initializeConfig(newTestViper(t), path)
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty target", func(c *Config) { c.Target.BaseURL = "" }},
		{"relative target", func(c *Config) { c.Target.BaseURL = "localhost" }},
		{"negative iterations", func(c *Config) { c.Run.Iterations = -1 }},
		{"negative sleep", func(c *Config) { c.Run.SleepMin = -time.Second }},
		{"inverted sleep", func(c *Config) { c.Run.SleepMin, c.Run.SleepMax = 3*time.Second, time.Second }},
		{"search ratio", func(c *Config) { c.Run.SearchRatio = 1.5 }},
		{"no actions", func(c *Config) { c.Actions = nil }},
		{"unknown action", func(c *Config) { c.Actions = append(c.Actions, traffic.Weight{Name: "drop_tables", Weight: 1}) }},
		{"unknown backend", func(c *Config) { c.Registry.Backend = "etcd" }},
		{"redis without addr", func(c *Config) { c.Registry.Backend = "redis"; c.Registry.Redis.Addr = "" }},
		{"zero capacity", func(c *Config) { c.Registry.Capacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfigFromViper(newTestViper(t), nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWeightOverrides(t *testing.T) {
	base := []traffic.Weight{
		{Name: traffic.ActionCreateProduct, Weight: 0.5},
		{Name: traffic.ActionQueryProducts, Weight: 0.5},
	}

	got := applyWeights(base, map[string]float64{
		traffic.ActionQueryProducts: 0,
		traffic.ActionTriggerSlow:   0.2,
	})
	assert.Equal(t, []traffic.Weight{
		{Name: traffic.ActionCreateProduct, Weight: 0.5},
		{Name: traffic.ActionQueryProducts, Weight: 0},
		{Name: traffic.ActionTriggerSlow, Weight: 0.2},
	}, got)
	assert.Equal(t, 0.5, base[1].Weight, "input is not modified")

	cfg, err := NewConfigFromViper(newTestViper(t), map[string]float64{"bogus": 1})
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestParseWeights(t *testing.T) {
	got, err := parseWeights(map[string]string{"create_product": "0.25", " trigger_slow ": " 1 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"create_product": 0.25, "trigger_slow": 1}, got)

	_, err = parseWeights(map[string]string{"create_product": "lots"})
	assert.Error(t, err)
}
