package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rmax-ai/trafficgen/pkg/observability"
)

// rootOptions carries state shared by the root command and its children.
type rootOptions struct {
	v       *viper.Viper
	cfgFile string
	weights map[string]string
	cfg     *Config
}

// flagBindings maps viper keys to the flags that override them.
var flagBindings = map[string]string{
	"target.base_url":     "target",
	"target.wait_ready":   "wait-ready",
	"run.iterations":      "iterations",
	"run.sleep_min":       "sleep-min",
	"run.sleep_max":       "sleep-max",
	"run.seed":            "seed",
	"run.search_ratio":    "search-ratio",
	"registry.backend":    "registry",
	"registry.capacity":   "registry-capacity",
	"registry.redis.addr": "redis-addr",
	"history.path":        "history",
	"status.addr":         "status-addr",
}

var persistentBindings = map[string]string{
	"logger.level":  "log-level",
	"logger.format": "log-format",
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	SetDefaults(opts.v)

	var (
		asJSON  bool
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "trafficgen",
		Short: "Generate weighted random synthetic traffic against a product API.",
		Long: `trafficgen drives a product catalog API with a weighted random mix of
creates, queries, deletes and deliberately failing calls, so that its logs,
traces and metrics have something realistic to show.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runTraffic(cmd.Context(), opts.cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), summary, asJSON, outFile)
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./trafficgen.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, console)")

	f := cmd.Flags()
	f.String("target", "http://localhost:5000", "base URL of the target API")
	f.Duration("wait-ready", 0, "wait up to this long for the target to answer before starting")
	f.IntP("iterations", "n", 0, "number of actions to run (0 runs until interrupted)")
	f.Duration("sleep-min", 0, "minimum pause between actions")
	f.Duration("sleep-max", 0, "maximum pause between actions")
	f.Int64("seed", 0, "random seed (0 picks one from the clock)")
	f.Float64("search-ratio", 0, "probability that a query is a search rather than a full listing")
	f.StringToStringVar(&opts.weights, "weights", nil, "override action weights, e.g. create_product=0.5,trigger_slow=0")
	f.String("registry", "memory", "product id registry backend (memory, redis)")
	f.Int("registry-capacity", 0, "maximum number of remembered product ids")
	f.String("redis-addr", "", "redis address for the redis registry backend")
	f.String("history", "", "record the run into this SQLite database")
	f.String("status-addr", "", "serve live status on this address while running")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	f.StringVar(&outFile, "out", "", "write the summary to a file instead of stdout")

	for key, name := range flagBindings {
		_ = opts.v.BindPFlag(key, f.Lookup(name))
	}
	for key, name := range persistentBindings {
		_ = opts.v.BindPFlag(key, pf.Lookup(name))
	}

	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	return cmd
}

// load resolves configuration and initializes the process logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := initializeConfig(o.v, o.cfgFile); err != nil {
		observability.InitializeLogger(observability.LoggerConfig{Level: "info", Format: "console", ServiceName: "trafficgen"})
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	weights, err := parseWeights(o.weights)
	if err != nil {
		return err
	}
	cfg, err := NewConfigFromViper(o.v, weights)
	if err != nil {
		observability.InitializeLogger(observability.LoggerConfig{Level: "info", Format: "console", ServiceName: "trafficgen"})
		return fmt.Errorf("failed to load or validate config: %w", err)
	}
	o.cfg = cfg

	// stdout belongs to the protocol or the report for these commands.
	switch cmd.Name() {
	case "mcp", "report":
		observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
	default:
		observability.InitializeLogger(cfg.Logger)
	}
	observability.GetLogger().Debug("config_loaded",
		zap.String("version", Version),
		zap.String("config_file", o.v.ConfigFileUsed()),
	)
	return nil
}
