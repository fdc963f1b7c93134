package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mcpserver "github.com/rmax-ai/trafficgen/pkg/mcp"
	"github.com/rmax-ai/trafficgen/pkg/observability"
	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// newMCPCmd creates the `mcp` command, which serves single actions to an
// agent over stdio.
func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve traffic actions over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			env, err := newEnvironment(cmd.Context(), root.cfg, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			sessionID := "mcp-" + uuid.NewString()
			tracker := traffic.NewTracker(sessionID, 0)
			recorders := []traffic.Recorder{traffic.MetricsRecorder{}}
			if env.history != nil {
				if err := env.history.BeginRun(cmd.Context(), sessionID, env.target.Endpoint(), env.seed, time.Now()); err != nil {
					return err
				}
				recorders = append(recorders, env.history.Recorder(sessionID))
			}

			logger.Info("mcp_serving", zap.String("session_id", sessionID), zap.String("target", env.target.Endpoint()))
			err = mcpserver.NewServer(env.catalog, tracker, logger.Named("mcp"), recorders...).Serve()
			if env.history != nil {
				sum := tracker.Snapshot()
				sum.Duration = time.Since(sum.StartedAt)
				if ferr := env.history.FinishRun(context.WithoutCancel(cmd.Context()), sum); ferr != nil {
					logger.Warn("history_finish_failed", zap.Error(ferr))
				}
			}
			return err
		},
	}
}
