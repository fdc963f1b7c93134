package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/trafficgen/pkg/reports"
	"github.com/rmax-ai/trafficgen/pkg/store"
)

type reportOptions struct {
	db         string
	reportType string
	format     string
	runID      string
	action     string
	since      time.Duration
	limit      int
	outFile    string
}

// newReportCmd creates the `report` command, which reads a history
// database written by earlier runs.
func newReportCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report from recorded run history",
		Example: `  trafficgen report --db history.db --type stats --run 6f1c...
  trafficgen report --db history.db --type outcomes --action delete_product --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.db == "" {
				opts.db = root.cfg.History.Path
			}
			return runReport(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.db, "db", "", "history database (default is history.path from the config)")
	f.StringVarP(&opts.reportType, "type", "t", string(reports.ReportTypeStats), "report type (outcomes, stats, runs)")
	f.StringVarP(&opts.format, "format", "f", string(reports.ReportFormatCSV), "output format (csv, json)")
	f.StringVar(&opts.runID, "run", "", "restrict to one run id")
	f.StringVar(&opts.action, "action", "", "restrict outcomes to one action")
	f.DurationVar(&opts.since, "since", 0, "only outcomes recorded within this window")
	f.IntVar(&opts.limit, "limit", 0, "maximum number of rows")
	f.StringVarP(&opts.outFile, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}

func runReport(cmd *cobra.Command, opts *reportOptions) error {
	if opts.db == "" {
		return fmt.Errorf("no history database: pass --db or set history.path")
	}
	if _, err := os.Stat(opts.db); err != nil {
		return fmt.Errorf("history database %s: %w", opts.db, err)
	}

	st, err := store.NewStore(opts.db)
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := reports.NewReportGenerator(reports.ReportType(opts.reportType), st)
	if err != nil {
		return err
	}
	params := reports.ReportParams{
		Format: reports.ReportFormat(opts.format),
		RunID:  opts.runID,
		Action: opts.action,
		Limit:  opts.limit,
	}
	if opts.since > 0 {
		params.Start = time.Now().Add(-opts.since)
	}

	reader, err := gen.Generate(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.outFile != "" {
		file, err := os.Create(opts.outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}
	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if opts.outFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", opts.outFile)
	}
	return nil
}
