package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeOutcomes:
		return NewOutcomeReport(s), nil
	case ReportTypeStats:
		return NewStatsReport(s), nil
	case ReportTypeRuns:
		return NewRunsReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}

// render writes rows as CSV, or v as indented JSON.
func render(format ReportFormat, headers []string, rows [][]string, v any) (io.Reader, error) {
	buf := &bytes.Buffer{}

	switch format {
	case ReportFormatJSON:
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
	case ReportFormatCSV, "":
		writer := csv.NewWriter(buf)
		if err := writer.Write(headers); err != nil {
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
		if err := writer.WriteAll(rows); err != nil {
			return nil, fmt.Errorf("failed to write rows: %w", err)
		}
		if err := writer.Error(); err != nil {
			return nil, fmt.Errorf("failed to flush writer: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}

	return buf, nil
}
