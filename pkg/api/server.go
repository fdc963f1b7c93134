package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmax-ai/trafficgen/pkg/reports"
	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

const (
	defaultAddr          = "127.0.0.1:9095"
	defaultOutcomesLimit = 50
)

// TrackerInterface is the live view of the running scheduler.
type TrackerInterface interface {
	RunID() string
	Snapshot() traffic.Summary
	Recent(limit int) []traffic.Outcome
}

// RegistryInterface is the read side of the id registry.
type RegistryInterface interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Server exposes the live state of a run over HTTP.
type Server struct {
	tracker  TrackerInterface
	registry RegistryInterface
	history  reports.ReportStore
	server   *http.Server
	logger   *zap.Logger
}

// NewServer creates a status server. A nil logger disables request logs.
func NewServer(tracker TrackerInterface, registry RegistryInterface, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		addr = defaultAddr
	}

	s := &Server{
		tracker:  tracker,
		registry: registry,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/summary", s.handleSummary)
	mux.HandleFunc("/v1/outcomes", s.handleOutcomes)
	mux.HandleFunc("/v1/registry", s.handleRegistry)
	mux.HandleFunc("/v1/reports", s.handleReports)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      chain(mux, withTrace(logger), withRecovery(logger), withStatusHeaders(tracker.RunID)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// SetHistory enables /v1/reports on top of the run history.
func (s *Server) SetHistory(h reports.ReportStore) {
	s.history = h
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server_starting", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	sum := s.tracker.Snapshot()
	s.encode(w, r, http.StatusOK, SummaryResponse{Summary: sum, Totals: sum.Totals()})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	limit := defaultOutcomesLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", l)
			return
		}
		limit = val
	}
	s.encode(w, r, http.StatusOK, s.tracker.Recent(limit))
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	ids, err := s.registry.IDs(r.Context())
	if err != nil {
		s.logger.Error("failed_to_read_registry", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registry_unavailable", "")
		return
	}
	s.encode(w, r, http.StatusOK, RegistryResponse{Count: len(ids), IDs: ids})
}

// handleReports generates and streams reports from the run history.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "")
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		reportType = reports.ReportTypeStats
	}
	params := reports.ReportParams{
		Format: reports.ReportFormat(q.Get("format")),
		RunID:  q.Get("run"),
		Action: q.Get("action"),
	}
	if params.Format == "" {
		params.Format = reports.ReportFormatJSON
	}
	if l := q.Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", l)
			return
		}
		params.Limit = val
	}

	gen, err := reports.NewReportGenerator(reportType, s.history)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}
	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.logger.Error("failed_to_generate_report", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report_generation_failed", "")
		return
	}

	if params.Format == reports.ReportFormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s_%d.csv", reportType, time.Now().Unix()))
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("failed_to_stream_report", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.logger.Warn("failed_to_encode_response", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	_ = writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
