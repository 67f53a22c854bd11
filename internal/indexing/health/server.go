package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/indexing/status"
)

// Ingestor records a webhook delivery.
type Ingestor interface {
	Ingest(ctx context.Context, event *domain.StreamEvent) (*ingest.Result, error)
}

// DaysReader reports on committed days.
type DaysReader interface {
	Days(ctx context.Context, q status.DaysQuery) (*status.DaysReport, error)
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port         int
	MaxBodyBytes int64
	Chain        domain.Chain
}

// Server provides the ingest webhook and the monitoring endpoints.
type Server struct {
	cfg        ServerConfig
	monitor    *Monitor
	ingestor   Ingestor
	processing ProcessingReader
	days       DaysReader
	logger     *slog.Logger
	server     *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg ServerConfig,
	ingestor Ingestor,
	monitor *Monitor,
	inspector *status.Inspector,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		monitor:    monitor,
		ingestor:   ingestor,
		processing: inspector,
		days:       inspector,
		logger:     logger.With("component", "http"),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /status/processing", s.handleProcessing)
	mux.HandleFunc("GET /status/days", s.handleDays)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := domain.DecodeStreamEvent(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), event)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Error("Ingest failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.Status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleProcessing(w http.ResponseWriter, r *http.Request) {
	p, err := s.processing.Processing(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	report, err := s.daysPage(r)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) daysPage(r *http.Request) (*status.DaysReport, error) {
	v := r.URL.Query()
	q := status.DaysQuery{From: v.Get("from"), To: v.Get("to")}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"offset", &q.Offset}, {"limit", &q.Limit}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &domain.ValidationError{Field: p.name, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		*p.dst = n
	}
	return s.days.Days(r.Context(), q)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, domain.NewErrorResponse(s.cfg.Chain, err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
