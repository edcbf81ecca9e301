// Package server provides the HTTP transport adapter over the ingest
// coordinator, config holder, detector, auto-reporter, and log store. The
// core never imports this package; it only consumes the core's exported
// operations.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/config"
	"github.com/HerbHall/sentineld/internal/detector"
	"github.com/HerbHall/sentineld/internal/dispatch"
	"github.com/HerbHall/sentineld/internal/ingest"
	"github.com/HerbHall/sentineld/internal/logstore"
	"github.com/HerbHall/sentineld/internal/version"
	"github.com/HerbHall/sentineld/pkg/sensor"
)

// SimpleRouteRegistrar lets an external package (the WebSocket streaming
// adapter) mount extra routes without an import cycle.
type SimpleRouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the sensor anomaly detection service's HTTP transport adapter.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger

	coord  *ingest.Coordinator
	cfg    *config.Holder
	det    *detector.Detector
	rep    *autoreport.Reporter
	logs   *logstore.Store
	disp   *dispatch.Dispatcher
}

// New builds the server, registers every HTTP route, and wraps the mux in
// the standard middleware chain (recovery, request ID, logging+metrics,
// security headers, version header, per-IP rate limiting).
func New(addr string, coord *ingest.Coordinator, cfg *config.Holder, det *detector.Detector, rep *autoreport.Reporter, logs *logstore.Store, disp *dispatch.Dispatcher, logger *zap.Logger, extraRoutes ...SimpleRouteRegistrar) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		logger: logger,
		coord:  coord,
		cfg:    cfg,
		det:    det,
		rep:    rep,
		logs:   logs,
		disp:   disp,
	}

	s.registerRoutes()
	for _, r := range extraRoutes {
		r.RegisterRoutes(mux)
	}

	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, []string{"/healthz", "/readyz", "/metrics"}),
	}
	handler := Chain(mux, middlewares...)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /config", s.handlePutConfig)
	s.mux.HandleFunc("POST /reset", s.handleReset)

	s.mux.HandleFunc("GET /auto-report/status", s.handleAutoReportStatus)
	s.mux.HandleFunc("PUT /auto-report/config", s.handleAutoReportConfig)
	s.mux.HandleFunc("POST /auto-report/clear-buffer", s.handleAutoReportClearBuffer)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleHealth implements GET /health: {status, active_sensors}.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.det.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"active_sensors": len(stats),
		"version":       version.Short(),
	})
}

// analyzeRequest is the POST /analyze request body.
type analyzeRequest struct {
	SensorID   string    `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// handleAnalyze implements POST /analyze: validate, evaluate, log,
// broadcast, and (for anomalies) drive the auto-reporter.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error(), r.URL.Path)
		return
	}

	reading := sensor.Reading{
		SensorID:   req.SensorID,
		SensorType: req.SensorType,
		Value:      req.Value,
		Unit:       req.Unit,
		Timestamp:  req.Timestamp,
	}

	result, err := s.coord.Ingest(r.Context(), reading)
	if err != nil {
		var verr *ingest.ValidationError
		if asValidationError(err, &verr) {
			BadRequest(w, verr.Error(), r.URL.Path)
			return
		}
		if r.Context().Err() != nil {
			Timeout(w, err.Error(), r.URL.Path)
			return
		}
		InternalError(w, err.Error(), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func asValidationError(err error, target **ingest.ValidationError) bool {
	verr, ok := err.(*ingest.ValidationError)
	if ok {
		*target = verr
	}
	return ok
}

// handleStats implements GET /stats: per-sensor statistics keyed by
// sensor_type.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]sensor.StatSummary)
	for _, stat := range s.det.Stats() {
		out[stat.SensorType] = stat
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleHistory implements GET /history?n=: last-N readings grouped by
// sensor type. n defaults to 100.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := 100
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.logs.HistoryBySensor(n))
}

// handleGetConfig implements GET /config.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cfg.Get())
}

// handlePutConfig implements PUT /config: validates and either applies the
// whole new snapshot atomically (detector, reporter, and the holder itself)
// or fails without touching any of them.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var snap config.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		BadRequest(w, "malformed config body: "+err.Error(), r.URL.Path)
		return
	}
	if err := snap.Validate(); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}

	if err := s.det.Reconfigure(snap.Detector); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if err := s.rep.Reconfigure(snap.Reporter); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if err := s.cfg.Set(snap); err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// handleReset implements POST /reset: clears in-memory windows, the anomaly
// buffer, the leaky bucket, and the state machine. Persisted files are left
// untouched.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.det.Reset()
	s.rep.Reset()
	s.logs.ClearMemory()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// handleAutoReportStatus implements GET /auto-report/status.
func (s *Server) handleAutoReportStatus(w http.ResponseWriter, _ *http.Request) {
	sent, skippedCooldown := s.rep.Stats()
	overflow, failures := 0, 0
	if s.disp != nil {
		overflow, failures = s.disp.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"enabled":                  s.rep.Config().Enabled,
		"state":                    s.rep.State(),
		"reports_sent":             sent,
		"reports_skipped_cooldown": skippedCooldown,
		"dispatch_queue_dropped":   overflow,
		"dispatch_failures":        failures,
	})
}

// handleAutoReportConfig implements PUT /auto-report/config.
func (s *Server) handleAutoReportConfig(w http.ResponseWriter, r *http.Request) {
	var cfg autoreport.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		BadRequest(w, "malformed reporter config body: "+err.Error(), r.URL.Path)
		return
	}
	if err := s.rep.Reconfigure(cfg); err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}

	snap := s.cfg.Get()
	snap.Reporter = cfg
	if err := s.cfg.Set(snap); err != nil {
		InternalError(w, err.Error(), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

// handleAutoReportClearBuffer implements POST /auto-report/clear-buffer.
func (s *Server) handleAutoReportClearBuffer(w http.ResponseWriter, _ *http.Request) {
	s.rep.ClearBuffer()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}
