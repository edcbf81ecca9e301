package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/config"
	"github.com/HerbHall/sentineld/internal/detector"
	"github.com/HerbHall/sentineld/internal/ingest"
	"github.com/HerbHall/sentineld/internal/logstore"
	"github.com/HerbHall/sentineld/pkg/sensor"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	logger := zap.NewNop()

	detCfg := detector.DefaultConfig()
	detCfg.MinDataPoints = 2
	detCfg.MinTrainingSize = 3
	det, err := detector.New(detCfg, logger)
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}

	repCfg := autoreport.DefaultConfig()
	rep, err := autoreport.New(repCfg, logger)
	if err != nil {
		t.Fatalf("autoreport.New: %v", err)
	}

	dir := t.TempDir()
	logs, err := logstore.Open(dir)
	if err != nil {
		t.Fatalf("logstore.Open: %v", err)
	}

	cfgHolder, err := config.NewHolder(config.Snapshot{Detector: detCfg, Reporter: repCfg})
	if err != nil {
		t.Fatalf("config.NewHolder: %v", err)
	}

	coord := ingest.New(det, logs, nil, rep, nil, logger)
	s := New(":0", coord, cfgHolder, det, rep, logs, nil, logger)

	return s, func() { logs.Close() }
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyzeRejectsEmptySensorType(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, s.mux, http.MethodPost, "/analyze", map[string]any{"value": 1.0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAnalyzeReportsTimeoutProblem(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	body, err := json.Marshal(map[string]any{"sensor_type": "temperature", "value": 10.0})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
	var problem Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Type != ProblemTypeTimeout {
		t.Errorf("expected problem type %q, got %q", ProblemTypeTimeout, problem.Type)
	}
}

func TestHandleAnalyzeReturnsResult(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, s.mux, http.MethodPost, "/analyze", map[string]any{
		"sensor_type": "temperature",
		"value":       10.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result sensor.AnomalyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.SystemStatus != sensor.StatusInitializing {
		t.Errorf("expected Initializing status on first reading, got %s", result.SystemStatus)
	}
	if result.IsAnomaly {
		t.Errorf("expected no anomaly during warm-up")
	}
}

func TestHandleStatsReflectsIngestedReadings(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		doJSON(t, s.mux, http.MethodPost, "/analyze", map[string]any{
			"sensor_type": "pressure",
			"value":       float64(10 + i),
		})
	}

	rec := doJSON(t, s.mux, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats map[string]sensor.StatSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	got, ok := stats["pressure"]
	if !ok {
		t.Fatalf("expected a pressure entry, got %v", stats)
	}
	if got.DataPoints != 3 {
		t.Errorf("expected 3 data points, got %d", got.DataPoints)
	}
}

func TestHandleResetClearsWindowsAndBuckets(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	doJSON(t, s.mux, http.MethodPost, "/analyze", map[string]any{"sensor_type": "flow", "value": 5.0})

	rec := doJSON(t, s.mux, http.MethodPost, "/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	statsRec := doJSON(t, s.mux, http.MethodGet, "/stats", nil)
	var stats map[string]sensor.StatSummary
	if err := json.Unmarshal(statsRec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("expected no sensors after reset, got %v", stats)
	}
}

func TestHandleConfigRoundTrip(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	getRec := doJSON(t, s.mux, http.MethodGet, "/config", nil)
	var snap config.Snapshot
	if err := json.Unmarshal(getRec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode config: %v", err)
	}

	putRec := doJSON(t, s.mux, http.MethodPut, "/config", snap)
	if putRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on no-op PUT, got %d: %s", putRec.Code, putRec.Body.String())
	}

	getRec2 := doJSON(t, s.mux, http.MethodGet, "/config", nil)
	var snap2 config.Snapshot
	if err := json.Unmarshal(getRec2.Body.Bytes(), &snap2); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if snap2.Detector.WindowSize != snap.Detector.WindowSize {
		t.Errorf("config changed after no-op PUT: %+v vs %+v", snap, snap2)
	}
}

func TestHandlePutConfigRejectsInvalid(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	snap := config.DefaultSnapshot()
	snap.Detector.MinDataPoints = 0 // invalid: must be >= 2

	rec := doJSON(t, s.mux, http.MethodPut, "/config", snap)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid config, got %d", rec.Code)
	}
}

func TestHandleAutoReportStatus(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, s.mux, http.MethodGet, "/auto-report/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["state"] != string(sensor.StateNormal) {
		t.Errorf("expected NORMAL state at start, got %v", status["state"])
	}
}

func TestHandleHealthReportsActiveSensors(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	doJSON(t, s.mux, http.MethodPost, "/analyze", map[string]any{"sensor_type": "humidity", "value": 1.0})

	rec := doJSON(t, s.mux, http.MethodGet, "/health", nil)
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if int(health["active_sensors"].(float64)) != 1 {
		t.Errorf("expected 1 active sensor, got %v", health["active_sensors"])
	}
}
