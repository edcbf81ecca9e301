package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(sensorType string, anomalous bool) sensor.AnomalyResult {
	return sensor.AnomalyResult{
		SensorType:   sensorType,
		CurrentValue: 12.5,
		Mean:         10,
		StdDev:       1.5,
		ZScore:       1.67,
		Threshold:    2.0,
		Timestamp:    time.Now(),
		IsAnomaly:    anomalous,
		Severity:     sensor.SeverityNormal,
		SystemStatus: sensor.StatusActive,
		Message:      "test row",
	}
}

func TestStore_LogWritesBothFilesForAnomalies(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Log(sampleResult("temperature", true)); err != nil {
		t.Fatalf("Log: %v", err)
	}

	allBytes, err := os.ReadFile(filepath.Join(dir, "all_readings.csv"))
	if err != nil {
		t.Fatalf("read all_readings.csv: %v", err)
	}
	if lines := strings.Split(strings.TrimRight(string(allBytes), "\n"), "\n"); len(lines) != 2 {
		t.Errorf("expected header + 1 row in all_readings.csv, got %d lines", len(lines))
	}

	anomBytes, err := os.ReadFile(filepath.Join(dir, "anomalies.csv"))
	if err != nil {
		t.Fatalf("read anomalies.csv: %v", err)
	}
	if lines := strings.Split(strings.TrimRight(string(anomBytes), "\n"), "\n"); len(lines) != 2 {
		t.Errorf("expected header + 1 row in anomalies.csv, got %d lines", len(lines))
	}
}

func TestStore_LogSkipsAnomalyFileForNormalReadings(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Log(sampleResult("temperature", false)); err != nil {
		t.Fatalf("Log: %v", err)
	}

	anomBytes, err := os.ReadFile(filepath.Join(dir, "anomalies.csv"))
	if err != nil {
		t.Fatalf("read anomalies.csv: %v", err)
	}
	if lines := strings.Split(strings.TrimRight(string(anomBytes), "\n"), "\n"); len(lines) != 1 {
		t.Errorf("expected only the header row in anomalies.csv, got %d lines", len(lines))
	}
}

func TestStore_RingBuffersCapAt1000(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 1200; i++ {
		if err := s.Log(sampleResult("temperature", false)); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	total, _, _ := s.Stats()
	if total != ringCapacity {
		t.Errorf("expected the ring buffer to cap at %d, got %d", ringCapacity, total)
	}
}

func TestStore_RecentAnomaliesFiltersNonAnomalous(t *testing.T) {
	s := newTestStore(t)
	s.Log(sampleResult("t", false))
	s.Log(sampleResult("t", true))
	s.Log(sampleResult("t", false))

	anomalies := s.RecentAnomalies(10)
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly 1 anomaly, got %d", len(anomalies))
	}
	if !anomalies[0].IsAnomaly {
		t.Errorf("expected the returned entry to be anomalous")
	}
}

func TestStore_HistoryGroupsBySensorType(t *testing.T) {
	s := newTestStore(t)
	s.Log(sampleResult("temperature", false))
	s.Log(sampleResult("humidity", false))
	s.Log(sampleResult("temperature", false))

	hist := s.HistoryBySensor(10)
	if len(hist["temperature"]) != 2 {
		t.Errorf("expected 2 temperature entries, got %d", len(hist["temperature"]))
	}
	if len(hist["humidity"]) != 1 {
		t.Errorf("expected 1 humidity entry, got %d", len(hist["humidity"]))
	}
}

func TestStore_ClearMemoryLeavesFilesIntact(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Log(sampleResult("t", true))
	s.ClearMemory()

	total, anomalies, _ := s.Stats()
	if total != 0 || anomalies != 0 {
		t.Errorf("expected empty in-memory buffers after ClearMemory, got total=%d anomalies=%d", total, anomalies)
	}

	allBytes, err := os.ReadFile(filepath.Join(dir, "all_readings.csv"))
	if err != nil {
		t.Fatalf("read all_readings.csv: %v", err)
	}
	if lines := strings.Split(strings.TrimRight(string(allBytes), "\n"), "\n"); len(lines) != 2 {
		t.Errorf("expected the on-disk file to retain its row after ClearMemory, got %d lines", len(lines))
	}
}

func TestStore_ReopenAppendsWithoutDuplicatingHeader(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Log(sampleResult("t", false))
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	s2.Log(sampleResult("t", false))

	allBytes, err := os.ReadFile(filepath.Join(dir, "all_readings.csv"))
	if err != nil {
		t.Fatalf("read all_readings.csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(allBytes), "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header + 2 rows across both sessions, got %d lines", len(lines))
	}
	headerCount := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "timestamp,") {
			headerCount++
		}
	}
	if headerCount != 1 {
		t.Errorf("expected exactly one header line, got %d", headerCount)
	}
}
