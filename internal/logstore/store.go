// Package logstore persists every ingest result to bounded in-memory ring
// buffers and append-only CSV files, matching the schema the source system
// wrote to all_readings.csv and anomalies.csv.
package logstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

const ringCapacity = 1000

var allReadingsHeader = []string{
	"timestamp", "sensor_id", "sensor_type", "value", "unit",
	"mean", "std_dev", "z_score", "threshold", "is_anomaly", "severity",
}

var anomaliesHeader = []string{
	"timestamp", "sensor_id", "sensor_type", "value", "unit",
	"mean", "std_dev", "z_score", "threshold", "severity", "message",
}

// Store is the log store (C8): two bounded ring buffers plus two append-only
// CSV files, one per-row write per ingest.
type Store struct {
	mu        sync.Mutex
	allBuf    []sensor.AnomalyResult
	anomalies []sensor.AnomalyResult

	allFile    *os.File
	allWriter  *csv.Writer
	anomFile   *os.File
	anomWriter *csv.Writer
}

// Open creates (or appends to) all_readings.csv and anomalies.csv under dir,
// writing headers only to freshly-created files.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logstore: create log directory: %w", err)
	}

	allFile, allWriter, err := openCSV(filepath.Join(dir, "all_readings.csv"), allReadingsHeader)
	if err != nil {
		return nil, err
	}
	anomFile, anomWriter, err := openCSV(filepath.Join(dir, "anomalies.csv"), anomaliesHeader)
	if err != nil {
		allFile.Close()
		return nil, err
	}

	return &Store{
		allFile:    allFile,
		allWriter:  allWriter,
		anomFile:   anomFile,
		anomWriter: anomWriter,
	}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	_, statErr := os.Stat(path)
	needsHeader := statErr != nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logstore: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("logstore: write header to %s: %w", path, err)
		}
		w.Flush()
	}
	return f, w, nil
}

// Log appends one ingest result to the in-memory buffers and flushes a row
// to all_readings.csv, plus anomalies.csv when the result is anomalous.
// Persistence failures are returned so the caller can log and swallow them.
func (s *Store) Log(result sensor.AnomalyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allBuf = push(s.allBuf, result)
	if result.IsAnomaly {
		s.anomalies = push(s.anomalies, result)
	}

	row := []string{
		result.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		result.SensorID,
		result.SensorType,
		strconv.FormatFloat(result.CurrentValue, 'f', -1, 64),
		"",
		strconv.FormatFloat(result.Mean, 'f', -1, 64),
		strconv.FormatFloat(result.StdDev, 'f', -1, 64),
		strconv.FormatFloat(result.ZScore, 'f', -1, 64),
		strconv.FormatFloat(result.Threshold, 'f', -1, 64),
		strconv.FormatBool(result.IsAnomaly),
		string(result.Severity),
	}
	if err := s.allWriter.Write(row); err != nil {
		return fmt.Errorf("logstore: write all_readings row: %w", err)
	}
	s.allWriter.Flush()
	if err := s.allWriter.Error(); err != nil {
		return fmt.Errorf("logstore: flush all_readings: %w", err)
	}

	if !result.IsAnomaly {
		return nil
	}

	anomRow := []string{
		row[0], row[1], row[2], row[3], row[4],
		row[5], row[6], row[7], row[8], row[10],
		result.Message,
	}
	if err := s.anomWriter.Write(anomRow); err != nil {
		return fmt.Errorf("logstore: write anomalies row: %w", err)
	}
	s.anomWriter.Flush()
	if err := s.anomWriter.Error(); err != nil {
		return fmt.Errorf("logstore: flush anomalies: %w", err)
	}
	return nil
}

func push(buf []sensor.AnomalyResult, r sensor.AnomalyResult) []sensor.AnomalyResult {
	buf = append(buf, r)
	if len(buf) > ringCapacity {
		buf = buf[len(buf)-ringCapacity:]
	}
	return buf
}

// RecentAll returns up to the last n results across all sensor types,
// newest last.
func (s *Store) RecentAll(n int) []sensor.AnomalyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lastN(s.allBuf, n)
}

// RecentAnomalies returns up to the last n anomalous results, newest last.
func (s *Store) RecentAnomalies(n int) []sensor.AnomalyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lastN(s.anomalies, n)
}

// HistoryBySensor groups the last n readings of each sensor type, matching
// the GET /history contract.
func (s *Store) HistoryBySensor(n int) map[string][]sensor.AnomalyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]sensor.AnomalyResult)
	for _, r := range s.allBuf {
		out[r.SensorType] = append(out[r.SensorType], r)
	}
	for st, rs := range out {
		out[st] = lastN(rs, n)
	}
	return out
}

func lastN(buf []sensor.AnomalyResult, n int) []sensor.AnomalyResult {
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}
	out := make([]sensor.AnomalyResult, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// ClearMemory empties both ring buffers without touching the files on disk.
func (s *Store) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allBuf = nil
	s.anomalies = nil
}

// Stats reports the in-memory buffer sizes and anomaly rate.
func (s *Store) Stats() (totalReadings, totalAnomalies int, anomalyRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totalReadings = len(s.allBuf)
	totalAnomalies = len(s.anomalies)
	if totalReadings > 0 {
		anomalyRate = float64(totalAnomalies) / float64(totalReadings)
	}
	return totalReadings, totalAnomalies, anomalyRate
}

// Close flushes and closes both underlying files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allWriter.Flush()
	s.anomWriter.Flush()
	err1 := s.allFile.Close()
	err2 := s.anomFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
