// Package telemetry reads EVE telemetry logs produced by the signature
// engine. Both physical encodings found in the wild are supported: a
// single JSON array of event objects and newline-delimited JSON, detected
// per read.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"minerwatch/core"

	"go.uber.org/zap"
)

// ErrSourceUnavailable signals that the telemetry file does not exist.
// Callers treat this as degraded operation, not failure.
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// Reader loads events from one EVE log file.
type Reader struct {
	path   string
	logger *zap.SugaredLogger
}

// NewReader creates a reader for the given EVE log path.
func NewReader(path string, logger *zap.SugaredLogger) *Reader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reader{path: path, logger: logger}
}

// Path returns the telemetry file path.
func (r *Reader) Path() string { return r.path }

// ReadAll returns every parseable event in the file, in file order.
// Malformed individual records are skipped silently. A missing file
// returns ErrSourceUnavailable with an empty slice.
func (r *Reader) ReadAll(ctx context.Context) ([]core.Event, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSourceUnavailable
		}
		return nil, fmt.Errorf("failed to read telemetry file %s: %w", r.path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.decode(data), nil
}

// ReadRecent returns at most max events whose timestamps fall within the
// trailing window, scanning from the end of the file backwards and then
// restoring chronological order. Events without a parseable timestamp are
// treated as recent. max <= 0 means unlimited.
func (r *Reader) ReadRecent(ctx context.Context, window time.Duration, max int) ([]core.Event, error) {
	events, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-window)
	var recent []core.Event
	for i := len(events) - 1; i >= 0; i-- {
		if max > 0 && len(recent) >= max {
			break
		}
		event := events[i]
		if ts, ok := event.Timestamp(); ok && window > 0 && ts.Before(cutoff) {
			// The file is appended in time order, so everything before
			// this point is older still.
			break
		}
		recent = append(recent, event)
	}

	// Collected newest-first; restore chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// decode auto-detects the physical encoding: whole-document parse first,
// per-line fallback on failure.
func (r *Reader) decode(data []byte) []core.Event {
	var array []core.Event
	if err := json.Unmarshal(data, &array); err == nil {
		r.logger.Debugf("Telemetry format: JSON array (%d events)", len(array))
		return array
	}

	var single core.Event
	if err := json.Unmarshal(data, &single); err == nil && len(single) > 0 {
		return []core.Event{single}
	}

	var events []core.Event
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event core.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			skipped++
			continue
		}
		events = append(events, event)
	}
	if skipped > 0 {
		r.logger.Debugf("Telemetry format: JSONL, %d events read, %d malformed lines skipped", len(events), skipped)
	} else {
		r.logger.Debugf("Telemetry format: JSONL, %d events read", len(events))
	}
	return events
}
