// Package storage provides the local SQLite archive of detections and
// generated rules. The archive is an audit trail: every write failure is
// reported to the caller but nothing in the pipeline depends on it
// succeeding.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"minerwatch/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Archive records detection cycles and their synthesized rules.
type Archive struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// DetectionRecord is one confirmed detection.
type DetectionRecord struct {
	Cycle          int
	Probability    float64
	State          string
	RulesGenerated int
	RulesPublished int
}

// Summary aggregates the archive for the shutdown report.
type Summary struct {
	Detections    int
	Rules         int
	LastDetection time.Time
}

// NewArchive opens (creating if needed) the archive database and applies
// the schema.
func NewArchive(path string, logger *zap.SugaredLogger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure archive: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Infof("Detection archive opened at %s", path)
	return &Archive{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		cycle INTEGER NOT NULL,
		probability REAL NOT NULL,
		state TEXT NOT NULL,
		rules_generated INTEGER NOT NULL DEFAULT 0,
		rules_published INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		detection_id TEXT NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
		sid INTEGER NOT NULL,
		name TEXT NOT NULL,
		pattern TEXT,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rules_detection ON rules(detection_id);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply archive schema: %w", err)
	}
	return nil
}

// RecordDetection inserts a detection row and returns its ID.
func (a *Archive) RecordDetection(ctx context.Context, rec DetectionRecord) (string, error) {
	id := uuid.NewString()
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO detections (id, cycle, probability, state, rules_generated, rules_published, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Cycle, rec.Probability, rec.State, rec.RulesGenerated, rec.RulesPublished, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record detection: %w", err)
	}
	return id, nil
}

// RecordRules inserts the rules of one detection in a single transaction.
func (a *Archive) RecordRules(ctx context.Context, detectionID string, rules []core.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rules (id, detection_id, sid, name, pattern, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare rule insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rule := range rules {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), detectionID, rule.SID, rule.Name, rule.Pattern, rule.Body, now); err != nil {
			return fmt.Errorf("failed to record rule SID %d: %w", rule.SID, err)
		}
	}

	return tx.Commit()
}

// Summarize returns the aggregate counts for the shutdown report.
func (a *Archive) Summarize(ctx context.Context) (Summary, error) {
	var s Summary

	var last sql.NullString
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(created_at), '') FROM detections`).Scan(&s.Detections, &last)
	if err != nil {
		return s, fmt.Errorf("failed to summarize detections: %w", err)
	}
	if last.Valid && last.String != "" {
		if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", last.String); err == nil {
			s.LastDetection = t
		} else if t, err := time.Parse(time.RFC3339Nano, last.String); err == nil {
			s.LastDetection = t
		}
	}

	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&s.Rules); err != nil {
		return s, fmt.Errorf("failed to summarize rules: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
