// Package sink delivers synthesized rules to their consumers: the
// signature engine's rule file (plus a verbatim backup log), the engine
// itself via an ordered chain of reload strategies, and the remote
// rule-management backend over HTTP.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minerwatch/core"

	"go.uber.org/zap"
)

// Writer appends rule batches to the engine rule file and the backup log.
type Writer struct {
	engineFile string
	backupFile string
	logger     *zap.SugaredLogger
}

// NewWriter creates a writer for the given destinations.
func NewWriter(engineFile, backupFile string, logger *zap.SugaredLogger) *Writer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Writer{engineFile: engineFile, backupFile: backupFile, logger: logger}
}

// PersistResult reports which destinations a batch reached.
type PersistResult struct {
	EngineWritten bool
	BackupWritten bool
}

// Persist appends the batch to both destinations. A failure on the engine
// rule file (typically permissions) is logged and does not stop the
// backup write; only a failure on both is returned as an error. Parent
// directories are created on demand.
func (w *Writer) Persist(rules []core.Rule, detectionCount int) (PersistResult, error) {
	var result PersistResult
	if len(rules) == 0 {
		return result, nil
	}

	text := RenderRuleSet(rules)

	if err := w.appendTo(w.engineFile, engineFileText(text)); err != nil {
		w.logger.Errorf("Failed to write engine rule file %s: %v (backup still proceeds)", w.engineFile, err)
	} else {
		result.EngineWritten = true
		w.logger.Infof("Appended %d rules to %s", len(rules), w.engineFile)
	}

	backup := fmt.Sprintf("\n# Auto-generated rules - %s\n# Detection #%d\n\n%s\n",
		time.Now().Format(time.RFC3339), detectionCount, text)
	if err := w.appendTo(w.backupFile, backup); err != nil {
		if !result.EngineWritten {
			return result, fmt.Errorf("failed to persist rules to any destination: %w", err)
		}
		w.logger.Errorf("Failed to write backup log %s: %v", w.backupFile, err)
	} else {
		result.BackupWritten = true
		w.logger.Infof("Backed up rule set to %s", w.backupFile)
	}

	return result, nil
}

// RenderRuleSet renders a batch as rule-file text: a comment header, then
// one commented name plus rule body per rule.
func RenderRuleSet(rules []core.Rule) string {
	var b strings.Builder
	b.WriteString("# Rules generated automatically by minerwatch\n")
	b.WriteString(fmt.Sprintf("# Generated at: %s\n", time.Now().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("# Total rules: %d\n\n", len(rules)))
	for _, rule := range rules {
		b.WriteString("# " + rule.Name + "\n")
		b.WriteString(rule.Body + "\n\n")
	}
	return b.String()
}

// engineFileText filters the rendered batch down to lines the engine can
// load: actionable rule statements and its own comment syntax.
func engineFileText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isActionableLine(trimmed) || strings.HasPrefix(trimmed, "#") {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func isActionableLine(line string) bool {
	for _, action := range []string{"alert ", "drop ", "pass ", "reject "} {
		if strings.HasPrefix(line, action) {
			return true
		}
	}
	return false
}

func (w *Writer) appendTo(path, text string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}
