package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"minerwatch/core"

	"go.uber.org/zap"
)

// CoverageChecker decides whether the signature engine already raised
// alerts for the cryptojacking threat class, so the pipeline can skip
// generating redundant rules.
type CoverageChecker struct {
	evePath    string
	indicators *core.Indicators
	logger     *zap.SugaredLogger

	// now is swappable for tests.
	now func() time.Time
}

// NewCoverageChecker creates a checker over the given EVE log.
func NewCoverageChecker(evePath string, indicators *core.Indicators, logger *zap.SugaredLogger) *CoverageChecker {
	if indicators == nil {
		indicators = core.DefaultIndicators()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CoverageChecker{
		evePath:    evePath,
		indicators: indicators,
		logger:     logger,
		now:        time.Now,
	}
}

// HasCoverage scans the EVE log for alert events within the window whose
// signature or category text matches a coverage keyword, short-circuiting
// on the first match. The whole check fails open toward rule generation:
// a missing file, an I/O error or an unreadable line all mean "no
// coverage found", and an alert with an unparseable timestamp is treated
// as current rather than discarded.
func (c *CoverageChecker) HasCoverage(ctx context.Context, window time.Duration) bool {
	file, err := os.Open(c.evePath)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warnf("Failed to open telemetry file for coverage check: %v", err)
		}
		return false
	}
	defer file.Close()

	threshold := c.now().Add(-window)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return false
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event core.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Type() != core.EventTypeAlert {
			continue
		}

		eventTime, ok := event.Timestamp()
		if !ok {
			eventTime = c.now()
		}
		if eventTime.Before(threshold) {
			continue
		}

		alert := event.Alert()
		text := core.StringFrom(alert, "signature") + " " + core.StringFrom(alert, "category")
		if c.indicators.MatchesCoverage(text) {
			c.logger.Infof("Engine already covers this threat: %q", strings.TrimSpace(text))
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warnf("Coverage scan aborted: %v", err)
	}

	return false
}
