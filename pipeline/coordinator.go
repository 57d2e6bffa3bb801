// Package pipeline runs the detection loop: each cycle consults the
// classifier, checks existing engine coverage, analyzes telemetry (or
// synthetic fallback events), and hands synthesized rules to the sinks.
package pipeline

import (
	"context"
	"time"

	"minerwatch/config"
	"minerwatch/core"
	"minerwatch/metrics"
	"minerwatch/ml"
	"minerwatch/sink"
	"minerwatch/storage"

	"go.uber.org/zap"
)

// EventSource yields recent telemetry events.
type EventSource interface {
	ReadRecent(ctx context.Context, window time.Duration, max int) ([]core.Event, error)
}

// CoverageSource decides whether the engine already alerts on the threat.
type CoverageSource interface {
	HasCoverage(ctx context.Context, window time.Duration) bool
}

// EventFallback fabricates events when no telemetry is available.
type EventFallback interface {
	Events(m ml.Metrics) []core.Event
}

// RuleAnalyzer turns events into rules.
type RuleAnalyzer interface {
	Analyze(ctx context.Context, events []core.Event) []core.Rule
}

// RuleWriter persists a rule batch.
type RuleWriter interface {
	Persist(rules []core.Rule, detectionCount int) (sink.PersistResult, error)
}

// EngineReloader makes the engine pick up freshly written rules.
type EngineReloader interface {
	Run(ctx context.Context) bool
}

// RulePublisher ships rules to the backend.
type RulePublisher interface {
	Enabled() bool
	Publish(ctx context.Context, rules []core.Rule) int
}

// Deps are the coordinator's collaborators. Archive may be nil.
type Deps struct {
	Classifier ml.Classifier
	Events     EventSource
	Coverage   CoverageSource
	Fallback   EventFallback
	Analyzer   RuleAnalyzer
	Writer     RuleWriter
	Reloader   EngineReloader
	Publisher  RulePublisher
	Archive    *storage.Archive
	Logger     *zap.SugaredLogger
}

// CycleResult reports what one detection cycle did.
type CycleResult struct {
	Prediction     ml.Prediction
	State          string
	Detected       bool
	Covered        bool
	Synthetic      bool
	Rules          []core.Rule
	EngineReloaded bool
	Published      int
	Err            error
}

// Coordinator drives the detection loop. Not safe for concurrent Run
// calls; the loop owns the cycle state.
type Coordinator struct {
	cfg  *config.Config
	deps Deps

	cycle             int
	detectionCount    int
	lastDetectionTime time.Time
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(cfg *config.Config, deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Coordinator{cfg: cfg, deps: deps}
}

// DetectionCount returns how many detections the loop confirmed so far.
func (c *Coordinator) DetectionCount() int { return c.detectionCount }

// LastDetectionTime returns when the most recent detection happened, zero
// if none.
func (c *Coordinator) LastDetectionTime() time.Time { return c.lastDetectionTime }

// Run executes cycles at the configured interval until the context is
// canceled. The first cycle runs immediately.
func (c *Coordinator) Run(ctx context.Context) error {
	interval := c.cfg.Pipeline.Interval
	c.deps.Logger.Infof("Detection pipeline started (interval %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.RunCycle(ctx)

		select {
		case <-ctx.Done():
			c.deps.Logger.Infof("Detection pipeline stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes a single detection cycle and returns what happened.
// Every failure inside the cycle is contained: the caller can always run
// the next cycle.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	c.cycle++
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.CyclesRun.Inc()

	var result CycleResult
	log := c.deps.Logger

	m, err := c.deps.Classifier.CollectMetrics(ctx)
	if err != nil {
		log.Errorf("Cycle %d: failed to collect metrics: %v", c.cycle, err)
		result.Err = err
		return result
	}

	pred, err := c.deps.Classifier.Predict(m)
	if err != nil {
		log.Errorf("Cycle %d: prediction failed: %v", c.cycle, err)
		result.Err = err
		return result
	}
	result.Prediction = pred
	result.State = ml.StateFor(pred)

	log.Infof("Cycle %d: state=%s probability=%.3f cpu=%.1f%% ram=%.1f%% procs=%d miner_process=%v",
		c.cycle, result.State, pred.Probability, m.CPUPercent, m.RAMPercent, m.ProcessCount, m.MinerProcess)

	if pred.Label != 1 {
		return result
	}

	result.Detected = true
	c.detectionCount++
	c.lastDetectionTime = time.Now()
	metrics.Detections.Inc()
	log.Warnf("Suspicious mining activity detected (detection #%d, probability %.3f)", c.detectionCount, pred.Probability)

	if c.deps.Coverage.HasCoverage(ctx, c.cfg.Coverage.Window) {
		result.Covered = true
		metrics.CoverageHits.Inc()
		log.Infof("Engine already covers this activity, skipping rule generation")
		c.archiveDetection(ctx, result, nil)
		return result
	}

	events, err := c.deps.Events.ReadRecent(ctx, c.cfg.Telemetry.Window, c.cfg.Telemetry.MaxEvents)
	if err != nil {
		log.Warnf("Cycle %d: telemetry read failed: %v", c.cycle, err)
	}
	if len(events) == 0 && c.cfg.Pipeline.SyntheticFallback {
		events = c.deps.Fallback.Events(m)
		result.Synthetic = len(events) > 0
	}
	if len(events) == 0 {
		log.Warnf("Cycle %d: no events to analyze, skipping rule generation", c.cycle)
		c.archiveDetection(ctx, result, nil)
		return result
	}

	rules := c.deps.Analyzer.Analyze(ctx, events)
	result.Rules = rules
	if len(rules) == 0 {
		log.Infof("Cycle %d: analyzed %d events, no rule-worthy patterns found", c.cycle, len(events))
		c.archiveDetection(ctx, result, nil)
		return result
	}
	log.Infof("Cycle %d: synthesized %d rules from %d events", c.cycle, len(rules), len(events))

	persisted, err := c.deps.Writer.Persist(rules, c.detectionCount)
	if err != nil {
		log.Errorf("Cycle %d: failed to persist rules: %v", c.cycle, err)
		result.Err = err
		c.archiveDetection(ctx, result, rules)
		return result
	}

	if persisted.EngineWritten {
		result.EngineReloaded = c.deps.Reloader.Run(ctx)
	}

	if c.deps.Publisher != nil && c.deps.Publisher.Enabled() {
		result.Published = c.deps.Publisher.Publish(ctx, rules)
	}

	c.archiveDetection(ctx, result, rules)
	return result
}

// archiveDetection records the detection and its rules. Archive failures
// are logged and swallowed; the audit trail never blocks detection.
func (c *Coordinator) archiveDetection(ctx context.Context, result CycleResult, rules []core.Rule) {
	if c.deps.Archive == nil || !result.Detected {
		return
	}

	id, err := c.deps.Archive.RecordDetection(ctx, storage.DetectionRecord{
		Cycle:          c.cycle,
		Probability:    result.Prediction.Probability,
		State:          result.State,
		RulesGenerated: len(rules),
		RulesPublished: result.Published,
	})
	if err != nil {
		c.deps.Logger.Warnf("Failed to archive detection: %v", err)
		return
	}
	if err := c.deps.Archive.RecordRules(ctx, id, rules); err != nil {
		c.deps.Logger.Warnf("Failed to archive rules: %v", err)
	}
}
