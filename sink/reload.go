package sink

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"minerwatch/metrics"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// ReloadOutcome is the tagged result of one reload strategy attempt.
type ReloadOutcome int

const (
	// ReloadSucceeded means the engine accepted the reload.
	ReloadSucceeded ReloadOutcome = iota
	// ReloadFailed means the strategy ran but the engine rejected it.
	ReloadFailed
	// ReloadUnavailable means the strategy cannot run on this host
	// (command not installed, no engine process, no service manager).
	ReloadUnavailable
)

// String returns the outcome label used in logs and metrics.
func (o ReloadOutcome) String() string {
	switch o {
	case ReloadSucceeded:
		return "succeeded"
	case ReloadFailed:
		return "failed"
	default:
		return "unavailable"
	}
}

// ReloadStrategy is one way of making the running engine pick up new
// rules.
type ReloadStrategy interface {
	Name() string
	Reload(ctx context.Context) ReloadOutcome
}

// commandTimeout bounds every subprocess a strategy spawns so one hung
// command cannot stall the whole cycle.
const commandTimeout = 10 * time.Second

// ControlCommandStrategy invokes the engine's own control utility.
type ControlCommandStrategy struct {
	// Commands are tried in order; each entry is argv for one candidate
	// control utility.
	Commands [][]string
	Logger   *zap.SugaredLogger
}

// NewControlCommandStrategy returns the Suricata control-command strategy.
func NewControlCommandStrategy(logger *zap.SugaredLogger) *ControlCommandStrategy {
	return &ControlCommandStrategy{
		Commands: [][]string{
			{"suricatasc", "-c", "reload-rules"},
			{"suricatactl", "reload-rules"},
		},
		Logger: logger,
	}
}

// Name identifies the strategy in logs and metrics.
func (s *ControlCommandStrategy) Name() string { return "control-command" }

// Reload tries each control utility. A utility that is not installed is
// skipped; one that runs and exits non-zero makes the strategy Failed.
func (s *ControlCommandStrategy) Reload(ctx context.Context) ReloadOutcome {
	outcome := ReloadUnavailable
	for _, argv := range s.Commands {
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err := exec.CommandContext(cmdCtx, argv[0], argv[1:]...).Run()
		cancel()
		if err == nil {
			s.Logger.Infof("Engine rules reloaded via %s", argv[0])
			return ReloadSucceeded
		}
		s.Logger.Warnf("%s exited with error: %v", strings.Join(argv, " "), err)
		outcome = ReloadFailed
	}
	return outcome
}

// SignalStrategy finds the running engine process and delivers a rule
// reload signal (SIGUSR2 for Suricata).
type SignalStrategy struct {
	ProcessName string
	Signal      syscall.Signal
	Logger      *zap.SugaredLogger
}

// NewSignalStrategy returns the Suricata SIGUSR2 strategy.
func NewSignalStrategy(logger *zap.SugaredLogger) *SignalStrategy {
	return &SignalStrategy{ProcessName: "suricata", Signal: syscall.SIGUSR2, Logger: logger}
}

// Name identifies the strategy in logs and metrics.
func (s *SignalStrategy) Name() string { return "process-signal" }

// Reload scans the process table for the engine and signals it.
func (s *SignalStrategy) Reload(ctx context.Context) ReloadOutcome {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		s.Logger.Warnf("Failed to list processes: %v", err)
		return ReloadUnavailable
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(name, s.ProcessName) {
			continue
		}
		if err := p.SendSignalWithContext(ctx, s.Signal); err != nil {
			s.Logger.Warnf("Failed to signal %s (pid %d): %v", s.ProcessName, p.Pid, err)
			return ReloadFailed
		}
		s.Logger.Infof("Sent %v to %s (pid %d)", s.Signal, s.ProcessName, p.Pid)
		return ReloadSucceeded
	}
	return ReloadUnavailable
}

// ServiceManagerStrategy asks the service manager to reload the engine's
// unit.
type ServiceManagerStrategy struct {
	Unit   string
	Logger *zap.SugaredLogger
}

// NewServiceManagerStrategy returns the systemctl reload strategy.
func NewServiceManagerStrategy(logger *zap.SugaredLogger) *ServiceManagerStrategy {
	return &ServiceManagerStrategy{Unit: "suricata", Logger: logger}
}

// Name identifies the strategy in logs and metrics.
func (s *ServiceManagerStrategy) Name() string { return "service-manager" }

// Reload runs `systemctl reload <unit>`.
func (s *ServiceManagerStrategy) Reload(ctx context.Context) ReloadOutcome {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return ReloadUnavailable
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := exec.CommandContext(cmdCtx, "systemctl", "reload", s.Unit).Run(); err != nil {
		s.Logger.Warnf("systemctl reload %s failed: %v", s.Unit, err)
		return ReloadFailed
	}
	s.Logger.Infof("Engine reloaded via systemctl reload %s", s.Unit)
	return ReloadSucceeded
}

// ReloadChain tries strategies in order until one succeeds. The order is
// first-class data so deployments can rearrange or trim it.
type ReloadChain struct {
	strategies []ReloadStrategy
	logger     *zap.SugaredLogger
}

// NewReloadChain builds a chain over the given strategies.
func NewReloadChain(logger *zap.SugaredLogger, strategies ...ReloadStrategy) *ReloadChain {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReloadChain{strategies: strategies, logger: logger}
}

// DefaultReloadChain is the standard Suricata order: control command,
// then process signal, then service manager.
func DefaultReloadChain(logger *zap.SugaredLogger) *ReloadChain {
	return NewReloadChain(logger,
		NewControlCommandStrategy(logger),
		NewSignalStrategy(logger),
		NewServiceManagerStrategy(logger),
	)
}

// Run attempts each strategy in order and reports whether any succeeded.
// Exhausting the chain is never fatal: the rules are on disk and the
// operator gets an actionable remediation hint.
func (c *ReloadChain) Run(ctx context.Context) bool {
	for _, strategy := range c.strategies {
		outcome := strategy.Reload(ctx)
		metrics.ReloadAttempts.WithLabelValues(strategy.Name(), outcome.String()).Inc()
		switch outcome {
		case ReloadSucceeded:
			return true
		case ReloadFailed:
			c.logger.Warnf("Reload strategy %s failed, trying next", strategy.Name())
		case ReloadUnavailable:
			c.logger.Debugf("Reload strategy %s unavailable, trying next", strategy.Name())
		}
	}
	c.logger.Warnf("All reload strategies exhausted; reload the engine manually, e.g.: sudo suricatasc -c reload-rules")
	return false
}
