package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// minerProcessNames are process name substrings that immediately flag the
// host, independent of the model score.
var minerProcessNames = []string{"xmrig", "xmr-stak", "cpuminer", "minerd"}

// SystemCollector samples host metrics with gopsutil. Network byte
// counters are reported as deltas against the previous sample; the first
// sample reports absolute values.
type SystemCollector struct {
	logger *zap.SugaredLogger

	prevSent uint64
	prevRecv uint64
	primed   bool
}

// NewSystemCollector creates a collector.
func NewSystemCollector(logger *zap.SugaredLogger) *SystemCollector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SystemCollector{logger: logger}
}

// Collect samples CPU, memory, network counters and the process table.
// Process table errors degrade to a zero process count instead of failing
// the sample.
func (c *SystemCollector) Collect(ctx context.Context) (Metrics, error) {
	var m Metrics

	cpuPercents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		return m, fmt.Errorf("failed to sample cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		m.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, fmt.Errorf("failed to sample memory: %w", err)
	}
	m.RAMPercent = vm.UsedPercent

	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return m, fmt.Errorf("failed to sample network counters: %w", err)
	}
	if len(counters) > 0 {
		sent, recv := counters[0].BytesSent, counters[0].BytesRecv
		if c.primed {
			m.BytesSent = sent - c.prevSent
			m.BytesRecv = recv - c.prevRecv
		} else {
			m.BytesSent = sent
			m.BytesRecv = recv
			c.primed = true
		}
		c.prevSent, c.prevRecv = sent, recv
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		c.logger.Warnf("Failed to list processes: %v", err)
		return m, nil
	}
	m.ProcessCount = len(procs)
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if isMinerProcess(name) {
			m.MinerProcess = true
			break
		}
	}

	return m, nil
}

func isMinerProcess(name string) bool {
	lower := strings.ToLower(name)
	for _, miner := range minerProcessNames {
		if strings.Contains(lower, miner) {
			return true
		}
	}
	return false
}
