package detect

import (
	"context"
	"testing"

	"minerwatch/core"
	"minerwatch/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticEventsBelowThreshold(t *testing.T) {
	fallback := NewSyntheticFallback(nil)
	assert.Empty(t, fallback.Events(ml.Metrics{BytesSent: 4000, BytesRecv: 3000}))
}

func TestSyntheticFlowEvent(t *testing.T) {
	fallback := NewSyntheticFallback(nil)

	events := fallback.Events(ml.Metrics{BytesSent: 12000, BytesRecv: 5000})

	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, core.EventTypeFlow, event.Type())
	assert.True(t, event.Synthetic())
	assert.NotEmpty(t, event["event_id"])
	assert.Equal(t, 3333, event.DestPort())

	flow := event.Flow()
	require.NotNil(t, flow)
	assert.Equal(t, 12000, core.IntFrom(flow, "bytes_toserver"))
	assert.Equal(t, 5000, core.IntFrom(flow, "bytes_toclient"))
}

func TestSyntheticHTTPEventAboveHigherThreshold(t *testing.T) {
	fallback := NewSyntheticFallback(nil)

	events := fallback.Events(ml.Metrics{BytesSent: 50000, BytesRecv: 1000})

	require.Len(t, events, 2)
	assert.Equal(t, core.EventTypeHTTP, events[1].Type())
	assert.True(t, events[1].Synthetic())

	http := events[1].HTTP()
	require.NotNil(t, http)
	assert.Contains(t, core.StringFrom(http, "http_user_agent"), "XMRig")
	assert.Equal(t, "/api/v1/submit", core.StringFrom(http, "url"))
}

// A moderate-traffic snapshot alone must still yield at least one
// rule-worthy event: the flow stays under the volume detector's
// threshold, so the fabricated miner-UA HTTP event carries the detection.
func TestSyntheticModerateTrafficStillYieldsRules(t *testing.T) {
	fallback := NewSyntheticFallback(nil)
	analyzer := NewAnalyzer(AnalyzerConfig{})

	events := fallback.Events(ml.Metrics{BytesSent: 50000})
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventTypeFlow, events[0].Type())

	rules := analyzer.Analyze(context.Background(), events)
	assert.NotEmpty(t, rules)
}

// Fabricated events must carry enough shape for the analyzer to turn them
// into rules without real telemetry.
func TestSyntheticEventsFeedAnalyzer(t *testing.T) {
	fallback := NewSyntheticFallback(nil)
	analyzer := NewAnalyzer(AnalyzerConfig{})

	events := fallback.Events(ml.Metrics{BytesSent: 50000, BytesRecv: 60000})
	rules := analyzer.Analyze(context.Background(), events)

	require.NotEmpty(t, rules)
	kinds := make(map[string]bool)
	for _, rule := range rules {
		kinds[rule.Tags[2]] = true
	}
	assert.True(t, kinds[core.CandidateMinerAgent] || kinds[core.CandidateMiningPath])
	assert.True(t, kinds[core.CandidateHighVolume])
}
