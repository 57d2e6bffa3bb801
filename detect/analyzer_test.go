package detect

import (
	"context"
	"fmt"
	"testing"

	"minerwatch/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpEvent(hostname, ua, url string) core.Event {
	http := map[string]any{}
	if hostname != "" {
		http["hostname"] = hostname
	}
	if ua != "" {
		http["http_user_agent"] = ua
	}
	if url != "" {
		http["url"] = url
	}
	return core.Event{
		"event_type": core.EventTypeHTTP,
		"dest_ip":    "203.0.113.10",
		"dest_port":  8080,
		"proto":      "TCP",
		"http":       http,
	}
}

func flowEvent(destIP string, destPort, toServer, toClient int) core.Event {
	return core.Event{
		"event_type": core.EventTypeFlow,
		"dest_ip":    destIP,
		"dest_port":  destPort,
		"proto":      "TCP",
		"flow": map[string]any{
			"bytes_toserver": toServer,
			"bytes_toclient": toClient,
		},
	}
}

func TestAnalyzeMiningPoolHostname(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		httpEvent("pool.minexmr.com", "", ""),
	})

	require.Len(t, rules, 1)
	assert.Equal(t, "pool.minexmr.com", rules[0].Pattern)
	assert.Contains(t, rules[0].Tags, "mining-pool")
	assert.Contains(t, rules[0].Body, `content:"pool.minexmr.com"`)
	assert.Contains(t, rules[0].Body, "http_host")
	assert.Equal(t, 2000001, rules[0].SID)
	assert.True(t, rules[0].Enabled)
}

func TestAnalyzeDeduplicatesRepeatedHostname(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	events := []core.Event{
		httpEvent("pool.supportxmr.com", "", ""),
		httpEvent("pool.supportxmr.com", "", ""),
		httpEvent("pool.supportxmr.com", "", ""),
	}
	rules := analyzer.Analyze(context.Background(), events)

	assert.Len(t, rules, 1)
}

func TestAnalyzeMinerUserAgentCaseInsensitive(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		httpEvent("", "XMRig/6.18.0", ""),
	})

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "miner-detection")
	assert.Contains(t, rules[0].Body, "http_user_agent")
	assert.Contains(t, rules[0].Name, "XMRIG")
}

func TestAnalyzeMiningPath(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		httpEvent("", "", "/mining.submit"),
	})

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "mining-endpoint")
	assert.Contains(t, rules[0].Body, "http_uri")
}

func TestAnalyzeHighVolumeFlow(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		flowEvent("198.51.100.5", 3333, 80000, 30000),
	})

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "high-volume")
	assert.Contains(t, rules[0].Body, "110000 bytes")
}

func TestAnalyzeFlowBelowThresholdIgnored(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		flowEvent("198.51.100.5", 3333, 50000, 10000),
	})

	assert.Empty(t, rules)
}

func TestAnalyzeFlowNonSuspiciousPortIgnored(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	rules := analyzer.Analyze(context.Background(), []core.Event{
		flowEvent("198.51.100.5", 443, 200000, 200000),
	})

	assert.Empty(t, rules)
}

func TestAnalyzeDNSAnswer(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	event := core.Event{
		"event_type": core.EventTypeDNS,
		"dest_ip":    "10.0.0.53",
		"dest_port":  53,
		"dns": map[string]any{
			"rrtype": "A",
			"answers": []any{
				map[string]any{"rdata": "pool.hashvault.pro"},
				map[string]any{"rdata": "93.184.216.34"},
			},
		},
	}
	rules := analyzer.Analyze(context.Background(), []core.Event{event})

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "dns-mining")
	assert.Equal(t, "pool.hashvault.pro", rules[0].Pattern)
}

func TestAnalyzeDNSNonAddressRecordIgnored(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	event := core.Event{
		"event_type": core.EventTypeDNS,
		"dns": map[string]any{
			"rrtype": "TXT",
			"answers": []any{
				map[string]any{"rdata": "pool.minexmr.com"},
			},
		},
	}

	assert.Empty(t, analyzer.Analyze(context.Background(), []core.Event{event}))
}

func TestAnalyzeTLSSNI(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	event := core.Event{
		"event_type": core.EventTypeTLS,
		"dest_ip":    "198.51.100.80",
		"dest_port":  14444,
		"tls": map[string]any{
			"sni": "xmr.nanopool.org",
		},
	}
	rules := analyzer.Analyze(context.Background(), []core.Event{event})

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "tls-mining")
	assert.Contains(t, rules[0].Body, "tls_sni")
}

func TestAnalyzeCrossPatternConnectionBurst(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	// 11 low-volume flows to the same IP across 11 distinct suspicious and
	// neutral ports; none trips the per-flow byte threshold.
	ports := []int{3333, 4444, 5555, 8080, 8888, 9999, 14444, 14433, 1025, 1026, 1027}
	events := make([]core.Event, 0, len(ports))
	for _, port := range ports {
		events = append(events, flowEvent("198.51.100.9", port, 100, 100))
	}

	rules := analyzer.Analyze(context.Background(), events)

	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Tags, "suspicious-ip")
	assert.Equal(t, "198.51.100.9", rules[0].Pattern)
	assert.Contains(t, rules[0].Body, "count 11")
}

func TestAnalyzeCrossPatternRequiresSuspiciousPort(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	events := make([]core.Event, 0, 12)
	for i := 0; i < 12; i++ {
		events = append(events, flowEvent("198.51.100.9", 20000+i, 100, 100))
	}

	assert.Empty(t, analyzer.Analyze(context.Background(), events))
}

func TestAnalyzeMaxRulesCap(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{MaxRules: 2})

	hostnames := []string{
		"pool.minexmr.com",
		"pool.supportxmr.com",
		"pool.hashvault.pro",
		"xmr.nanopool.org",
		"xmr-eu1.nanopool.org",
	}
	events := make([]core.Event, 0, len(hostnames))
	for _, hostname := range hostnames {
		events = append(events, httpEvent(hostname, "", ""))
	}

	rules := analyzer.Analyze(context.Background(), events)

	assert.Len(t, rules, 2)
}

func TestAnalyzeUniqueSIDsAndPatterns(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})

	events := []core.Event{
		httpEvent("pool.minexmr.com", "xmrig/6.0", "/mining.submit"),
		flowEvent("198.51.100.5", 3333, 200000, 50000),
	}
	rules := analyzer.Analyze(context.Background(), events)

	require.Len(t, rules, 4)
	sids := make(map[int]bool)
	patterns := make(map[string]bool)
	for _, rule := range rules {
		assert.False(t, sids[rule.SID], "duplicate SID %d", rule.SID)
		sids[rule.SID] = true
		key := fmt.Sprintf("%s/%s", rule.Tags[2], rule.Pattern)
		assert.False(t, patterns[key], "duplicate pattern %s", key)
		patterns[key] = true
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})
	assert.Nil(t, analyzer.Analyze(context.Background(), nil))
}

func TestAnalyzeSeenSetResetsBetweenPasses(t *testing.T) {
	analyzer := NewAnalyzer(AnalyzerConfig{})
	events := []core.Event{httpEvent("pool.minexmr.com", "", "")}

	first := analyzer.Analyze(context.Background(), events)
	second := analyzer.Analyze(context.Background(), events)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].SID, second[0].SID)
}

func TestAnalyzePatternCacheSuppression(t *testing.T) {
	cache := core.NewMemoryPatternCache(128, 0)
	defer cache.Close()

	analyzer := NewAnalyzer(AnalyzerConfig{Cache: cache})
	events := []core.Event{httpEvent("pool.minexmr.com", "", "")}

	first := analyzer.Analyze(context.Background(), events)
	second := analyzer.Analyze(context.Background(), events)

	assert.Len(t, first, 1)
	assert.Empty(t, second, "cached pattern should be suppressed on the next pass")
}
