package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIndicatorsMatching(t *testing.T) {
	ind := DefaultIndicators()

	assert.True(t, ind.IsMiningPool("pool.minexmr.com"))
	assert.True(t, ind.IsMiningPool("POOL.MINEXMR.COM"), "matching is case-insensitive")
	assert.True(t, ind.IsMiningPool("cdn.pool.minexmr.com.evil.net"), "substring containment matches")
	assert.False(t, ind.IsMiningPool("example.com"))
	assert.False(t, ind.IsMiningPool(""))

	assert.True(t, ind.IsMinerUserAgent("XMRig/6.18.0 (Linux x86_64)"))
	assert.False(t, ind.IsMinerUserAgent("Mozilla/5.0"))

	assert.True(t, ind.IsMiningPath("/api/v1/submit?worker=w1"))
	assert.False(t, ind.IsMiningPath("/index.html"))

	assert.True(t, ind.IsSuspiciousPort(3333))
	assert.True(t, ind.IsSuspiciousPort(14444))
	assert.False(t, ind.IsSuspiciousPort(443))
}

func TestMatchesCoverage(t *testing.T) {
	ind := DefaultIndicators()

	assert.True(t, ind.MatchesCoverage("et policy xmr stratum login"))
	assert.True(t, ind.MatchesCoverage("Possible Coin Mining Activity"))
	assert.False(t, ind.MatchesCoverage("sql injection attempt"))
}

func TestMinerName(t *testing.T) {
	ind := DefaultIndicators()

	assert.Equal(t, "XMRIG", ind.MinerName("XMRig/6.18.0"))
	assert.Equal(t, "Unknown", ind.MinerName("curl/8.0"))
}

func TestLoadIndicatorsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	content := "mining_pools:\n  - badpool.example\nsuspicious_ports:\n  - 7777\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ind, err := LoadIndicators(path)
	require.NoError(t, err)

	assert.True(t, ind.IsMiningPool("badpool.example"))
	assert.False(t, ind.IsMiningPool("pool.minexmr.com"), "overridden set replaces defaults")
	assert.True(t, ind.IsSuspiciousPort(7777))
	assert.False(t, ind.IsSuspiciousPort(3333))

	// Sets absent from the file keep their defaults.
	assert.True(t, ind.IsMinerUserAgent("xmrig"))
}

func TestLoadIndicatorsMissingFile(t *testing.T) {
	_, err := LoadIndicators("/nonexistent/indicators.yaml")
	assert.Error(t, err)
}
