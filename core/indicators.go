package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Indicators holds the known-bad value sets the analyzer matches events
// against. All matching is case-insensitive substring containment.
type Indicators struct {
	// MiningPools are hostnames/domains of known mining pools, matched
	// against HTTP hostnames, DNS answers and TLS SNI values.
	MiningPools []string `yaml:"mining_pools"`
	// MinerUserAgents are substrings of known miner HTTP user agents.
	MinerUserAgents []string `yaml:"miner_user_agents"`
	// MiningPaths are URL path fragments used by mining submission
	// protocols.
	MiningPaths []string `yaml:"mining_paths"`
	// SuspiciousPorts are destination ports commonly used by stratum and
	// pool traffic.
	SuspiciousPorts []int `yaml:"suspicious_ports"`
	// CoverageKeywords are tested against existing engine alert text to
	// decide whether the threat class is already covered.
	CoverageKeywords []string `yaml:"coverage_keywords"`
}

// DefaultIndicators returns the built-in indicator sets.
func DefaultIndicators() *Indicators {
	return &Indicators{
		MiningPools: []string{
			"pool.minexmr.com", "pool.supportxmr.com", "pool.hashvault.pro",
			"xmrpool.eu", "monero.hashvault.pro", "minexmr.com",
			"pool.cryptonote.social", "pool.nimiq.com", "ethpool.org",
			"ethermine.org", "f2pool.com", "nanopool.org",
		},
		MinerUserAgents: []string{
			"xmrig", "xmr-stak", "cpuminer", "minerd", "ccminer",
			"cudaminer", "ethminer", "claymore", "phoenixminer",
			"nbminer", "trex", "lolminer", "teamredminer",
		},
		MiningPaths: []string{
			"/api/v1/work", "/api/v1/submit", "/api/v1/job",
			"/stratum", "/mining", "/pool", "/submit", "/work",
			"/getwork", "/getjob", "/login", "/subscribe",
		},
		SuspiciousPorts: []int{3333, 4444, 5555, 8080, 8888, 9999, 14444, 14433},
		CoverageKeywords: []string{
			"mining", "crypto", "monero", "xmr", "stratum",
			"pool", "minexmr", "supportxmr", "hashvault",
		},
	}
}

// LoadIndicators reads indicator overrides from a YAML file. Sets left
// empty in the file keep their built-in defaults.
func LoadIndicators(path string) (*Indicators, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read indicators file: %w", err)
	}

	var overrides Indicators
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse indicators file %s: %w", path, err)
	}

	ind := DefaultIndicators()
	if len(overrides.MiningPools) > 0 {
		ind.MiningPools = overrides.MiningPools
	}
	if len(overrides.MinerUserAgents) > 0 {
		ind.MinerUserAgents = overrides.MinerUserAgents
	}
	if len(overrides.MiningPaths) > 0 {
		ind.MiningPaths = overrides.MiningPaths
	}
	if len(overrides.SuspiciousPorts) > 0 {
		ind.SuspiciousPorts = overrides.SuspiciousPorts
	}
	if len(overrides.CoverageKeywords) > 0 {
		ind.CoverageKeywords = overrides.CoverageKeywords
	}
	return ind, nil
}

// IsMiningPool reports whether the hostname contains a known pool value.
func (i *Indicators) IsMiningPool(hostname string) bool {
	return containsAny(hostname, i.MiningPools)
}

// IsMinerUserAgent reports whether the user agent matches a known miner.
func (i *Indicators) IsMinerUserAgent(userAgent string) bool {
	return containsAny(userAgent, i.MinerUserAgents)
}

// IsMiningPath reports whether the URL contains a mining endpoint fragment.
func (i *Indicators) IsMiningPath(url string) bool {
	return containsAny(url, i.MiningPaths)
}

// IsSuspiciousPort reports whether the port is in the suspicious set.
func (i *Indicators) IsSuspiciousPort(port int) bool {
	for _, p := range i.SuspiciousPorts {
		if p == port {
			return true
		}
	}
	return false
}

// MatchesCoverage reports whether existing alert text already covers the
// cryptojacking threat class.
func (i *Indicators) MatchesCoverage(alertText string) bool {
	return containsAny(alertText, i.CoverageKeywords)
}

// MinerName extracts the canonical miner name from a matching user agent,
// upper-cased for rule messages. Returns "Unknown" when no set entry is
// contained in the agent string.
func (i *Indicators) MinerName(userAgent string) string {
	lower := strings.ToLower(userAgent)
	for _, agent := range i.MinerUserAgents {
		if strings.Contains(lower, strings.ToLower(agent)) {
			return strings.ToUpper(agent)
		}
	}
	return "Unknown"
}

func containsAny(value string, set []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, s := range set {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
