package core

import (
	"fmt"
	"strings"
)

// Candidate kinds, one per detector.
const (
	CandidateMiningPool   = "mining-pool"
	CandidateMinerAgent   = "miner-detection"
	CandidateMiningPath   = "mining-endpoint"
	CandidateHighVolume   = "high-volume"
	CandidateDNSMining    = "dns-mining"
	CandidateTLSMining    = "tls-mining"
	CandidateSuspiciousIP = "suspicious-ip"
)

// Candidate is one detected indicator occurrence. Candidates are
// short-lived: the analyzer produces them and hands them straight to the
// synthesizer; they are never persisted.
type Candidate struct {
	// Kind is one of the Candidate* constants above.
	Kind string
	// Value is the raw indicator (hostname, user agent, URL, rdata, SNI
	// or IP) that triggered the detection.
	Value string
	// Event is the first supporting event.
	Event Event

	// Connections and Ports are populated only for suspicious-ip
	// candidates, aggregated across all events of the pass.
	Connections int
	Ports       []int

	// TotalBytes is populated only for high-volume candidates.
	TotalBytes int64
}

// PatternKey uniquely identifies the indicator instance within one
// analysis pass and is the deduplication key for both the per-pass seen
// set and the cross-cycle pattern cache.
func (c Candidate) PatternKey() string {
	switch c.Kind {
	case CandidateMiningPool:
		return "pool:" + c.Value
	case CandidateMinerAgent:
		return "ua:" + c.Value
	case CandidateMiningPath:
		return "uri:" + c.Value
	case CandidateDNSMining:
		return "dns:" + c.Value
	case CandidateTLSMining:
		return "tls:" + c.Value
	case CandidateHighVolume:
		return fmt.Sprintf("flow:%s:%d", c.Event.DestIP(), c.Event.DestPort())
	case CandidateSuspiciousIP:
		return "suspicious:" + c.Value
	default:
		return c.Kind + ":" + c.Value
	}
}

// Rule is one synthesized signature-engine rule in the shape the backend
// rule-ingestion API expects. Rules are immutable once created.
type Rule struct {
	Vendor  string   `json:"vendor" validate:"required"`
	SID     int      `json:"sid" validate:"required,gt=0"`
	Name    string   `json:"name" validate:"required"`
	Body    string   `json:"body" validate:"required"`
	Pattern string   `json:"pattern"`
	Tags    []string `json:"tags"`
	Enabled bool     `json:"enabled"`
}

// EscapeContent backslash-escapes the characters that would terminate a
// Suricata content match early: double quotes and semicolons. Every
// literal embedded in a rule body passes through here because hostnames,
// user agents and URLs are attacker-observed strings.
func EscapeContent(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, `;`, `\;`)
	return s
}
