package detect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"minerwatch/core"
)

// Synthesizer converts candidates into concrete Suricata rule records.
// One synthesizer serves one analysis pass: SIDs are base_sid plus a
// counter that increments once per successful synthesis, so every SID is
// unique within the pass.
type Synthesizer struct {
	baseSID    int
	counter    int
	indicators *core.Indicators
}

// NewSynthesizer creates a synthesizer for a single pass.
func NewSynthesizer(baseSID int, indicators *core.Indicators) *Synthesizer {
	if indicators == nil {
		indicators = core.DefaultIndicators()
	}
	return &Synthesizer{baseSID: baseSID, indicators: indicators}
}

// Synthesize builds a rule from the candidate. Malformed candidates are
// skipped (ok=false), never an error: rule generation must not abort the
// pass.
func (s *Synthesizer) Synthesize(c core.Candidate) (core.Rule, bool) {
	switch c.Kind {
	case core.CandidateMiningPool:
		return s.miningPoolRule(c)
	case core.CandidateMinerAgent:
		return s.minerAgentRule(c)
	case core.CandidateMiningPath:
		return s.miningPathRule(c)
	case core.CandidateHighVolume:
		return s.highVolumeRule(c)
	case core.CandidateDNSMining:
		return s.dnsMiningRule(c)
	case core.CandidateTLSMining:
		return s.tlsMiningRule(c)
	case core.CandidateSuspiciousIP:
		return s.suspiciousIPRule(c)
	default:
		return core.Rule{}, false
	}
}

func (s *Synthesizer) nextSID() int {
	s.counter++
	return s.baseSID + s.counter
}

func (s *Synthesizer) rule(sid int, name, body, pattern string, kindTag string) core.Rule {
	return core.Rule{
		Vendor:  "suricata",
		SID:     sid,
		Name:    name,
		Body:    body,
		Pattern: pattern,
		Tags:    []string{"auto-generated", "cryptojacking", kindTag},
		Enabled: true,
	}
}

func destOrAny(c core.Candidate) (string, string) {
	ip := c.Event.DestIP()
	if ip == "" {
		ip = "any"
	}
	port := "any"
	if p := c.Event.DestPort(); p != 0 {
		port = strconv.Itoa(p)
	}
	return ip, port
}

func (s *Synthesizer) miningPoolRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	ip, port := destOrAny(c)
	proto := strings.ToLower(c.Event.Proto())
	hostname := core.EscapeContent(c.Value)
	sid := s.nextSID()

	body := fmt.Sprintf(`alert %s any any -> %s %s (msg:"Cryptojacking: Mining pool connection %s"; flow:established,to_server; content:"%s"; http_host; sid:%d; rev:1;)`,
		proto, ip, port, hostname, hostname, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: Mining pool %s", c.Value), body, c.Value, core.CandidateMiningPool), true
}

func (s *Synthesizer) minerAgentRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	miner := s.indicators.MinerName(c.Value)
	agent := core.EscapeContent(c.Value)
	sid := s.nextSID()

	body := fmt.Sprintf(`alert http any any -> any any (msg:"Cryptojacking: Miner user agent detected - %s"; flow:established,to_server; content:"%s"; http_user_agent; sid:%d; rev:1;)`,
		miner, agent, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: Miner %s detected", miner), body, c.Value, core.CandidateMinerAgent), true
}

func (s *Synthesizer) miningPathRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	proto := strings.ToLower(c.Event.Proto())
	url := core.EscapeContent(c.Value)
	sid := s.nextSID()

	body := fmt.Sprintf(`alert %s any any -> any any (msg:"Cryptojacking: Mining endpoint detected - %s"; flow:established,to_server; content:"%s"; http_uri; sid:%d; rev:1;)`,
		proto, url, url, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: Mining endpoint %s", c.Value), body, c.Value, core.CandidateMiningPath), true
}

func (s *Synthesizer) highVolumeRule(c core.Candidate) (core.Rule, bool) {
	ip, port := destOrAny(c)
	proto := strings.ToLower(c.Event.Proto())
	sid := s.nextSID()

	body := fmt.Sprintf(`alert %s any any -> %s %s (msg:"Cryptojacking: Suspicious high volume traffic (%d bytes)"; flow:established,to_server; threshold:type limit, track by_src, count 5, seconds 60; sid:%d; rev:1;)`,
		proto, ip, port, c.TotalBytes, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: High volume traffic to %s:%s", ip, port), body, ip, core.CandidateHighVolume), true
}

func (s *Synthesizer) dnsMiningRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	rdata := core.EscapeContent(c.Value)
	sid := s.nextSID()

	body := fmt.Sprintf(`alert dns any any -> any 53 (msg:"Cryptojacking: DNS answer for mining pool %s"; dns_query; content:"%s"; sid:%d; rev:1;)`,
		rdata, rdata, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: DNS to mining pool %s", c.Value), body, c.Value, core.CandidateDNSMining), true
}

func (s *Synthesizer) tlsMiningRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	ip := c.Event.DestIP()
	if ip == "" {
		ip = "any"
	}
	port := c.Event.DestPort()
	if port == 0 {
		port = 443
	}
	sni := core.EscapeContent(c.Value)
	sid := s.nextSID()

	body := fmt.Sprintf(`alert tls any any -> %s %d (msg:"Cryptojacking: TLS SNI for mining pool %s"; tls_sni; content:"%s"; sid:%d; rev:1;)`,
		ip, port, sni, sni, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: TLS SNI to mining pool %s", c.Value), body, c.Value, core.CandidateTLSMining), true
}

func (s *Synthesizer) suspiciousIPRule(c core.Candidate) (core.Rule, bool) {
	if c.Value == "" {
		return core.Rule{}, false
	}
	portList := append([]int(nil), c.Ports...)
	sort.Ints(portList)
	parts := make([]string, len(portList))
	for i, p := range portList {
		parts[i] = strconv.Itoa(p)
	}
	sid := s.nextSID()

	body := fmt.Sprintf(`alert tcp any any -> %s any (msg:"Cryptojacking: Multiple suspicious connections to %s (ports: %s)"; flow:established,to_server; threshold:type limit, track by_src, count %d, seconds 60; sid:%d; rev:1;)`,
		c.Value, c.Value, strings.Join(parts, ","), c.Connections, sid)

	return s.rule(sid, fmt.Sprintf("Cryptojacking: Suspicious IP %s with %d connections", c.Value, c.Connections), body, c.Value, core.CandidateSuspiciousIP), true
}
