// Package detect turns EVE telemetry into synthesized Suricata rules: the
// pattern analyzer classifies events against known cryptojacking
// indicators, the synthesizer renders matching candidates into rule
// records, the coverage checker decides whether the engine already alerts
// on the threat class, and the synthetic fallback fabricates minimal
// events from classifier metrics when no telemetry is available.
package detect

import (
	"context"
	"strings"

	"minerwatch/core"
	"minerwatch/metrics"

	"go.uber.org/zap"
)

const (
	// HighVolumeBytes is the per-flow byte total above which a flow to a
	// suspicious port is considered mining traffic.
	HighVolumeBytes = 100000

	// SuspiciousConnectionCount is the per-destination-IP connection
	// count above which the cross-pattern detector fires.
	SuspiciousConnectionCount = 10
)

// Analyzer classifies events against the indicator sets and emits
// deduplicated, capped rule sets. Safe to reuse across cycles; all
// per-pass state lives in the pass struct.
type Analyzer struct {
	indicators *core.Indicators
	baseSID    int
	maxRules   int
	cache      core.PatternCache // optional cross-cycle suppression, may be nil
	logger     *zap.SugaredLogger
}

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	Indicators *core.Indicators
	BaseSID    int
	MaxRules   int
	Cache      core.PatternCache
	Logger     *zap.SugaredLogger
}

// NewAnalyzer creates an analyzer. Zero-value config fields fall back to
// the defaults from the original deployment (base SID 2000000, 10 rules
// per pass, built-in indicators).
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Indicators == nil {
		cfg.Indicators = core.DefaultIndicators()
	}
	if cfg.BaseSID <= 0 {
		cfg.BaseSID = 2000000
	}
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Analyzer{
		indicators: cfg.Indicators,
		baseSID:    cfg.BaseSID,
		maxRules:   cfg.MaxRules,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// pass holds the state of a single Analyze invocation: the per-pass seen
// set, the per-pass SID counter (via the synthesizer) and the rules
// emitted so far.
type pass struct {
	seen  map[string]bool
	synth *Synthesizer
	rules []core.Rule
}

// Analyze runs every detector over the events and returns the synthesized
// rules, at most MaxRules of them, with no duplicate pattern keys and no
// duplicate SIDs. The seen set resets on every call; when a pattern cache
// is configured, indicators ruled in recent cycles are also suppressed.
func (a *Analyzer) Analyze(ctx context.Context, events []core.Event) []core.Rule {
	if len(events) == 0 {
		return nil
	}

	p := &pass{
		seen:  make(map[string]bool),
		synth: NewSynthesizer(a.baseSID, a.indicators),
	}

	byType := make(map[string][]core.Event)
	for _, event := range events {
		byType[event.Type()] = append(byType[event.Type()], event)
	}

	a.analyzeHTTP(ctx, p, byType[core.EventTypeHTTP])
	a.analyzeFlow(ctx, p, byType[core.EventTypeFlow])
	a.analyzeDNS(ctx, p, byType[core.EventTypeDNS])
	a.analyzeTLS(ctx, p, byType[core.EventTypeTLS])
	a.analyzeAlerts(byType[core.EventTypeAlert])
	a.analyzeCrossPatterns(ctx, p, events)

	return p.rules
}

// emit deduplicates and synthesizes one candidate. Returns false once the
// rule cap is reached so detectors can short-circuit.
func (a *Analyzer) emit(ctx context.Context, p *pass, c core.Candidate) bool {
	if len(p.rules) >= a.maxRules {
		return false
	}

	key := c.PatternKey()
	if p.seen[key] {
		return true
	}
	p.seen[key] = true

	if a.cache != nil {
		// Cache errors fail open: better a duplicate rule than a missed
		// detection.
		if seen, err := a.cache.Seen(ctx, key); err == nil && seen {
			a.logger.Debugf("Pattern %s already ruled recently, skipping", key)
			return true
		}
	}

	rule, ok := p.synth.Synthesize(c)
	if !ok {
		return true
	}

	p.rules = append(p.rules, rule)
	metrics.RulesGenerated.WithLabelValues(c.Kind).Inc()

	if a.cache != nil {
		if err := a.cache.Remember(ctx, key); err != nil {
			a.logger.Warnf("Failed to record pattern %s in cache: %v", key, err)
		}
	}
	return true
}

func (a *Analyzer) capped(p *pass) bool {
	return len(p.rules) >= a.maxRules
}

// analyzeHTTP checks distinct hostnames, user agents and URLs against the
// pool, miner-agent and mining-path indicator sets. One candidate per
// distinct matching value, not per occurrence.
func (a *Analyzer) analyzeHTTP(ctx context.Context, p *pass, events []core.Event) {
	if len(events) == 0 || a.capped(p) {
		return
	}

	hostnames := make(map[string]core.Event)
	userAgents := make(map[string]core.Event)
	urls := make(map[string]core.Event)

	for _, event := range events {
		http := event.HTTP()
		if http == nil {
			continue
		}
		if hostname := core.StringFrom(http, "hostname"); hostname != "" {
			if _, ok := hostnames[hostname]; !ok {
				hostnames[hostname] = event
			}
		}
		if ua := strings.ToLower(core.StringFrom(http, "http_user_agent")); ua != "" {
			if _, ok := userAgents[ua]; !ok {
				userAgents[ua] = event
			}
		}
		if url := core.StringFrom(http, "url"); url != "" {
			if _, ok := urls[url]; !ok {
				urls[url] = event
			}
		}
	}

	for hostname, event := range hostnames {
		if a.indicators.IsMiningPool(hostname) {
			if !a.emit(ctx, p, core.Candidate{Kind: core.CandidateMiningPool, Value: hostname, Event: event}) {
				return
			}
		}
	}
	for ua, event := range userAgents {
		if a.indicators.IsMinerUserAgent(ua) {
			if !a.emit(ctx, p, core.Candidate{Kind: core.CandidateMinerAgent, Value: ua, Event: event}) {
				return
			}
		}
	}
	for url, event := range urls {
		if a.indicators.IsMiningPath(url) {
			if !a.emit(ctx, p, core.Candidate{Kind: core.CandidateMiningPath, Value: url, Event: event}) {
				return
			}
		}
	}
}

// analyzeFlow flags flows whose byte total exceeds HighVolumeBytes toward
// a suspicious port. Deduplicated by (dest_ip, dest_port) via the pattern
// key.
func (a *Analyzer) analyzeFlow(ctx context.Context, p *pass, events []core.Event) {
	if len(events) == 0 || a.capped(p) {
		return
	}

	for _, event := range events {
		flow := event.Flow()
		if flow == nil {
			continue
		}
		total := int64(core.IntFrom(flow, "bytes_toserver")) + int64(core.IntFrom(flow, "bytes_toclient"))
		if total > HighVolumeBytes && a.indicators.IsSuspiciousPort(event.DestPort()) {
			if !a.emit(ctx, p, core.Candidate{
				Kind:       core.CandidateHighVolume,
				Value:      event.DestIP(),
				Event:      event,
				TotalBytes: total,
			}) {
				return
			}
		}
	}
}

// analyzeDNS flags A/AAAA answers resolving to known pool values, one
// candidate per distinct resolved value.
func (a *Analyzer) analyzeDNS(ctx context.Context, p *pass, events []core.Event) {
	if len(events) == 0 || a.capped(p) {
		return
	}

	for _, event := range events {
		dns := event.DNS()
		if dns == nil {
			continue
		}
		rrtype := core.StringFrom(dns, "rrtype")
		if rrtype != "A" && rrtype != "AAAA" {
			continue
		}
		answers, _ := dns["answers"].([]any)
		for _, raw := range answers {
			answer, _ := raw.(map[string]any)
			rdata := core.StringFrom(answer, "rdata")
			if rdata != "" && a.indicators.IsMiningPool(rdata) {
				if !a.emit(ctx, p, core.Candidate{Kind: core.CandidateDNSMining, Value: rdata, Event: event}) {
					return
				}
			}
		}
	}
}

// analyzeTLS flags TLS handshakes whose SNI matches a known pool value.
func (a *Analyzer) analyzeTLS(ctx context.Context, p *pass, events []core.Event) {
	if len(events) == 0 || a.capped(p) {
		return
	}

	for _, event := range events {
		tls := event.TLS()
		if tls == nil {
			continue
		}
		sni := core.StringFrom(tls, "sni")
		if sni != "" && a.indicators.IsMiningPool(sni) {
			if !a.emit(ctx, p, core.Candidate{Kind: core.CandidateTLSMining, Value: sni, Event: event}) {
				return
			}
		}
	}
}

// analyzeAlerts never emits rules; pre-existing engine alerts only get
// logged so operators can see the overlap. It runs regardless of the cap.
func (a *Analyzer) analyzeAlerts(events []core.Event) {
	if len(events) > 0 {
		a.logger.Infof("Found %d existing engine alerts in the analyzed window", len(events))
	}
}

// analyzeCrossPatterns aggregates connection counts and destination port
// sets per destination IP across all events, regardless of type, and
// flags IPs with more than SuspiciousConnectionCount connections touching
// at least one suspicious port.
func (a *Analyzer) analyzeCrossPatterns(ctx context.Context, p *pass, events []core.Event) {
	if a.capped(p) {
		return
	}

	connections := make(map[string]int)
	ports := make(map[string]map[int]bool)
	firstEvent := make(map[string]core.Event)

	for _, event := range events {
		ip := event.DestIP()
		port := event.DestPort()
		if ip == "" || port == 0 {
			continue
		}
		connections[ip]++
		if ports[ip] == nil {
			ports[ip] = make(map[int]bool)
		}
		ports[ip][port] = true
		if _, ok := firstEvent[ip]; !ok {
			firstEvent[ip] = event
		}
	}

	for ip, count := range connections {
		if count <= SuspiciousConnectionCount {
			continue
		}
		suspicious := false
		portList := make([]int, 0, len(ports[ip]))
		for port := range ports[ip] {
			portList = append(portList, port)
			if a.indicators.IsSuspiciousPort(port) {
				suspicious = true
			}
		}
		if !suspicious {
			continue
		}
		if !a.emit(ctx, p, core.Candidate{
			Kind:        core.CandidateSuspiciousIP,
			Value:       ip,
			Event:       firstEvent[ip],
			Connections: count,
			Ports:       portList,
		}) {
			return
		}
	}
}
