package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minerwatch/core"
	"minerwatch/metrics"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rulesEndpoint is the backend's rule-ingestion path.
const rulesEndpoint = "/rulesets/rules"

// Publisher sends synthesized rules to the rule-management backend, one
// HTTP request per rule. Per-rule failures never stop the batch.
type Publisher struct {
	baseURL  string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewPublisher creates a publisher. An empty baseURL disables publishing:
// Publish then reports zero successes with a warning, and the rest of the
// cycle is unaffected.
func NewPublisher(baseURL, token string, timeout time.Duration, ratePerSecond float64, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &Publisher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		validate: validator.New(),
		logger:   logger,
	}
}

// Enabled reports whether a backend URL is configured.
func (p *Publisher) Enabled() bool { return p.baseURL != "" }

// Publish sends each rule to the backend and returns the number accepted
// (2xx responses). Validation failures, connection errors and non-2xx
// responses are logged per rule and skipped.
func (p *Publisher) Publish(ctx context.Context, rules []core.Rule) int {
	if len(rules) == 0 {
		return 0
	}
	if !p.Enabled() {
		p.logger.Warnf("Backend URL not configured, skipping publish of %d rules", len(rules))
		return 0
	}

	url := p.baseURL + rulesEndpoint
	p.logger.Infof("Publishing %d rules to %s", len(rules), url)

	success := 0
	for _, rule := range rules {
		if err := p.validate.Struct(rule); err != nil {
			p.logger.Errorf("Rule %q failed validation, not publishing: %v", rule.Name, err)
			metrics.RulesPublished.WithLabelValues("invalid").Inc()
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Warnf("Publish interrupted: %v", err)
			break
		}
		if err := p.publishOne(ctx, url, rule); err != nil {
			p.logger.Errorf("Failed to publish rule %q (SID %d): %v", rule.Name, rule.SID, err)
			metrics.RulesPublished.WithLabelValues("error").Inc()
			continue
		}
		p.logger.Infof("Published rule %q (SID %d)", rule.Name, rule.SID)
		metrics.RulesPublished.WithLabelValues("ok").Inc()
		success++
	}

	p.logger.Infof("%d/%d rules published successfully", success, len(rules))
	return success
}

func (p *Publisher) publishOne(ctx context.Context, url string, rule core.Rule) error {
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
