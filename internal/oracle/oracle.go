// Package oracle is the Claude-backed judgment client for the onboarding
// conversation. It drafts conversational field prompts, assesses producer
// answers, plans which fields are still required, and scores overall
// application risk.
//
// Every call runs through an adaptive rate limiter, transient-failure
// retries, a circuit breaker, and a hard per-call timeout. Responses are
// parsed as JSON with structural validation; any transport or parse failure
// surfaces as an error so each caller can apply its own documented fallback.
package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/config"
	"github.com/mandi-labs/onboard-cli/internal/resilience"
	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

// Cost attribution purposes, one per judgment surface.
const (
	purposePrompt = "field_prompt"
	purposeAssess = "answer_assessment"
	purposePlan   = "field_plan"
	purposeRisk   = "risk_score"
)

// Judge is the semantic decision surface the onboarding engine consults.
// Implementations must be safe for concurrent use.
type Judge interface {
	// FieldPrompt drafts the conversational question for the given field.
	FieldPrompt(ctx context.Context, req PromptRequest) (string, error)
	// Assess judges whether a producer's answer satisfies the requested field.
	Assess(ctx context.Context, req AssessRequest) (*Assessment, error)
	// PlanFields determines which fields are still required given the data
	// collected so far.
	PlanFields(ctx context.Context, collected map[string]string) (*FieldPlan, error)
	// ScoreRisk performs the holistic validation and risk scoring pass.
	ScoreRisk(ctx context.Context, req RiskRequest) (*RiskReport, error)
}

// Oracle implements Judge on top of the Anthropic messages API.
type Oracle struct {
	client  anthropic.Client
	haiku   string
	sonnet  string
	timeout time.Duration
	limiter *adaptiveLimiter
	breaker *resilience.CircuitBreaker
}

// New creates an Oracle from the Anthropic client and config sections.
// Zero config values fall back to defaults.
func New(client anthropic.Client, aiCfg config.AnthropicConfig, cfg config.OracleConfig) *Oracle {
	haiku := aiCfg.HaikuModel
	if haiku == "" {
		haiku = "claude-haiku-4-5-20251001"
	}
	sonnet := aiCfg.SonnetModel
	if sonnet == "" {
		sonnet = "claude-sonnet-4-5-20250929"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 2.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 4
	}

	return &Oracle{
		client:  client,
		haiku:   haiku,
		sonnet:  sonnet,
		timeout: timeout,
		limiter: newAdaptiveLimiter(ratePerSec, burst),
		breaker: resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig(cfg.FailureThreshold, cfg.ResetTimeoutSecs),
		),
	}
}

// complete runs a single message call through the limiter, breaker, and
// timeout, logs cost attribution, and returns the trimmed response text.
func (o *Oracle) complete(ctx context.Context, req anthropic.MessageRequest, purpose string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", eris.Wrapf(err, "oracle: %s rate limit wait", purpose)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := resilience.ExecuteVal(callCtx, o.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, o.retryPolicy(purpose), func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return o.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		if isRateLimited(err) {
			o.limiter.OnRateLimit()
		}
		return "", eris.Wrapf(err, "oracle: %s call", purpose)
	}

	o.limiter.OnSuccess()
	resp.Usage.LogCost(req.Model, purpose)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Errorf("oracle: %s returned empty response", purpose)
	}
	return text, nil
}

// retryPolicy builds the per-call retry config. Retries run inside the
// breaker, so a call only counts as one breaker failure after its retries
// exhaust. Rate limits back off alongside network-level transient errors;
// real API rejections surface immediately so callers can fall back.
func (o *Oracle) retryPolicy(purpose string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxBackoff = 5 * time.Second
	cfg.ShouldRetry = func(err error) bool {
		return isRateLimited(err) || resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.RetryLogger("anthropic", purpose)
	return cfg
}

// isRateLimited reports whether an API error was a 429. The SDK does not
// surface status codes through our wrapping, so this matches on the error
// text the API returns.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
