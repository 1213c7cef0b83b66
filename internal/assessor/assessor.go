// Package assessor turns one producer answer into an accept / retry / park
// decision. The oracle judges relevance and extracts the value; the
// compliance validators have the final word on format for fields they
// recognize. Confidence is a hard gate: a "valid" oracle judgment below the
// threshold is still a rejection.
package assessor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/compliance"
	"github.com/mandi-labs/onboard-cli/internal/config"
	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/oracle"
)

// DecisionKind tags the outcome of assessing one answer.
type DecisionKind string

const (
	// Accepted stores the extracted value and advances to the next field.
	Accepted DecisionKind = "accepted"
	// RejectedRetry keeps the session on the same field with feedback.
	RejectedRetry DecisionKind = "rejected_retry"
	// RejectedEscalate parks the raw answer for manual review and advances.
	RejectedEscalate DecisionKind = "rejected_escalate"
)

// Decision is the assessor's verdict on a single answer. Exactly one kind is
// set; the engine applies the corresponding session mutation.
type Decision struct {
	Kind  DecisionKind
	Field string

	// Value is the value to store on acceptance. For fields the compliance
	// set recognizes this is the canonical form.
	Value string
	// Verdict is the deterministic verdict for recognized fields, nil for
	// unrecognized ones.
	Verdict *model.Verdict

	// Feedback and Clarification accompany a retry.
	Feedback      string
	Clarification string

	// PendingValue is the raw answer parked on escalation.
	PendingValue string

	// Confidence echoes the oracle's confidence, 0 on the degraded path.
	Confidence float64
	// Degraded marks the fail-open path taken when the oracle errored: the
	// raw answer is accepted verbatim rather than blocking the session.
	Degraded bool
}

// Assessor judges producer answers.
type Assessor struct {
	judge               oracle.Judge
	confidenceThreshold float64
	maxAttempts         int
}

// New creates an Assessor. Zero config values fall back to defaults.
func New(judge oracle.Judge, cfg config.SessionConfig) *Assessor {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Assessor{
		judge:               judge,
		confidenceThreshold: threshold,
		maxAttempts:         maxAttempts,
	}
}

// Assess judges one answer for the given field. failures is the count of
// consecutive rejections already recorded for this field; once a rejection
// would push it past the attempt limit, the decision escalates instead of
// retrying so a stuck field cannot block the session.
func (a *Assessor) Assess(ctx context.Context, field, answer string, collected map[string]string, failures int) Decision {
	judgment, err := a.judge.Assess(ctx, oracle.AssessRequest{
		Field:     field,
		Answer:    answer,
		Collected: collected,
	})
	if err != nil {
		// Fail-open: availability over precision. The raw answer is kept
		// verbatim and the session advances.
		zap.L().Warn("assessor: oracle unavailable, accepting answer unverified",
			zap.String("field", field),
			zap.Error(err),
		)
		return Decision{
			Kind:     Accepted,
			Field:    field,
			Value:    answer,
			Verdict:  a.verdictFor(field, answer),
			Degraded: true,
		}
	}

	if judgment.Valid && judgment.Confidence > a.confidenceThreshold {
		value := judgment.ExtractedValue
		if value == "" {
			value = answer
		}

		// The compliance set is authoritative on format: a deterministic
		// failure overrides an oracle accept.
		verdict := a.verdictFor(field, value)
		if verdict != nil && !verdict.Valid {
			zap.L().Debug("assessor: deterministic verdict overrides oracle accept",
				zap.String("field", field),
				zap.String("error", verdict.Error),
			)
			return a.reject(field, answer, verdict.Error, "", judgment.Confidence, failures, verdict)
		}

		if canonical := compliance.Canonical(verdict); canonical != "" {
			value = canonical
		}
		return Decision{
			Kind:       Accepted,
			Field:      field,
			Value:      value,
			Verdict:    verdict,
			Confidence: judgment.Confidence,
		}
	}

	feedback := judgment.Feedback
	if feedback == "" {
		feedback = fmt.Sprintf("That doesn't look like a valid %s. Could you try again?", strings.ReplaceAll(field, "_", " "))
	}
	clarification := ""
	if judgment.RequiresClarification {
		clarification = judgment.ClarificationPrompt
	}
	return a.reject(field, answer, feedback, clarification, judgment.Confidence, failures, nil)
}

// reject produces a retry decision, or an escalation once the failure count
// is already at the attempt limit (so this rejection is the final one).
func (a *Assessor) reject(field, answer, feedback, clarification string, confidence float64, failures int, verdict *model.Verdict) Decision {
	if failures >= a.maxAttempts {
		return Decision{
			Kind:         RejectedEscalate,
			Field:        field,
			PendingValue: answer,
			Verdict:      verdict,
			Confidence:   confidence,
		}
	}
	return Decision{
		Kind:          RejectedRetry,
		Field:         field,
		Feedback:      feedback,
		Clarification: clarification,
		Verdict:       verdict,
		Confidence:    confidence,
	}
}

// verdictFor runs the deterministic validator for recognized fields and
// returns nil for fields outside the compliance set.
func (a *Assessor) verdictFor(field, value string) *model.Verdict {
	if !compliance.Recognized(field) {
		return nil
	}
	return compliance.Validate(field, value)
}
