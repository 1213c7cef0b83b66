// Package risk aggregates per-field validation evidence and the oracle's
// holistic judgment into a single assessment and a routing decision.
//
// Two signals feed the score. A deterministic baseline adds 10 points per
// failing verdict and 5 per field parked for review, capped at 40. The
// oracle receives the same counts plus the baseline inside its prompt and
// folds them into its weighted 0-100 score; the final score is the larger
// of the two, so the oracle can never score below the deterministic floor.
package risk

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/compliance"
	"github.com/mandi-labs/onboard-cli/internal/config"
	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/oracle"
)

// Outcome is the routing decision produced alongside an assessment.
type Outcome string

const (
	// OutcomeComplete auto-accepts the session.
	OutcomeComplete Outcome = "complete"
	// OutcomeEscalate routes the session to manual verification.
	OutcomeEscalate Outcome = "escalate"
	// OutcomeContinue returns the session to field collection.
	OutcomeContinue Outcome = "continue"
)

// Result couples the computed assessment with the routing decision and the
// fresh per-field verdicts backing it. The caller owns writing both back
// onto the session.
type Result struct {
	Assessment *model.RiskAssessment
	Verdicts   map[string]*model.Verdict
	Outcome    Outcome
}

// Scorer computes the holistic risk picture for a session.
type Scorer struct {
	judge             oracle.Judge
	autoCompleteBelow float64
}

// New builds a Scorer. The auto-complete threshold falls back to 50 when
// the config leaves it zero.
func New(judge oracle.Judge, cfg config.SessionConfig) *Scorer {
	below := cfg.AutoCompleteRiskBelow
	if below <= 0 {
		below = 50
	}
	return &Scorer{judge: judge, autoCompleteBelow: below}
}

// Score revalidates every recognized collected field, folds the failure
// and review counts into the oracle's holistic pass, and returns the
// combined assessment. Oracle failure degrades to a medium-risk
// escalation, never a completion.
func (s *Scorer) Score(ctx context.Context, sess *model.Session) Result {
	verdicts, failures := revalidate(sess.Collected)
	parked := sess.PendingFields()

	// 10 points per failing verdict, 5 per parked field, capped at 40.
	baseline := math.Min(float64(len(failures))*10+float64(len(parked))*5, 40)

	report, err := s.judge.ScoreRisk(ctx, oracle.RiskRequest{
		Collected:    sess.Collected,
		Verdicts:     verdicts,
		FailureCount: len(failures),
		ReviewCount:  len(parked),
		Baseline:     baseline,
	})
	if err != nil {
		zap.L().Warn("risk: oracle unavailable, defaulting to medium risk",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return Result{
			Assessment: &model.RiskAssessment{
				Issues:                     deterministicIssues(verdicts, failures, parked),
				RiskScore:                  50,
				RequiresManualVerification: true,
				Degraded:                   true,
				ComputedAt:                 time.Now().UTC(),
			},
			Verdicts: verdicts,
			Outcome:  OutcomeEscalate,
		}
	}

	score := math.Max(report.RiskScore, baseline)
	requires := report.RequiresManualVerification || len(failures) > 0 || len(parked) > 0

	assessment := &model.RiskAssessment{
		CompletenessPct:            report.CompletenessPct,
		IsComplete:                 report.IsComplete,
		Issues:                     mergeIssues(verdicts, failures, parked, report.Issues),
		RiskScore:                  score,
		RequiresManualVerification: requires,
		ComputedAt:                 time.Now().UTC(),
	}

	outcome := s.decide(assessment, len(failures))

	zap.L().Info("risk: scored session",
		zap.String("session_id", sess.ID),
		zap.Float64("risk_score", score),
		zap.Float64("baseline", baseline),
		zap.Int("validation_failures", len(failures)),
		zap.Int("review_fields", len(parked)),
		zap.String("outcome", string(outcome)),
	)

	return Result{Assessment: assessment, Verdicts: verdicts, Outcome: outcome}
}

// decide applies the routing rules in order: completion needs the oracle's
// is-complete, a score under the auto-complete threshold, and zero failing
// verdicts. Otherwise any manual-verification requirement escalates, and
// with neither the session goes back to collecting fields.
func (s *Scorer) decide(a *model.RiskAssessment, failures int) Outcome {
	switch {
	case a.IsComplete && a.RiskScore < s.autoCompleteBelow && failures == 0:
		return OutcomeComplete
	case a.RequiresManualVerification:
		return OutcomeEscalate
	default:
		return OutcomeContinue
	}
}

// revalidate runs the deterministic validators over every recognized
// collected field and returns the verdicts plus the sorted names of the
// failing ones. Parked values keep their pending suffix and are never
// revalidated; they are counted through the review path instead.
func revalidate(collected map[string]string) (map[string]*model.Verdict, []string) {
	verdicts := make(map[string]*model.Verdict)
	var failures []string
	for field, value := range collected {
		if strings.HasSuffix(field, model.PendingSuffix) {
			continue
		}
		if !compliance.Recognized(field) {
			continue
		}
		v := compliance.Validate(field, value)
		verdicts[field] = v
		if v != nil && !v.Valid {
			failures = append(failures, field)
		}
	}
	sort.Strings(failures)
	return verdicts, failures
}

// deterministicIssues builds the issue list available without the oracle.
func deterministicIssues(verdicts map[string]*model.Verdict, failures, parked []string) []model.ValidationIssue {
	issues := make([]model.ValidationIssue, 0, len(failures)+len(parked))
	for _, field := range failures {
		issues = append(issues, model.ValidationIssue{
			Field:       field,
			Kind:        model.IssueFormat,
			Description: verdicts[field].Error,
			Severity:    0.8,
		})
	}
	for _, field := range parked {
		issues = append(issues, model.ValidationIssue{
			Field:       field,
			Kind:        model.IssueManualReview,
			Description: "Parked for manual review after repeated invalid answers",
			Severity:    0.5,
		})
	}
	return issues
}

// mergeIssues appends the oracle's findings after the deterministic ones,
// skipping fields the validators already flagged.
func mergeIssues(verdicts map[string]*model.Verdict, failures, parked []string, found []oracle.RiskIssue) []model.ValidationIssue {
	issues := deterministicIssues(verdicts, failures, parked)
	flagged := make(map[string]bool, len(issues))
	for _, is := range issues {
		flagged[is.Field] = true
	}
	for _, ri := range found {
		if flagged[ri.Field] {
			continue
		}
		issues = append(issues, model.ValidationIssue{
			Field:       ri.Field,
			Kind:        classifyIssue(ri.Issue),
			Description: ri.Issue,
			Severity:    ri.Severity,
		})
	}
	return issues
}

// classifyIssue buckets an oracle-reported issue by its wording.
func classifyIssue(desc string) model.IssueKind {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(lower, "missing") || strings.Contains(lower, "not provided"):
		return model.IssueMissing
	case strings.Contains(lower, "inconsistent") || strings.Contains(lower, "mismatch") || strings.Contains(lower, "does not match"):
		return model.IssueInconsistent
	default:
		return model.IssueOther
	}
}
