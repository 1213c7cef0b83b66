package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

const riskSystem = `You are a compliance expert validating Indian producer onboarding data for completeness and authenticity.

Consider:
1. The number of format validation failures
2. The fields parked for manual review
3. Completeness - are all critical fields present?
4. Consistency - does the data make sense together?
5. Red flags or suspicious patterns

Calculate a risk score (0-100) weighted as:
- Completeness (30%)
- Data validity (30%) - weight validation failures heavily
- Business credibility (20%)
- Compliance with regulations (20%)

Add 10 points to the risk score for each validation failure and 5 points for each field parked for manual review. Never score below the deterministic baseline provided.

Consider Indian business regulations and typical patterns.

Respond only with a valid JSON object:
{
    "completeness_percentage": 0-100,
    "is_complete": true/false,
    "issues": [
        {"field": "field_name", "issue": "description", "severity": 0.0-1.0}
    ],
    "risk_score": 0-100,
    "risk_factors": ["list of risk factors"],
    "recommendations": ["list of recommendations"],
    "requires_manual_verification": true/false
}`

const riskUserTemplate = `Data:
%s

Field validation results:
%s

Validation failures: %d
Fields parked for manual review: %d
Deterministic baseline score: %.1f`

// RiskRequest carries the session evidence for the holistic scoring pass.
type RiskRequest struct {
	Collected map[string]string
	Verdicts  map[string]*model.Verdict
	// FailureCount is the number of failing deterministic verdicts.
	FailureCount int
	// ReviewCount is the number of fields parked for manual review.
	ReviewCount int
	// Baseline is the deterministic pre-adjustment included in the prompt;
	// the caller also enforces it as a floor on the returned score.
	Baseline float64
}

// RiskIssue is a problem the oracle found in the collected data.
type RiskIssue struct {
	Field    string  `json:"field"`
	Issue    string  `json:"issue"`
	Severity float64 `json:"severity"`
}

// RiskReport is the oracle's holistic judgment of the application.
type RiskReport struct {
	CompletenessPct            float64     `json:"completeness_percentage"`
	IsComplete                 bool        `json:"is_complete"`
	Issues                     []RiskIssue `json:"issues"`
	RiskScore                  float64     `json:"risk_score"`
	RiskFactors                []string    `json:"risk_factors"`
	Recommendations            []string    `json:"recommendations"`
	RequiresManualVerification bool        `json:"requires_manual_verification"`
}

// ScoreRisk performs the holistic validation and risk scoring pass.
func (o *Oracle) ScoreRisk(ctx context.Context, req RiskRequest) (*RiskReport, error) {
	temp := 0.3
	msgReq := anthropic.MessageRequest{
		Model:       o.sonnet,
		MaxTokens:   1024,
		Temperature: &temp,
		System:      anthropic.BuildCachedSystemBlocks(riskSystem),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(riskUserTemplate,
				formatCollected(req.Collected),
				formatVerdicts(req.Verdicts),
				req.FailureCount,
				req.ReviewCount,
				req.Baseline,
			)},
		},
	}

	text, err := o.complete(ctx, msgReq, purposeRisk)
	if err != nil {
		return nil, err
	}
	return parseRiskReport(text)
}

func parseRiskReport(text string) (*RiskReport, error) {
	text = cleanJSON(text)

	var report RiskReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, eris.Wrap(err, "oracle: parse risk report")
	}

	report.RiskScore = clamp(report.RiskScore, 0, 100)
	report.CompletenessPct = clamp(report.CompletenessPct, 0, 100)
	for i := range report.Issues {
		report.Issues[i].Severity = clamp(report.Issues[i].Severity, 0, 1)
	}
	return &report, nil
}

// formatVerdicts renders deterministic verdicts as indented JSON.
func formatVerdicts(verdicts map[string]*model.Verdict) string {
	if len(verdicts) == 0 {
		return "(none recorded)"
	}
	b, err := json.MarshalIndent(verdicts, "", "  ")
	if err != nil {
		return "(none recorded)"
	}
	return string(b)
}
