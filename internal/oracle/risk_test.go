package oracle

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

func TestParseRiskReport_ValidJSON(t *testing.T) {
	got, err := parseRiskReport(`{
		"completeness_percentage": 85,
		"is_complete": true,
		"issues": [
			{"field": "gst_number", "issue": "check character mismatch", "severity": 0.8}
		],
		"risk_score": 42.5,
		"risk_factors": ["invalid GST"],
		"recommendations": ["verify GST registration"],
		"requires_manual_verification": true
	}`)

	require.NoError(t, err)
	assert.InDelta(t, 85.0, got.CompletenessPct, 0.001)
	assert.True(t, got.IsComplete)
	assert.InDelta(t, 42.5, got.RiskScore, 0.001)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "gst_number", got.Issues[0].Field)
	assert.True(t, got.RequiresManualVerification)
}

func TestParseRiskReport_ClampsOutOfRange(t *testing.T) {
	got, err := parseRiskReport(`{
		"completeness_percentage": 130,
		"is_complete": false,
		"issues": [{"field": "phone", "issue": "suspicious", "severity": 3.0}],
		"risk_score": 250,
		"requires_manual_verification": true
	}`)

	require.NoError(t, err)
	assert.InDelta(t, 100.0, got.CompletenessPct, 0.001)
	assert.InDelta(t, 100.0, got.RiskScore, 0.001)
	assert.InDelta(t, 1.0, got.Issues[0].Severity, 0.001)
}

func TestParseRiskReport_InvalidJSON(t *testing.T) {
	_, err := parseRiskReport("overall the data seems risky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse risk report")
}

func TestScoreRisk_EndToEnd(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		content := req.Messages[0].Content
		return req.Model == "claude-sonnet-4-5-20250929" &&
			strings.Contains(content, "Validation failures: 1") &&
			strings.Contains(content, "Fields parked for manual review: 2") &&
			strings.Contains(content, "Deterministic baseline score: 20.0")
	})).Return(textResponse(`{"completeness_percentage": 70, "is_complete": false, "risk_score": 55, "requires_manual_verification": true}`), nil).Once()

	o := newTestOracle(client)
	got, err := o.ScoreRisk(context.Background(), RiskRequest{
		Collected: map[string]string{"name": "Ravi Traders", "phone_pending": "98765"},
		Verdicts: map[string]*model.Verdict{
			"gst_number": model.InvalidVerdict("Invalid GST check character. Expected 'V' as the 15th character."),
		},
		FailureCount: 1,
		ReviewCount:  2,
		Baseline:     20,
	})

	require.NoError(t, err)
	assert.InDelta(t, 55.0, got.RiskScore, 0.001)
	assert.True(t, got.RequiresManualVerification)
	client.AssertExpectations(t)
}

func TestFormatVerdicts_Empty(t *testing.T) {
	assert.Equal(t, "(none recorded)", formatVerdicts(nil))
}
