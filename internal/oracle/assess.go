package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

const assessSystem = `You assess whether a producer's answer is valid and complete for the requested onboarding field.

Perform these checks:
1. Is the response relevant to the field requested?
2. Is the format correct? (e.g., email format, phone number format, GST format)
3. Is the information complete and usable?
4. Are there any red flags or suspicious patterns?
5. Can you extract the actual value from the response?

For Indian compliance, check:
- GST: 15 characters (2 digit state code + 10 char PAN + 1 entity digit + Z + 1 check character)
- PAN: 10 characters (5 letters + 4 digits + 1 letter)
- Phone: valid Indian mobile (10 digits) or landline
- Pincode: 6 digits

Respond only with a valid JSON object:
{
    "valid": true/false,
    "confidence": 0.0-1.0,
    "extracted_value": "the actual value to store",
    "feedback": "Clear explanation of what's wrong or 'Looks good!'",
    "requires_clarification": true/false,
    "clarification_prompt": "optional prompt for clarification"
}`

const assessUserTemplate = `Field requested: %s
User response: %s

Context (already collected):
%s`

// AssessRequest carries a producer answer for judgment.
type AssessRequest struct {
	Field     string
	Answer    string
	Collected map[string]string
}

// Assessment is the oracle's judgment of a single answer.
type Assessment struct {
	Valid                 bool    `json:"valid"`
	Confidence            float64 `json:"confidence"`
	ExtractedValue        string  `json:"extracted_value"`
	Feedback              string  `json:"feedback"`
	RequiresClarification bool    `json:"requires_clarification"`
	ClarificationPrompt   string  `json:"clarification_prompt"`
}

// Assess judges whether a producer's answer satisfies the requested field.
func (o *Oracle) Assess(ctx context.Context, req AssessRequest) (*Assessment, error) {
	temp := 0.2
	msgReq := anthropic.MessageRequest{
		Model:       o.haiku,
		MaxTokens:   500,
		Temperature: &temp,
		System:      anthropic.BuildCachedSystemBlocks(assessSystem),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(assessUserTemplate,
				req.Field,
				req.Answer,
				formatCollected(req.Collected),
			)},
		},
	}

	text, err := o.complete(ctx, msgReq, purposeAssess)
	if err != nil {
		return nil, err
	}
	return parseAssessment(text)
}

func parseAssessment(text string) (*Assessment, error) {
	text = cleanJSON(text)

	// extracted_value occasionally comes back as a bare number or boolean,
	// so decode it loosely and coerce below.
	var raw struct {
		Valid                 bool    `json:"valid"`
		Confidence            float64 `json:"confidence"`
		ExtractedValue        any     `json:"extracted_value"`
		Feedback              string  `json:"feedback"`
		RequiresClarification bool    `json:"requires_clarification"`
		ClarificationPrompt   string  `json:"clarification_prompt"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "oracle: parse assessment")
	}

	return &Assessment{
		Valid:                 raw.Valid,
		Confidence:            clamp(raw.Confidence, 0, 1),
		ExtractedValue:        stringValue(raw.ExtractedValue),
		Feedback:              raw.Feedback,
		RequiresClarification: raw.RequiresClarification,
		ClarificationPrompt:   raw.ClarificationPrompt,
	}, nil
}

// stringValue coerces a loosely-decoded JSON scalar to its string form.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
