package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

const planSystem = `You are an expert in Indian business compliance and producer onboarding. Given the data collected so far, determine what additional information is required.

Consider regulations like:
- GST requirements
- FSSAI for food businesses
- Drug license for pharmaceuticals
- BIS standards for manufacturing
- State-specific requirements

Determine:
1. What critical fields are still missing
2. What documents are required
3. The priority order for collecting missing information
4. Any domain-specific requirements

Field names must be snake_case. If nothing further is needed, set next_priority_field to an empty string.

Respond only with a valid JSON object:
{
    "required_fields": [
        {"field": "field_name", "priority": 1-10, "reason": "why needed", "category": "basic/compliance/verification"}
    ],
    "required_documents": [
        {"document": "doc_type", "mandatory": true/false, "reason": "why needed"}
    ],
    "next_priority_field": "field_name",
    "domain_specific_requirements": ["list of specific requirements"]
}`

const planUserTemplate = `Collected data:
%s`

// RequiredField is one entry in the oracle's field plan.
type RequiredField struct {
	Field    string `json:"field"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

// RequiredDocument is a document the producer must eventually supply.
type RequiredDocument struct {
	Document  string `json:"document"`
	Mandatory bool   `json:"mandatory"`
	Reason    string `json:"reason"`
}

// FieldPlan is the oracle's view of what information is still required.
// An empty NextPriorityField means collection is finished.
type FieldPlan struct {
	RequiredFields     []RequiredField    `json:"required_fields"`
	RequiredDocuments  []RequiredDocument `json:"required_documents"`
	NextPriorityField  string             `json:"next_priority_field"`
	DomainRequirements []string           `json:"domain_specific_requirements"`
}

// PlanFields determines which fields are still required given the data
// collected so far.
func (o *Oracle) PlanFields(ctx context.Context, collected map[string]string) (*FieldPlan, error) {
	temp := 0.3
	msgReq := anthropic.MessageRequest{
		Model:       o.sonnet,
		MaxTokens:   1024,
		Temperature: &temp,
		System:      anthropic.BuildCachedSystemBlocks(planSystem),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(planUserTemplate, formatCollected(collected))},
		},
	}

	text, err := o.complete(ctx, msgReq, purposePlan)
	if err != nil {
		return nil, err
	}
	return parsePlan(text)
}

func parsePlan(text string) (*FieldPlan, error) {
	text = cleanJSON(text)

	var plan FieldPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, eris.Wrap(err, "oracle: parse field plan")
	}

	plan.NextPriorityField = normalizeFieldName(plan.NextPriorityField)
	for i := range plan.RequiredFields {
		plan.RequiredFields[i].Field = normalizeFieldName(plan.RequiredFields[i].Field)
	}
	return &plan, nil
}

// normalizeFieldName lowers a field name and converts spaces and dashes to
// underscores so plan output lines up with collected-data keys.
func normalizeFieldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}
