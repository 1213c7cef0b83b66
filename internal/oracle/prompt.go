package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/pkg/anthropic"
)

const promptSystem = `You are a friendly, professional onboarding assistant helping a producer register their business on an Indian marketplace.

When asked to collect a field:
- Be warm and professional
- Explain why the information is needed (compliance, verification)
- Reference previously collected information where relevant
- Explain acceptable formats and give an example where helpful
- Make it feel like a conversation, not a form
- If this is a retry, acknowledge the earlier difficulty and give clearer guidance

Respond with just the conversational prompt, nothing else.`

const promptUserTemplate = `Field needed: %s

Already collected:
%s

Recent conversation:
%s

Attempts so far on this field: %d`

// PromptRequest carries the context for drafting a field prompt.
type PromptRequest struct {
	Field     string
	Collected map[string]string
	// Recent holds the tail of the transcript, newest last.
	Recent   []model.TranscriptEntry
	Attempts int
}

// FieldPrompt drafts the conversational question for the given field.
func (o *Oracle) FieldPrompt(ctx context.Context, req PromptRequest) (string, error) {
	temp := 0.7
	msgReq := anthropic.MessageRequest{
		Model:       o.haiku,
		MaxTokens:   300,
		Temperature: &temp,
		System:      anthropic.BuildCachedSystemBlocks(promptSystem),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(promptUserTemplate,
				req.Field,
				formatCollected(req.Collected),
				formatTranscript(req.Recent),
				req.Attempts,
			)},
		},
	}

	return o.complete(ctx, msgReq, purposePrompt)
}

// formatCollected renders collected data as indented JSON for prompt context.
func formatCollected(collected map[string]string) string {
	if len(collected) == 0 {
		return "(nothing yet)"
	}
	b, err := json.MarshalIndent(collected, "", "  ")
	if err != nil {
		return "(nothing yet)"
	}
	return string(b)
}

// formatTranscript renders transcript entries as "role: content" lines.
func formatTranscript(entries []model.TranscriptEntry) string {
	if len(entries) == 0 {
		return "Just starting"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", e.Role, e.Content))
	}
	return strings.Join(lines, "\n")
}
