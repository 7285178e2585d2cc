package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pola2025/zipcheck-sub000/provider"
)

const systemPrompt = `You are a construction and renovation quote reviewer.
Assess the quote you are given against the market context provided.
Reply with a single JSON object and nothing else, using exactly this schema:

{
  "overall_score": integer 0-100 (100 = excellent value),
  "price_level": one of "low", "fair", "high", "very_high",
  "summary": string,
  "items": [{"name": string, "verdict": one of "ok", "caution", "overpriced", "missing_info", "comment": string}],
  "recommendations": [string]
}`

// BuildMessages renders the request and its supporting context into the
// prompt. When marker is set the model is asked to end its reply with it.
func BuildMessages(req *Request, contextSummary, marker string) ([]provider.Message, error) {
	quote, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("zipcheck/analysis: encode request: %w", err)
	}

	sys := systemPrompt
	if m := strings.TrimSpace(marker); m != "" {
		sys += fmt.Sprintf("\n\nAfter the JSON object, write %q on its own line.", m)
	}

	var b strings.Builder
	b.WriteString("Market context:\n")
	b.WriteString(strings.TrimSpace(contextSummary))
	b.WriteString("\n\nQuote:\n")
	b.Write(quote)

	return []provider.Message{
		{Role: provider.RoleSystem, Content: sys},
		{Role: provider.RoleUser, Content: b.String()},
	}, nil
}
