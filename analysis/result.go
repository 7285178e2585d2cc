package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PriceLevel grades the quote total against the market.
type PriceLevel string

const (
	PriceLow      PriceLevel = "low"
	PriceFair     PriceLevel = "fair"
	PriceHigh     PriceLevel = "high"
	PriceVeryHigh PriceLevel = "very_high"
)

// Verdict grades one quote line.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictCaution     Verdict = "caution"
	VerdictOverpriced  Verdict = "overpriced"
	VerdictMissingInfo Verdict = "missing_info"
)

// ItemAssessment is the verdict on one quote line.
type ItemAssessment struct {
	Name    string  `json:"name"`
	Verdict Verdict `json:"verdict"`
	Comment string  `json:"comment,omitempty"`
}

// Result is the structured assessment returned to the caller.
type Result struct {
	OverallScore    int              `json:"overall_score"`
	PriceLevel      PriceLevel       `json:"price_level"`
	Summary         string           `json:"summary"`
	Items           []ItemAssessment `json:"items"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// rawResult mirrors Result with pointers so absent fields are detectable.
type rawResult struct {
	OverallScore    *int              `json:"overall_score"`
	PriceLevel      *PriceLevel       `json:"price_level"`
	Summary         *string           `json:"summary"`
	Items           *[]ItemAssessment `json:"items"`
	Recommendations []string          `json:"recommendations"`
}

// ParseResult extracts the JSON object from the model's text and checks
// required fields and ranges. Anything malformed yields a
// *ValidationError.
func ParseResult(text string) (*Result, error) {
	body, ok := extractObject(text)
	if !ok {
		return nil, &ValidationError{Subject: "result", Problems: []string{"no JSON object found"}}
	}

	var raw rawResult
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return nil, &ValidationError{Subject: "result", Problems: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}

	var problems []string
	switch {
	case raw.OverallScore == nil:
		problems = append(problems, "overall_score is required")
	case *raw.OverallScore < 0 || *raw.OverallScore > 100:
		problems = append(problems, fmt.Sprintf("overall_score %d out of range 0-100", *raw.OverallScore))
	}
	switch {
	case raw.PriceLevel == nil:
		problems = append(problems, "price_level is required")
	case !validPriceLevel(*raw.PriceLevel):
		problems = append(problems, fmt.Sprintf("price_level %q is not recognized", *raw.PriceLevel))
	}
	if raw.Summary == nil || strings.TrimSpace(*raw.Summary) == "" {
		problems = append(problems, "summary is required")
	}
	if raw.Items == nil {
		problems = append(problems, "items is required")
	} else {
		for i, it := range *raw.Items {
			if strings.TrimSpace(it.Name) == "" {
				problems = append(problems, fmt.Sprintf("items[%d].name is required", i))
			}
			if !validVerdict(it.Verdict) {
				problems = append(problems, fmt.Sprintf("items[%d].verdict %q is not recognized", i, it.Verdict))
			}
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Subject: "result", Problems: problems}
	}

	return &Result{
		OverallScore:    *raw.OverallScore,
		PriceLevel:      *raw.PriceLevel,
		Summary:         *raw.Summary,
		Items:           *raw.Items,
		Recommendations: raw.Recommendations,
	}, nil
}

// extractObject returns the outermost {...} span, skipping any prose or
// code fence around it.
func extractObject(text string) ([]byte, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, false
	}
	return []byte(text[start : end+1]), true
}

func validPriceLevel(p PriceLevel) bool {
	switch p {
	case PriceLow, PriceFair, PriceHigh, PriceVeryHigh:
		return true
	}
	return false
}

func validVerdict(v Verdict) bool {
	switch v {
	case VerdictOK, VerdictCaution, VerdictOverpriced, VerdictMissingInfo:
		return true
	}
	return false
}
