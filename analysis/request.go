// Package analysis defines the quote-analysis domain: the request a
// business submits, the prompt sent to the provider, and the scored
// result parsed back from it.
package analysis

import (
	"fmt"
	"strings"

	"github.com/pola2025/zipcheck-sub000/job"
)

// Item is one priced line of a quote.
type Item struct {
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	UnitPrice int64   `json:"unit_price,omitempty"`
	Amount    int64   `json:"amount"`
}

// Request is a quote submitted for analysis. Amounts are in the smallest
// currency unit.
type Request struct {
	RequesterID string `json:"requester_id"`
	SubjectID   string `json:"subject_id"`
	Title       string `json:"title,omitempty"`
	Region      string `json:"region,omitempty"`
	Items       []Item `json:"items"`
	TotalAmount int64  `json:"total_amount"`
	Notes       string `json:"notes,omitempty"`
}

// MaxItems bounds the number of lines in one request.
const MaxItems = 500

// Validate checks the request shape before any budget is spent.
func (r *Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.RequesterID) == "" {
		problems = append(problems, "requester_id is required")
	}
	if strings.TrimSpace(r.SubjectID) == "" {
		problems = append(problems, "subject_id is required")
	}
	switch {
	case len(r.Items) == 0:
		problems = append(problems, "at least one item is required")
	case len(r.Items) > MaxItems:
		problems = append(problems, fmt.Sprintf("too many items: %d > %d", len(r.Items), MaxItems))
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.Name) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].name is required", i))
		}
		if it.Amount < 0 {
			problems = append(problems, fmt.Sprintf("items[%d].amount must not be negative", i))
		}
		if it.Quantity < 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must not be negative", i))
		}
	}
	if r.TotalAmount <= 0 {
		problems = append(problems, "total_amount must be positive")
	}
	if len(problems) > 0 {
		return &ValidationError{Subject: "request", Problems: problems}
	}
	return nil
}

// IdemFields returns the fields that identify the request for
// idempotency purposes.
func (r *Request) IdemFields() job.KeyFields {
	return job.KeyFields{
		RequesterID: r.RequesterID,
		SubjectID:   r.SubjectID,
		ItemCount:   len(r.Items),
		TotalAmount: r.TotalAmount,
	}
}

// Categories returns the distinct non-empty item categories in order of
// first appearance.
func (r *Request) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range r.Items {
		c := strings.TrimSpace(it.Category)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
