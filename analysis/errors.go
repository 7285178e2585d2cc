package analysis

import (
	"fmt"
	"strings"
)

// ValidationError reports a request or provider result that failed its
// schema or range checks. Values are never coerced into shape.
type ValidationError struct {
	// Subject is "request" or "result".
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("zipcheck/analysis: invalid %s: %s", e.Subject, strings.Join(e.Problems, "; "))
}
