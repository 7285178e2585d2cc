// Package contextdata supplies the market context that accompanies a
// quote in the prompt. Context is best-effort: when a provider fails or
// has nothing, the prompt carries NoDataNote instead.
package contextdata

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pola2025/zipcheck-sub000/analysis"
)

// NoDataNote is the summary used when no comparable data is available.
const NoDataNote = "No comparable market data is available for these items. Judge the quote on its internal consistency and general market knowledge, and say so in the summary."

// Provider summarizes comparable historical data for a request.
type Provider interface {
	Summarize(ctx context.Context, req *analysis.Request) (string, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, req *analysis.Request) (string, error)

// Summarize calls f.
func (f Func) Summarize(ctx context.Context, req *analysis.Request) (string, error) {
	return f(ctx, req)
}

// Gather asks p for a summary. A nil provider, an error or an empty
// summary all yield NoDataNote; failures are logged, never returned.
func Gather(ctx context.Context, p Provider, req *analysis.Request, logger *slog.Logger) string {
	if p == nil {
		return NoDataNote
	}
	summary, err := p.Summarize(ctx, req)
	if err != nil {
		if logger != nil {
			logger.Warn("context data unavailable", "subject_id", req.SubjectID, "error", err)
		}
		return NoDataNote
	}
	if strings.TrimSpace(summary) == "" {
		return NoDataNote
	}
	return summary
}
