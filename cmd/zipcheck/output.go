package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stateColor(s job.State) *color.Color {
	switch s {
	case job.StateSucceeded:
		return goodColor
	case job.StateQueued, job.StateRunning, job.StateCanceled:
		return warnColor
	default:
		return badColor
	}
}

func levelColor(p analysis.PriceLevel) *color.Color {
	switch p {
	case analysis.PriceLow, analysis.PriceFair:
		return goodColor
	case analysis.PriceHigh:
		return warnColor
	default:
		return badColor
	}
}

func verdictColor(v analysis.Verdict) *color.Color {
	switch v {
	case analysis.VerdictOK:
		return goodColor
	case analysis.VerdictOverpriced:
		return badColor
	default:
		return warnColor
	}
}

func printResult(w io.Writer, res *analysis.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "%s %d/100  %s\n", labelColor.Sprint("Score:"), res.OverallScore,
		levelColor(res.PriceLevel).Sprint(strings.ToUpper(string(res.PriceLevel))))
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Summary:"), res.Summary)
	for _, it := range res.Items {
		line := fmt.Sprintf("  %-12s %s", verdictColor(it.Verdict).Sprint(it.Verdict), it.Name)
		if it.Comment != "" {
			line += " - " + it.Comment
		}
		fmt.Fprintln(w, line)
	}
	for _, r := range res.Recommendations {
		fmt.Fprintf(w, "  * %s\n", r)
	}
}

func printSubmission(w io.Writer, sub *orchestrator.Submission) {
	headerColor.Fprintf(w, "Job %s\n", sub.Meta.JobID)
	cache := ""
	if sub.Meta.CacheHit {
		cache = goodColor.Sprint(" (cached)")
	}
	fmt.Fprintf(w, "%s %s  %d tokens  $%.4f  %s  stop=%s%s\n",
		labelColor.Sprint("Model:"), sub.Meta.Model, sub.Meta.TokensUsed, sub.Meta.CostUSD,
		sub.Meta.Duration.Round(time.Millisecond), sub.Meta.StopReason, cache)
	printResult(w, sub.Result)
}

func printReport(w io.Writer, r *orchestrator.Report) {
	j := r.Job
	headerColor.Fprintf(w, "Job %s\n", j.ID)
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Status:"), stateColor(j.Status).Sprint(j.Status))
	fmt.Fprintf(w, "%s %s / %s\n", labelColor.Sprint("Subject:"), j.RequesterID, j.SubjectID)
	fmt.Fprintf(w, "%s %s  %d/%d tokens  $%.4f/$%.2f\n", labelColor.Sprint("Usage:"),
		j.Model, j.TokensUsed, j.TokenBudget, j.CostUSD, j.USDBudget)
	if j.StopReason != "" {
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Stop:"), j.StopReason)
	}
	if j.TerminationReason != "" {
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Reason:"), badColor.Sprint(firstLine(j.TerminationReason)))
	}
	for _, u := range r.Usage {
		fmt.Fprintf(w, "  step %d: %d+%d tokens, %d attempt(s), $%.4f\n",
			u.Step, u.PromptTokens, u.CompletionTokens, u.Attempts, u.CostUSD)
	}
	printResult(w, r.Result)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
