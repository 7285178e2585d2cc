// Package preflight sizes a prompt before any provider budget is spent.
// Estimates are heuristics (characters / 4), not tokenizer output.
package preflight

import (
	"time"
	"unicode/utf8"

	"github.com/pola2025/zipcheck-sub000/provider"
)

const (
	charsPerToken = 4

	// outputRatio is the share of input tokens recommended as output.
	outputRatio = 0.3

	MinOutputTokens = 2000
	MaxOutputTokens = 4000

	baseTimeout      = 30 * time.Second
	maxInputTimeout  = 60 * time.Second
	maxOutputTimeout = 30 * time.Second
	perInputToken    = time.Millisecond
	perOutputToken   = 5 * time.Millisecond

	// MaxTimeout is the hard ceiling on any single provider attempt.
	MaxTimeout = 180 * time.Second
)

// Estimate is the preflight sizing of one prompt.
type Estimate struct {
	InputTokens  int
	OutputTokens int
	Timeout      time.Duration
}

// EstimateMessages sizes msgs.
func EstimateMessages(msgs []provider.Message) Estimate {
	in := InputTokens(msgs)
	out := OutputTokens(in)
	return Estimate{
		InputTokens:  in,
		OutputTokens: out,
		Timeout:      DynamicTimeout(in, out),
	}
}

// InputTokens approximates the token count of msgs as ceil(runes / 4).
func InputTokens(msgs []provider.Message) int {
	var chars int
	for _, m := range msgs {
		chars += utf8.RuneCountInString(m.Content)
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

// OutputTokens recommends an output cap of ceil(in × 0.3) clamped to
// [MinOutputTokens, MaxOutputTokens].
func OutputTokens(in int) int {
	n := (in*3 + 9) / 10 // ceil(in × 0.3) in integers
	return ClampOutputTokens(n)
}

// ClampOutputTokens bounds n to [MinOutputTokens, MaxOutputTokens].
func ClampOutputTokens(n int) int {
	switch {
	case n < MinOutputTokens:
		return MinOutputTokens
	case n > MaxOutputTokens:
		return MaxOutputTokens
	default:
		return n
	}
}

// DynamicTimeout returns 30s plus 1ms per input token (at most 60s) plus
// 5ms per output token (at most 30s), never above MaxTimeout.
func DynamicTimeout(inputTokens, outputLimit int) time.Duration {
	inPart := min(maxInputTimeout, time.Duration(max(inputTokens, 0))*perInputToken)
	outPart := min(maxOutputTimeout, time.Duration(max(outputLimit, 0))*perOutputToken)
	return min(MaxTimeout, baseTimeout+inPart+outPart)
}
