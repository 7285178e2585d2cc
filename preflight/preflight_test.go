package preflight_test

import (
	"strings"
	"testing"
	"time"

	"github.com/pola2025/zipcheck-sub000/preflight"
	"github.com/pola2025/zipcheck-sub000/provider"
)

func TestInputTokens(t *testing.T) {
	tests := []struct {
		name string
		msgs []provider.Message
		want int
	}{
		{"empty", nil, 0},
		{"exact multiple", []provider.Message{{Content: "abcdefgh"}}, 2},
		{"rounds up", []provider.Message{{Content: "abcdefghi"}}, 3},
		{"sums blocks", []provider.Message{{Content: "abc"}, {Content: "de"}}, 2},
		{"counts runes not bytes", []provider.Message{{Content: "견적서검토"}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preflight.InputTokens(tt.msgs); got != tt.want {
				t.Errorf("InputTokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutputTokens(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 2000},
		{1000, 2000},
		{10_000, 3000},
		{10_001, 3001},
		{13_333, 4000},
		{100_000, 4000},
	}
	for _, tt := range tests {
		if got := preflight.OutputTokens(tt.in); got != tt.want {
			t.Errorf("OutputTokens(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDynamicTimeout(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
		want    time.Duration
	}{
		{"zero", 0, 0, 30 * time.Second},
		{"small", 1000, 2000, 30*time.Second + time.Second + 10*time.Second},
		{"input capped", 500_000, 2000, 30*time.Second + 60*time.Second + 10*time.Second},
		{"output capped", 0, 100_000, 30*time.Second + 30*time.Second},
		{"both capped", 1_000_000, 1_000_000, 120 * time.Second},
		{"negative treated as zero", -5, -5, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preflight.DynamicTimeout(tt.in, tt.out)
			if got != tt.want {
				t.Errorf("DynamicTimeout(%d, %d) = %v, want %v", tt.in, tt.out, got, tt.want)
			}
			if got > preflight.MaxTimeout {
				t.Errorf("exceeds ceiling: %v", got)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: strings.Repeat("a", 40_000)},
		{Role: provider.RoleUser, Content: strings.Repeat("b", 8_000)},
	}
	est := preflight.EstimateMessages(msgs)

	if est.InputTokens != 12_000 {
		t.Errorf("InputTokens = %d, want 12000", est.InputTokens)
	}
	if est.OutputTokens != 3600 {
		t.Errorf("OutputTokens = %d, want 3600", est.OutputTokens)
	}
	want := 30*time.Second + 12*time.Second + 18*time.Second
	if est.Timeout != want {
		t.Errorf("Timeout = %v, want %v", est.Timeout, want)
	}
}
