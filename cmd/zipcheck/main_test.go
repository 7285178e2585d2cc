package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/config"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/store/memory"
)

func init() { color.NoColor = true }

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := newLogger(config.Log{Level: tt.level, Format: "json"}, &bytes.Buffer{})
			if !l.Enabled(context.Background(), tt.want) {
				t.Errorf("level %s not enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4) {
				t.Errorf("level below %s enabled", tt.want)
			}
		})
	}
}

func TestPrintSubmission(t *testing.T) {
	var buf bytes.Buffer
	printSubmission(&buf, &orchestrator.Submission{
		Result: &analysis.Result{
			OverallScore: 58,
			PriceLevel:   analysis.PriceHigh,
			Summary:      "Labor is expensive.",
			Items:        []analysis.ItemAssessment{{Name: "Labor", Verdict: analysis.VerdictOverpriced, Comment: "30% above median"}},
		},
		Meta: orchestrator.Meta{JobID: id.NewJobID(), Model: "gpt-4o-mini", TokensUsed: 900, CacheHit: true},
	})
	out := buf.String()
	for _, want := range []string{"58/100", "HIGH", "overpriced", "30% above median", "(cached)", "900 tokens"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("panic in job x: boom\ngoroutine 1"); got != "panic in job x: boom" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine = %q", got)
	}
}

func TestMigrateAndSweepCommands(t *testing.T) {
	t.Setenv("ZIPCHECK_STORE_DRIVER", "memory")

	for _, args := range [][]string{{"migrate"}, {"sweep"}} {
		t.Run(args[0], func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(append(args, "--env-file", ""))
			if err := root.Execute(); err != nil {
				t.Fatalf("%s: %v\n%s", args[0], err, out.String())
			}
			if !strings.Contains(out.String(), "✓") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestGetRejectsBadID(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"get", "not-an-id", "--env-file", ""})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for malformed job id")
	}
}

func TestNewNotifierRejectsUnknownEvent(t *testing.T) {
	_, _, _, err := newNotifier(config.Notify{Events: []string{"completion", "bogus"}}, slog.Default())
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Errorf("err = %v", err)
	}
}

func TestRemoteSubmitAndGet(t *testing.T) {
	p := provider.Func(func(context.Context, provider.Request) (*provider.Response, error) {
		return &provider.Response{
			Text:         `{"overall_score": 80, "price_level": "fair", "summary": "Fine.", "items": [{"name": "Paint", "verdict": "ok"}]}` + "\nEND",
			PromptTokens: 200, CompletionTokens: 50,
		}, nil
	})
	orch, err := orchestrator.New(memory.New(), p)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	srv := httptest.NewServer(api.New(orch).Handler())
	defer srv.Close()

	run := func(stdin string, args ...string) (string, error) {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetIn(strings.NewReader(stdin))
		root.SetArgs(append(args, "--env-file", "", "--server", srv.URL))
		err := root.Execute()
		return out.String(), err
	}

	out, err := run(`{"requester_id": "biz-3", "subject_id": "q-1", "items": [{"name": "Paint", "amount": 120000}], "total_amount": 120000}`, "submit")
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Score: 80/100") {
		t.Errorf("submit output = %q", out)
	}

	if _, err := run("", "get", id.NewJobID().String()); err == nil {
		t.Error("get of an unknown job should fail")
	}
}
