package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// ── Usage model ──

type usageModel struct {
	ID               string    `msgpack:"id"`
	JobID            string    `msgpack:"job_id"`
	Step             int       `msgpack:"step"`
	Model            string    `msgpack:"model"`
	PromptTokens     int       `msgpack:"prompt_tokens"`
	CompletionTokens int       `msgpack:"completion_tokens"`
	TotalTokens      int       `msgpack:"total_tokens"`
	InputCostUSD     float64   `msgpack:"input_cost_usd"`
	OutputCostUSD    float64   `msgpack:"output_cost_usd"`
	CostUSD          float64   `msgpack:"cost_usd"`
	Attempts         int       `msgpack:"attempts"`
	DurationNs       int64     `msgpack:"duration_ns"`
	CreatedAt        time.Time `msgpack:"created_at"`
}

func encodeUsage(r *usage.Record) ([]byte, error) {
	return msgpack.Marshal(&usageModel{
		ID:               r.ID.String(),
		JobID:            r.JobID.String(),
		Step:             r.Step,
		Model:            r.Model,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		InputCostUSD:     r.InputCostUSD,
		OutputCostUSD:    r.OutputCostUSD,
		CostUSD:          r.CostUSD,
		Attempts:         r.Attempts,
		DurationNs:       r.Duration.Nanoseconds(),
		CreatedAt:        r.CreatedAt,
	})
}

func decodeUsage(b []byte) (*usage.Record, error) {
	var m usageModel
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	uID, err := id.ParseUsageID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse usage id %q: %w", m.ID, err)
	}
	jID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.JobID, err)
	}
	return &usage.Record{
		Entity:           zipcheck.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		ID:               uID,
		JobID:            jID,
		Step:             m.Step,
		Model:            m.Model,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		TotalTokens:      m.TotalTokens,
		InputCostUSD:     m.InputCostUSD,
		OutputCostUSD:    m.OutputCostUSD,
		CostUSD:          m.CostUSD,
		Attempts:         m.Attempts,
		Duration:         time.Duration(m.DurationNs),
	}, nil
}

// ── Output model ──

type outputModel struct {
	ID          string    `msgpack:"id"`
	JobID       string    `msgpack:"job_id"`
	Step        int       `msgpack:"step"`
	Content     []byte    `msgpack:"content"`
	ContentHash string    `msgpack:"content_hash"`
	Done        bool      `msgpack:"done"`
	CreatedAt   time.Time `msgpack:"created_at"`
}

func encodeOutput(o *output.Record) ([]byte, error) {
	return msgpack.Marshal(&outputModel{
		ID:          o.ID.String(),
		JobID:       o.JobID.String(),
		Step:        o.Step,
		Content:     o.Content,
		ContentHash: o.ContentHash,
		Done:        o.Done,
		CreatedAt:   o.CreatedAt,
	})
}

func decodeOutput(b []byte) (*output.Record, error) {
	var m outputModel
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	oID, err := id.ParseOutputID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse output id %q: %w", m.ID, err)
	}
	jID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.JobID, err)
	}
	return &output.Record{
		Entity:      zipcheck.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		ID:          oID,
		JobID:       jID,
		Step:        m.Step,
		Content:     m.Content,
		ContentHash: m.ContentHash,
		Done:        m.Done,
	}, nil
}
