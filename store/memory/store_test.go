package memory_test

import (
	"context"
	"testing"

	"github.com/pola2025/zipcheck-sub000/store"
	"github.com/pola2025/zipcheck-sub000/store/memory"
	"github.com/pola2025/zipcheck-sub000/store/storetest"
)

var _ store.Store = (*memory.Store)(nil)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) store.Store {
		return memory.New()
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestReturnedJobsAreCopies(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	j := storetest.NewJob("key-copy")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	j.Model = "mutated"

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "gpt-4o-mini" {
		t.Fatalf("caller mutation leaked into store: %q", got.Model)
	}
	got.Model = "mutated-again"

	again, _ := s.GetJob(ctx, j.ID) //nolint:errcheck // checked above
	if again.Model != "gpt-4o-mini" {
		t.Fatalf("returned job aliases stored job: %q", again.Model)
	}
}
