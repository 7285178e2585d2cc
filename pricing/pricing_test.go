package pricing_test

import (
	"errors"
	"math"
	"testing"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/pricing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestCalculatorCost(t *testing.T) {
	c := pricing.NewCalculator(pricing.NewCatalog(
		pricing.Model{ID: "m1", InputCostPer1M: 1, OutputCostPer1M: 4},
	))

	tests := []struct {
		name               string
		prompt, completion int
		want               pricing.Breakdown
	}{
		{"zero", 0, 0, pricing.Breakdown{}},
		{"one million each", 1_000_000, 1_000_000, pricing.Breakdown{Input: 1, Output: 4, Total: 5}},
		{"small", 600, 500, pricing.Breakdown{Input: 0.0006, Output: 0.002, Total: 0.0026}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Cost("m1", tt.prompt, tt.completion)
			if err != nil {
				t.Fatalf("Cost: %v", err)
			}
			if !approx(got.Input, tt.want.Input) || !approx(got.Output, tt.want.Output) || !approx(got.Total, tt.want.Total) {
				t.Errorf("Cost = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculatorUnknownModel(t *testing.T) {
	c := pricing.NewCalculator(nil)
	if c.Known("nope") {
		t.Fatal("Known(nope) = true")
	}
	_, err := c.Cost("nope", 1, 1)
	if !errors.Is(err, zipcheck.ErrModelUnknown) {
		t.Fatalf("expected ErrModelUnknown, got %v", err)
	}
}

func TestCatalogRegister(t *testing.T) {
	cat := pricing.NewCatalog()
	if _, ok := cat.Get("gpt-4o-mini"); !ok {
		t.Fatal("default catalog missing gpt-4o-mini")
	}

	if err := cat.Register(pricing.Model{ID: "local-vllm"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := cat.Get("local-vllm"); !ok {
		t.Fatal("registered model not found")
	}
	if err := cat.Register(pricing.Model{}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := cat.Register(pricing.Model{ID: "x", InputCostPer1M: -1}); err == nil {
		t.Error("expected error for negative price")
	}

	list := cat.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID > list[i].ID {
			t.Fatalf("List not sorted: %s > %s", list[i-1].ID, list[i].ID)
		}
	}
}

func TestBreakdownAdd(t *testing.T) {
	got := pricing.Breakdown{Input: 1, Output: 2, Total: 3}.Add(pricing.Breakdown{Input: 0.5, Output: 0.5, Total: 1})
	if got != (pricing.Breakdown{Input: 1.5, Output: 2.5, Total: 4}) {
		t.Errorf("Add = %+v", got)
	}
}
