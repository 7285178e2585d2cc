// Package pricing converts provider token usage into US dollars.
package pricing

import (
	"fmt"
	"sort"
	"sync"

	zipcheck "github.com/pola2025/zipcheck-sub000"
)

// Model is the price sheet of one provider model.
type Model struct {
	ID              string  `json:"id" yaml:"id"`
	Provider        string  `json:"provider" yaml:"provider"`
	InputCostPer1M  float64 `json:"input_cost_per_1m" yaml:"input_cost_per_1m"`   // USD per 1M tokens
	OutputCostPer1M float64 `json:"output_cost_per_1m" yaml:"output_cost_per_1m"` // USD per 1M tokens
}

// DefaultModels is the built-in catalog. Config may add or override
// entries.
var DefaultModels = []Model{
	{ID: "gpt-4o-mini", Provider: "openai", InputCostPer1M: 0.15, OutputCostPer1M: 0.60},
	{ID: "gpt-4o", Provider: "openai", InputCostPer1M: 2.50, OutputCostPer1M: 10.00},
	{ID: "gpt-4.1-mini", Provider: "openai", InputCostPer1M: 0.40, OutputCostPer1M: 1.60},
	{ID: "gpt-4.1", Provider: "openai", InputCostPer1M: 2.00, OutputCostPer1M: 8.00},
}

// Catalog is a concurrency-safe set of priced models.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewCatalog returns a catalog seeded with models. With no arguments it
// holds DefaultModels.
func NewCatalog(models ...Model) *Catalog {
	if len(models) == 0 {
		models = DefaultModels
	}
	c := &Catalog{models: make(map[string]Model, len(models))}
	for _, m := range models {
		c.models[m.ID] = m
	}
	return c
}

// Register adds or replaces a model.
func (c *Catalog) Register(m Model) error {
	if m.ID == "" {
		return fmt.Errorf("pricing: model id is required")
	}
	if m.InputCostPer1M < 0 || m.OutputCostPer1M < 0 {
		return fmt.Errorf("pricing: model %s: negative price", m.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
	return nil
}

// Get returns the model with id.
func (c *Catalog) Get(id string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	return m, ok
}

// List returns every model sorted by ID.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Breakdown is the cost of one call split by direction.
type Breakdown struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Add returns the sum of b and o.
func (b Breakdown) Add(o Breakdown) Breakdown {
	return Breakdown{Input: b.Input + o.Input, Output: b.Output + o.Output, Total: b.Total + o.Total}
}

// Calculator prices token usage against a catalog.
type Calculator struct {
	catalog *Catalog
}

// NewCalculator returns a calculator over catalog, or the default catalog
// when nil.
func NewCalculator(catalog *Catalog) *Calculator {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Calculator{catalog: catalog}
}

// Catalog returns the underlying catalog.
func (c *Calculator) Catalog() *Catalog { return c.catalog }

// Known reports whether model has a price sheet.
func (c *Calculator) Known(model string) bool {
	_, ok := c.catalog.Get(model)
	return ok
}

// Cost prices prompt and completion tokens for model. Unknown models
// return zipcheck.ErrModelUnknown.
func (c *Calculator) Cost(model string, promptTokens, completionTokens int) (Breakdown, error) {
	m, ok := c.catalog.Get(model)
	if !ok {
		return Breakdown{}, fmt.Errorf("pricing: %q: %w", model, zipcheck.ErrModelUnknown)
	}
	in := float64(promptTokens) * m.InputCostPer1M / 1_000_000
	out := float64(completionTokens) * m.OutputCostPer1M / 1_000_000
	return Breakdown{Input: in, Output: out, Total: in + out}, nil
}
