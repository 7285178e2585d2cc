package contextdata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pola2025/zipcheck-sub000/analysis"
)

// Reference is the market price band for one category.
type Reference struct {
	Unit   string `yaml:"unit"`
	Low    int64  `yaml:"low"`
	Median int64  `yaml:"median"`
	High   int64  `yaml:"high"`
	Note   string `yaml:"note,omitempty"`
}

// PriceBook is a static table of reference unit prices per category,
// optionally specialized per region.
type PriceBook struct {
	Currency   string                          `yaml:"currency"`
	Categories map[string]Reference            `yaml:"categories"`
	Regions    map[string]map[string]Reference `yaml:"regions,omitempty"`
}

var _ Provider = (*PriceBook)(nil)

// ParsePriceBook decodes a YAML price book.
func ParsePriceBook(data []byte) (*PriceBook, error) {
	var pb PriceBook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("zipcheck/contextdata: parse price book: %w", err)
	}
	return &pb, nil
}

// LoadPriceBook reads a YAML price book from path.
func LoadPriceBook(path string) (*PriceBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/contextdata: read price book: %w", err)
	}
	return ParsePriceBook(data)
}

// Lookup returns the reference for category, preferring a regional entry.
func (pb *PriceBook) Lookup(region, category string) (Reference, bool) {
	if r, ok := pb.Regions[region][category]; ok {
		return r, true
	}
	r, ok := pb.Categories[category]
	return r, ok
}

// Summarize lists the reference band for each category in the request.
// It returns an empty summary when no category is known.
func (pb *PriceBook) Summarize(_ context.Context, req *analysis.Request) (string, error) {
	cats := req.Categories()
	sort.Strings(cats)

	var b strings.Builder
	for _, c := range cats {
		ref, ok := pb.Lookup(req.Region, c)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: median %d %s per %s (typical %d-%d)", c, ref.Median, pb.Currency, ref.Unit, ref.Low, ref.High)
		if ref.Note != "" {
			fmt.Fprintf(&b, "; %s", ref.Note)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
