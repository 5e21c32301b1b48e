// Package sources normalizes the three opportunity origins (curated catalog,
// donor-submitted links, funding requests) into candidates for matching.
package sources

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/catalog.yaml
var catalogYAML embed.FS

// Catalog is the embedded concierge-curated opportunity list.
type Catalog struct {
	Entries []CatalogEntry `yaml:"entries"`
}

// CatalogEntry is one curated opportunity. IDs are stable slugs chosen by
// the concierge team.
type CatalogEntry struct {
	ID         string  `yaml:"id"`
	Title      string  `yaml:"title"`
	Summary    string  `yaml:"summary"`
	Category   string  `yaml:"category"`
	Location   string  `yaml:"location"`
	Amount     float64 `yaml:"amount"`
	FundingGap float64 `yaml:"funding_gap,omitempty"`
}

// LoadCatalog reads the embedded catalog.yaml. The path parameter is a
// filesystem fallback for local development and is otherwise ignored.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := catalogYAML.ReadFile("config/catalog.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Entries))
	for _, e := range cat.Entries {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry %q has no id", e.Title)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate catalog id %q", e.ID)
		}
		seen[e.ID] = true
	}

	return &cat, nil
}
