// Package knowledge serves the static catalog of German energy-regulation
// Q&A entries and ranks them against customer queries.
//
// The catalog is loaded once at process start and never mutated afterwards,
// so it is shared read-only across concurrent requests without locking.
package knowledge

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

// Entry is one canned Q&A pair resolved for a specific language.
type Entry struct {
	Category  string
	Query     string
	Response  string
	Relevance string // "high", "medium" or "low"
	Score     int    // Raw word-overlap score used for ranking
}

// catalogItem is one stored Q&A pair with its per-language texts.
type catalogItem struct {
	inputs    map[string]string
	responses map[string]string
}

// text returns the item's question and answer for a language. Entries
// lacking a translation are skipped entirely, never substituted with
// another language.
func (i catalogItem) text(language string) (query, response string, ok bool) {
	query, qok := i.inputs[language]
	response, rok := i.responses[language]
	return query, response, qok && rok
}

// Catalog is the immutable, categorized knowledge base.
type Catalog struct {
	categories []string // sorted; fixes iteration order for tie-breaks
	items      map[string][]catalogItem
}

// catalogFile mirrors the stored JSON layout: categories of entries whose
// keys carry a language suffix ("input_en", "response_de", ...).
type catalogFile struct {
	Queries map[string][]map[string]string `json:"utility_invoice_queries"`
}

// Load reads the catalog from a JSON file. A missing or malformed file
// yields an empty catalog rather than a startup failure; the assistant then
// simply answers without canned regulatory context.
func Load(path string) *Catalog {
	log := logger.WithComponent("knowledge-catalog")
	empty := &Catalog{items: map[string][]catalogItem{}}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Knowledge base not readable, starting with empty catalog")
		return empty
	}
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Knowledge base malformed, starting with empty catalog")
		return empty
	}

	catalog := &Catalog{items: make(map[string][]catalogItem, len(file.Queries))}
	total := 0
	for category, rawItems := range file.Queries {
		items := make([]catalogItem, 0, len(rawItems))
		for _, raw := range rawItems {
			item := catalogItem{
				inputs:    map[string]string{},
				responses: map[string]string{},
			}
			for key, value := range raw {
				switch {
				case strings.HasPrefix(key, "input_"):
					item.inputs[strings.TrimPrefix(key, "input_")] = value
				case strings.HasPrefix(key, "response_"):
					item.responses[strings.TrimPrefix(key, "response_")] = value
				}
			}
			items = append(items, item)
		}
		catalog.items[category] = items
		catalog.categories = append(catalog.categories, category)
		total += len(items)
	}
	sort.Strings(catalog.categories)

	log.Info().
		Int("categories", len(catalog.categories)).
		Int("entries", total).
		Str("path", path).
		Msg("Loaded knowledge base")
	return catalog
}

// Categories returns the category names in iteration order.
func (c *Catalog) Categories() []string {
	return c.categories
}

// Len returns the total number of stored entries.
func (c *Catalog) Len() int {
	n := 0
	for _, items := range c.items {
		n += len(items)
	}
	return n
}
