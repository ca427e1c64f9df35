package knowledge

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

// categoryKeywords routes a query to its most likely catalog category.
// Scoring: +2 per keyword substring hit, +5 when the category name itself
// (underscores as spaces) appears in the query.
var categoryKeywords = map[string][]string{
	"invoice_structure":           {"where", "find", "section", "invoice structure", "malo-id", "obis", "locate"},
	"consumption":                 {"consumption", "usage", "kwh", "meter reading", "estimate", "verbrauch"},
	"pricing_components":          {"price", "cost", "charge", "fee", "component", "breakdown", "tariff", "konzessionsabgabe", "netzentgelt", "stromsteuer"},
	"payments_advances":           {"payment", "advance", "installment", "abschlag", "prepayment", "verpasse", "miss"},
	"payments_credits":            {"credit", "balance", "refund", "guthaben"},
	"late_billing":                {"late", "delayed", "overdue", "verspätet"},
	"regulatory_changes":          {"regulation", "law", "changes", "eeg", "reform"},
	"contract_terms":              {"contract", "term", "agreement", "vertrag"},
	"disputes_complaints":         {"dispute", "complaint", "wrong", "error", "fehler"},
	"calculations_examples":       {"calculate", "formula", "example", "berechnung"},
	"bonuses_discounts":           {"bonus", "discount", "neukunden", "cashback", "rabatt"},
	"meter_operations":            {"meter", "reading", "zähler", "ablesung"},
	"energy_efficiency":           {"efficiency", "save", "reduce", "sparen"},
	"green_energy_options":        {"green", "renewable", "ökostrom", "solar"},
	"taxes_and_vat":               {"tax", "vat", "mwst", "steuer"},
	"special_customer_situations": {"move", "umzug", "special", "hardship"},
	"consumer_rights":             {"rights", "protection", "verbraucherschutz"},
	"dispute_resolution":          {"resolution", "mediation", "schlichtung"},
	"energy_transition":           {"transition", "energiewende", "future"},
	"comparisons_graphs":          {"graph", "chart", "compare", "vergleich"},
	"energy_price_brake":          {"price brake", "preisbremse", "cap", "relief"},
}

// sortedKeywordCategories fixes the tie-break order for category routing.
var sortedKeywordCategories = func() []string {
	names := make([]string, 0, len(categoryKeywords))
	for name := range categoryKeywords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// highValueTerm gets a flat ranking boost when present in both the query
// and a candidate entry; customers asking about this levy nearly always
// want its dedicated canned answer.
const highValueTerm = "konzessionsabgabe"

// fallbackCategory is used when no category scores above zero.
const fallbackCategory = "miscellaneous"

// cacheSize bounds the retriever's result cache.
const cacheSize = 256

// Retriever ranks catalog entries against customer queries. Ranked lists
// are cached in a bounded LRU keyed by (query, language); truncation to the
// caller's max happens after the cache, so a larger max never reorders the
// prefix a smaller max already returned.
type Retriever struct {
	catalog *Catalog
	cache   *lru.Cache[string, []Entry]
	log     zerolog.Logger
}

// NewRetriever creates a Retriever over the given catalog.
func NewRetriever(catalog *Catalog) *Retriever {
	cache, _ := lru.New[string, []Entry](cacheSize)
	return &Retriever{
		catalog: catalog,
		cache:   cache,
		log:     logger.WithComponent("knowledge-retriever"),
	}
}

// PrimaryCategory scores every known category against the query and returns
// the best match, or the miscellaneous fallback when nothing scores.
func (r *Retriever) PrimaryCategory(query string) string {
	q := strings.ToLower(query)
	best := fallbackCategory
	bestScore := 0
	for _, category := range sortedKeywordCategories {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(q, keyword) {
				score += 2
			}
		}
		if strings.Contains(q, strings.ReplaceAll(category, "_", " ")) {
			score += 5
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}

// FindRelevant returns up to maxItems catalog entries ranked by relevance
// to the query, in the requested language only.
func (r *Retriever) FindRelevant(query, language string, maxItems int) []Entry {
	if maxItems <= 0 {
		return nil
	}
	key := query + "\x00" + language
	ranked, ok := r.cache.Get(key)
	if !ok {
		ranked = r.rank(query, language)
		r.cache.Add(key, ranked)
	}
	if len(ranked) > maxItems {
		ranked = ranked[:maxItems]
	}
	// Copy so callers never alias the cached slice.
	out := make([]Entry, len(ranked))
	copy(out, ranked)
	return out
}

// rank builds the full ranked list: the primary category with the strict
// overlap threshold, then every other category with the looser backfill
// threshold, merged and sorted by score. Computing the backfill
// unconditionally keeps the ordering independent of the caller's max.
func (r *Retriever) rank(query, language string) []Entry {
	q := strings.ToLower(query)
	queryWords := wordSet(q)
	primary := r.PrimaryCategory(query)

	var entries []Entry
	for _, item := range r.catalog.items[primary] {
		entry, ok := r.scoreItem(item, primary, q, queryWords, language, 2)
		if !ok {
			continue
		}
		if entry.Score > 3 {
			entry.Relevance = "high"
		} else {
			entry.Relevance = "medium"
		}
		entries = append(entries, entry)
	}

	for _, category := range r.catalog.categories {
		if category == primary {
			continue
		}
		for _, item := range r.catalog.items[category] {
			entry, ok := r.scoreItem(item, category, q, queryWords, language, 1)
			if !ok {
				continue
			}
			if entry.Score > 2 {
				entry.Relevance = "medium"
			} else {
				entry.Relevance = "low"
			}
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	r.log.Debug().
		Str("primary_category", primary).
		Str("language", language).
		Int("candidates", len(entries)).
		Msg("Ranked knowledge base entries")
	return entries
}

// scoreItem computes the word-overlap score for one stored item and keeps
// it when the overlap exceeds minOverlap. Items without a translation for
// the requested language are skipped.
func (r *Retriever) scoreItem(item catalogItem, category, q string, queryWords map[string]bool, language string, minOverlap int) (Entry, bool) {
	input, response, ok := item.text(language)
	if !ok {
		return Entry{}, false
	}
	inputLower := strings.ToLower(input)
	overlap := 0
	for word := range wordSet(inputLower) {
		if queryWords[word] {
			overlap++
		}
	}
	if strings.Contains(q, highValueTerm) && strings.Contains(inputLower, highValueTerm) {
		overlap += 10
	}
	if overlap <= minOverlap {
		return Entry{}, false
	}
	return Entry{
		Category: category,
		Query:    input,
		Response: response,
		Score:    overlap,
	}, true
}

func wordSet(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(s) {
		if w != "" {
			words[w] = true
		}
	}
	return words
}
