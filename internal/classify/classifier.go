// Package classify maps free-text customer queries to an intent and a
// response-shape configuration.
//
// Classification is a pure function over the query text: case-insensitive,
// bilingual (every rule exists in an English and a German form) and
// resolved by a fixed evaluation order with no scoring. A query matching
// several rule groups always lands in the first matching group, which keeps
// the classifier deterministic and cheap enough to run on every turn.
package classify

import (
	"regexp"
	"strings"
)

// Intent tags a query with the kind of answer it expects.
type Intent string

const (
	IntentGreeting             Intent = "greeting"
	IntentSimpleFact           Intent = "simple_fact"
	IntentCalculation          Intent = "calculation"
	IntentComparison           Intent = "comparison"
	IntentExplanation          Intent = "explanation"
	IntentRegulatory           Intent = "regulatory"
	IntentTroubleshooting      Intent = "troubleshooting"
	IntentNavigation           Intent = "navigation"
	IntentIdentifierValidation Intent = "identifier_validation"
)

// Verbosity controls how long the generated answer may be.
type Verbosity string

const (
	VerbosityBrief    Verbosity = "brief"
	VerbosityModerate Verbosity = "moderate"
	VerbosityDetailed Verbosity = "detailed"
)

// MaxTokens returns the response token budget handed to the text generator.
func (v Verbosity) MaxTokens() int {
	switch v {
	case VerbosityBrief:
		return 300
	case VerbosityDetailed:
		return 1200
	default:
		return 600
	}
}

// ResponseShape configures how the answer is rendered.
type ResponseShape struct {
	Verbosity                Verbosity `json:"conciseness_level"`
	IncludeRegulatoryContext bool      `json:"regulatory_context"`
	DetailedCalculation      bool      `json:"detailed_calculation"`
	Personalized             bool      `json:"personalized"`
}

// greetings are matched as whole words (single terms) or substrings
// (multi-word phrases) so "higher than last time" never reads as "hi".
var greetings = []string{
	"hi", "hello", "hey",
	"good morning", "good afternoon", "good evening",
	"hallo", "guten morgen", "guten abend", "servus", "grüß gott",
}

var (
	explanationPatterns = compile(
		`what is|was ist`,
		`what does .*mean|was bedeutet`,
		`definition|bedeutung`,
		`(explain|erkläre)\s+(the|what|was|den|die|das)\b`,
	)
	navigationPatterns = compile(
		`where.*find|wo.*finde`,
		`location.*invoice|stelle.*rechnung`,
		`section.*invoice|abschnitt.*rechnung`,
		`how.*navigate|wie.*navigiere`,
	)
	simpleFactPatterns = compile(
		`(total|gesamt).*(consumption|verbrauch)`,
		`invoice.*amount|rechnungsbetrag`,
		`customer.*number|kundennummer`,
		`how much.*did i (use|consume)|wieviel.*verbraucht`,
		`kosten.*aufschlüsseln|breakdown.*cost`,
	)
	calculationPatterns = compile(
		`how.*calculated|calculation|berechnung|aufschlüsselung`,
		`why.*cost|warum.*kostet`,
		`breakdown`,
		`explain.*charge|erkläre.*gebühr`,
		`show.*detail|zeige.*detail`,
	)
	comparisonPatterns = compile(
		`compared? to|verglichen mit|unterschied`,
		`last.*bill|letzte.*rechnung`,
		`average|durchschnitt`,
		`higher|lower|höher|niedriger`,
		`why.*bill.*increase|warum.*rechnung.*gestiegen`,
	)

	briefKeywords    = []string{"how much", "total", "amount", "consumption", "wieviel"}
	detailedKeywords = []string{"explain", "detail", "breakdown", "why", "understand", "erkläre", "aufschlüsseln"}

	wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Classifier is stateless; a single instance may serve concurrent turns.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps a query to its intent and response shape. History is the
// caller-supplied conversation so far; the current rule set does not
// consult it, the parameter fixes the contract so richer rules can without
// breaking callers.
func (c *Classifier) Classify(query string, history []string) (Intent, ResponseShape) {
	_ = history
	q := strings.ToLower(strings.TrimSpace(query))

	// Conciseness is computed once up front and inherited by the branches
	// that do not hardcode their own verbosity.
	conciseness := concisenessLevel(q)

	if isGreeting(q) {
		return IntentGreeting, ResponseShape{
			Verbosity:    VerbosityBrief,
			Personalized: true,
		}
	}
	if matchAny(explanationPatterns, q) {
		return IntentExplanation, ResponseShape{
			Verbosity:                VerbosityModerate,
			IncludeRegulatoryContext: true,
			Personalized:             true,
		}
	}
	if matchAny(navigationPatterns, q) {
		return IntentNavigation, ResponseShape{
			Verbosity:    VerbosityModerate,
			Personalized: true,
		}
	}
	if matchAny(simpleFactPatterns, q) {
		return IntentSimpleFact, ResponseShape{
			Verbosity:    conciseness,
			Personalized: true,
		}
	}
	if matchAny(calculationPatterns, q) {
		return IntentCalculation, ResponseShape{
			Verbosity:           VerbosityModerate,
			DetailedCalculation: true,
			Personalized:        true,
		}
	}
	if matchAny(comparisonPatterns, q) {
		return IntentComparison, ResponseShape{
			Verbosity:    VerbosityModerate,
			Personalized: true,
		}
	}
	return IntentExplanation, ResponseShape{
		Verbosity:    conciseness,
		Personalized: true,
	}
}

func concisenessLevel(q string) Verbosity {
	words := wordSplit.Split(q, -1)
	count := 0
	for _, w := range words {
		if w != "" {
			count++
		}
	}
	if count <= 5 || containsAny(q, briefKeywords) {
		return VerbosityBrief
	}
	if containsAny(q, detailedKeywords) {
		return VerbosityDetailed
	}
	return VerbosityModerate
}

func isGreeting(q string) bool {
	tokens := map[string]bool{}
	for _, w := range wordSplit.Split(q, -1) {
		if w != "" {
			tokens[w] = true
		}
	}
	for _, g := range greetings {
		if strings.Contains(g, " ") {
			if strings.Contains(q, g) {
				return true
			}
		} else if tokens[g] {
			return true
		}
	}
	return false
}

func matchAny(patterns []*regexp.Regexp, q string) bool {
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

func containsAny(q string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}
