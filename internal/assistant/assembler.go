// Package assistant orchestrates one conversational turn: resolve the
// invoice record, extract facts, classify the query, optionally compare
// against the previous billing period, compose the generator instruction
// and produce the final answer plus a structured payload.
//
// Every failure mode is recovered into a localized user-facing sentence.
// Internal error text never reaches the end user; it goes to the log.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0-uddeshya-0/klarbill/internal/classify"
	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/invoice"
	"github.com/0-uddeshya-0/klarbill/internal/knowledge"
	"github.com/0-uddeshya-0/klarbill/internal/llm"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/internal/prompt"
	"github.com/0-uddeshya-0/klarbill/internal/store"
	"github.com/0-uddeshya-0/klarbill/pkg/models"
)

// generationTemperature keeps answers factual. The prompt carries every
// number the generator may use, so creativity only invites drift.
const generationTemperature = 0.1

// maxKnowledgeEntries is how many canned Q&A candidates the retriever is
// asked for per turn.
const maxKnowledgeEntries = 3

// Request is one conversational turn as received from the caller.
// History carries the session's prior queries; the assembler itself holds
// no session state.
type Request struct {
	Query          string
	Language       string // "en" or "de", anything else falls back to "en"
	CustomerNumber string
	InvoiceNumber  string
	History        []string
}

// TariffInfo is the tariff slice of the structured payload.
type TariffInfo struct {
	WorkingPriceEuroPerKWh float64               `json:"working_price_euro_per_kwh"`
	WorkingPriceCtPerKWh   float64               `json:"working_price_ct_per_kwh"`
	WorkingPricePeriods    []models.TariffPeriod `json:"working_price_periods,omitempty"`
	BasePriceNetPerYear    float64               `json:"base_price_net_per_year"`
	BasePriceGrossPerYear  float64               `json:"base_price_gross_per_year"`
}

// Structured is the machine-readable half of an answer. Calling UIs keep
// working off these facts even when prose generation fails.
type Structured struct {
	CustomerName      string                   `json:"customer_name"`
	Salutation        string                   `json:"salutation"`
	Consumption       float64                  `json:"consumption"`
	ConsumptionPeriod string                   `json:"consumption_period"`
	InvoiceAmount     float64                  `json:"invoice_amount"`
	NetAmount         float64                  `json:"net_amount"`
	TaxAmount         float64                  `json:"tax_amount"`
	Bonus             float64                  `json:"bonus"`
	InvoiceNumber     string                   `json:"invoice_number"`
	CostBreakdown     models.CostBreakdown     `json:"cost_breakdown"`
	Tariff            TariffInfo               `json:"tariff_info"`
	SpecificLevies    map[string]float64       `json:"specific_levies"`
	IsZeroConsumption bool                     `json:"is_zero_consumption"`
	UnusualCharges    []models.Anomaly         `json:"unusual_charges"`
	QueryType         classify.Intent          `json:"query_type"`
	ResponseFormat    classify.ResponseShape   `json:"response_format"`
	KnowledgeCategory string                   `json:"knowledge_base_category"`
	Language          string                   `json:"language"`
	Comparison        *models.ComparisonResult `json:"comparison,omitempty"`
}

// Response is the outcome of one turn.
type Response struct {
	Text               string
	Structured         *Structured
	NeedsInvoiceNumber bool
	InvoiceSuggestions []string
	Failed             bool // Turn recovered into a canned message
}

// messages holds the localized canned sentences, keyed by language.
var messages = map[string]map[string]string{
	"en": {
		"not_found":    "I couldn't find your invoice data. Could you please verify your customer or invoice number?",
		"inaccessible": "I couldn't access your invoice details. Please try again.",
		"apology":      "I encountered an issue processing your request. Please try again.",
	},
	"de": {
		"not_found":    "Ich konnte Ihre Rechnungsdaten nicht finden. Bitte überprüfen Sie Ihre Kunden- oder Rechnungsnummer.",
		"inaccessible": "Ich konnte nicht auf Ihre Rechnungsdetails zugreifen. Bitte versuchen Sie es erneut.",
		"apology":      "Es gab ein Problem bei der Verarbeitung Ihrer Anfrage. Bitte versuchen Sie es erneut.",
	},
}

func message(language, key string) string {
	return messages[language][key]
}

func selectionMessage(language string, count int) string {
	if language == "de" {
		return fmt.Sprintf("Ich habe %d Rechnungen für Ihr Konto gefunden. Bitte wählen Sie eine Rechnung aus:", count)
	}
	return fmt.Sprintf("I found %d invoices for your account. Please specify which invoice you'd like me to analyze:", count)
}

// Assembler wires the pipeline components into one turn handler. All
// components are stateless, so one Assembler serves concurrent requests.
type Assembler struct {
	store      store.InvoiceStore
	analyzer   *invoice.Analyzer
	comparator *invoice.Comparator
	classifier *classify.Classifier
	retriever  *knowledge.Retriever
	composer   *prompt.Composer
	generator  llm.TextGenerator
	log        zerolog.Logger
}

// NewAssembler creates an Assembler over the given collaborators.
func NewAssembler(invoices store.InvoiceStore, retriever *knowledge.Retriever, generator llm.TextGenerator) *Assembler {
	analyzer := invoice.NewAnalyzer()
	return &Assembler{
		store:      invoices,
		analyzer:   analyzer,
		comparator: invoice.NewComparator(analyzer),
		classifier: classify.NewClassifier(),
		retriever:  retriever,
		composer:   prompt.NewComposer(),
		generator:  generator,
		log:        logger.WithComponent("assistant"),
	}
}

// Answer runs one conversational turn. It never returns an error to the
// caller; failures are folded into localized canned responses.
func (a *Assembler) Answer(ctx context.Context, req Request) Response {
	language := normalizeLanguage(req.Language)
	log := a.log.With().Str("request_id", uuid.NewString()).Logger()

	records, err := a.store.Lookup(ctx, req.CustomerNumber, req.InvoiceNumber)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Invoice store lookup failed")
		}
		return Response{Text: message(language, "not_found"), Failed: true}
	}

	if len(records) > 1 && req.InvoiceNumber == "" {
		suggestions := make([]string, 0, len(records))
		for _, r := range records {
			suggestions = append(suggestions, r.InvoiceNumber)
		}
		log.Info().
			Str("customer_number", req.CustomerNumber).
			Int("invoice_count", len(suggestions)).
			Msg("Multiple invoices, requesting disambiguation")
		return Response{
			Text:               selectionMessage(language, len(suggestions)),
			NeedsInvoiceNumber: true,
			InvoiceSuggestions: suggestions,
		}
	}

	doc := records[0].Doc.Get("Data")
	if doc.IsNil() {
		log.Warn().Str("record_id", records[0].ID).Msg("Record carries no invoice data")
		return Response{Text: message(language, "inaccessible"), Failed: true}
	}

	facts := a.analyzer.Analyze(doc)
	intent, shape := a.classifier.Classify(req.Query, req.History)

	var comparison *models.ComparisonResult
	if intent == classify.IntentComparison {
		comparison = a.compare(ctx, log, facts, req, records)
	}

	entries := a.retriever.FindRelevant(req.Query, language, maxKnowledgeEntries)
	instruction := a.composer.Compose(req.Query, facts, intent, shape, language, comparison, entries)

	structured := a.structured(req.Query, facts, intent, shape, language, comparison)

	text, err := a.generator.Generate(ctx, instruction, shape.Verbosity.MaxTokens(), generationTemperature)
	if err != nil {
		log.Error().Err(err).Str("intent", string(intent)).Msg("Text generation failed")
		return Response{Text: message(language, "apology"), Structured: structured, Failed: true}
	}

	log.Info().
		Str("intent", string(intent)).
		Str("verbosity", string(shape.Verbosity)).
		Str("invoice_number", facts.InvoiceNumber).
		Bool("compared", comparison != nil && comparison.Found).
		Msg("Answered query")

	return Response{Text: text, Structured: structured}
}

// compare fetches the customer's full invoice set and runs the
// period-over-period comparison. A store failure here degrades to "no
// comparison" instead of failing the turn.
func (a *Assembler) compare(ctx context.Context, log zerolog.Logger, facts models.InvoiceFacts, req Request, resolved []store.Record) *models.ComparisonResult {
	customerNumber := req.CustomerNumber
	if customerNumber == "" {
		customerNumber = resolved[0].CustomerNumber
	}

	records := resolved
	if customerNumber != "" {
		all, err := a.store.AllForCustomer(ctx, customerNumber)
		if err != nil {
			log.Warn().Err(err).Msg("Fetching customer invoices for comparison failed")
		} else {
			records = all
		}
	}

	docs := make(map[string]document.Value, len(records))
	for _, r := range records {
		docs[r.ID] = r.Doc
	}
	result := a.comparator.Compare(facts, docs)
	return &result
}

func (a *Assembler) structured(query string, facts models.InvoiceFacts, intent classify.Intent, shape classify.ResponseShape, language string, comparison *models.ComparisonResult) *Structured {
	tariff := TariffInfo{
		BasePriceNetPerYear:   facts.BasePriceNet,
		BasePriceGrossPerYear: facts.BasePriceGross,
	}
	if len(facts.WorkingPrices) > 0 {
		tariff.WorkingPriceEuroPerKWh = facts.WorkingPrices[0].PricePerUnit
		tariff.WorkingPriceCtPerKWh = facts.WorkingPrices[0].CentsPerUnit()
	}
	if facts.HasMultiplePeriods {
		tariff.WorkingPricePeriods = facts.WorkingPrices
	}

	return &Structured{
		CustomerName:      facts.CustomerName,
		Salutation:        facts.Salutation,
		Consumption:       facts.TotalConsumption,
		ConsumptionPeriod: fmt.Sprintf("%s to %s", facts.PeriodFrom, facts.PeriodTo),
		InvoiceAmount:     facts.GrossAmount,
		NetAmount:         facts.NetAmount,
		TaxAmount:         facts.TaxAmount,
		Bonus:             facts.BonusAmount,
		InvoiceNumber:     facts.InvoiceNumber,
		CostBreakdown:     facts.Breakdown,
		Tariff:            tariff,
		SpecificLevies:    facts.Levies,
		IsZeroConsumption: facts.IsZeroConsumption,
		UnusualCharges:    facts.Anomalies,
		QueryType:         intent,
		ResponseFormat:    shape,
		KnowledgeCategory: a.retriever.PrimaryCategory(query),
		Language:          language,
		Comparison:        comparison,
	}
}

// Greeting resolves a localized salutation line for the identified
// customer. Invoice number wins over customer number; no match yields
// empty strings, never an error.
func (a *Assembler) Greeting(ctx context.Context, customerNumber, invoiceNumber, language string) (greeting, matchType string) {
	language = normalizeLanguage(language)

	var records []store.Record
	var err error
	if invoiceNumber != "" {
		if records, err = a.store.Lookup(ctx, "", invoiceNumber); err == nil {
			matchType = "invoice"
		}
	}
	if len(records) == 0 && customerNumber != "" {
		if records, err = a.store.Lookup(ctx, customerNumber, ""); err == nil {
			matchType = "customer"
		}
	}
	if len(records) == 0 {
		return "", ""
	}

	partner := records[0].Doc.Get("Data", "ProzessDaten", "ProzessDatenElement", "Geschaeftspartner", "GeschaeftspartnerElement")
	name := partner.StringField("name")
	if name == "" {
		return "", ""
	}
	salutation := prompt.LocalizeSalutation(partner.StringField("salutation"), language)
	return fmt.Sprintf("%s %s!", salutation, name), matchType
}

// StoreHealth reports whether the invoice store is reachable.
func (a *Assembler) StoreHealth(ctx context.Context) error {
	return a.store.Health(ctx)
}

// GeneratorReady reports whether a text generator is configured.
func (a *Assembler) GeneratorReady() bool {
	return a.generator != nil
}

func normalizeLanguage(language string) string {
	if language == "de" {
		return "de"
	}
	return "en"
}
