package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0-uddeshya-0/klarbill/internal/classify"
	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/knowledge"
	"github.com/0-uddeshya-0/klarbill/internal/store"
)

// stubGenerator records the last instruction and returns a fixed answer
// or a failure.
type stubGenerator struct {
	answer          string
	err             error
	lastInstruction string
	lastMaxTokens   int
	lastTemperature float32
}

func (g *stubGenerator) Generate(_ context.Context, instruction string, maxTokens int, temperature float32) (string, error) {
	g.lastInstruction = instruction
	g.lastMaxTokens = maxTokens
	g.lastTemperature = temperature
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func invoiceRecord(number, date string, amount, consumption float64) string {
	return fmt.Sprintf(`{
		"Data": {
			"ProzessDaten": {
				"ProzessDatenElement": {
					"invoiceNumber": %q,
					"invoiceDate": %q,
					"invoiceAmount": %.2f,
					"netInvoiceAmount": %.2f,
					"taxAmount": %.2f,
					"bonus": 0,
					"consumption": %.0f,
					"invoicePeriodFrom": "01.01.2025",
					"invoicePeriodTo": "31.01.2025",
					"currentWorkPrice": 32.0,
					"currentBasePrice": 119.0,
					"Geschaeftspartner": {
						"GeschaeftspartnerElement": {
							"customerNumber": "K-1001",
							"salutation": "Herr",
							"firstName": "Max",
							"name": "Mustermann"
						}
					}
				}
			},
			"Abrechnungsmengen": {
				"AbrechnungsmengenElement": {
					"consumption": %.0f,
					"dateFrom": "01.01.2025",
					"dateTo": "31.01.2025"
				}
			}
		}
	}`, number, date, amount, amount/1.19, amount-amount/1.19, consumption, consumption)
}

func seededStore(t *testing.T, records map[string]string) *store.MemoryStore {
	t.Helper()
	m := store.NewMemoryStore()
	for id, raw := range records {
		doc, err := document.Parse([]byte(raw))
		require.NoError(t, err)
		require.NoError(t, m.Put(context.Background(), id, doc))
	}
	return m
}

func newAssembler(t *testing.T, records map[string]string, gen *stubGenerator) *Assembler {
	t.Helper()
	retriever := knowledge.NewRetriever(knowledge.Load("testdata/does-not-exist.json"))
	return NewAssembler(seededStore(t, records), retriever, gen)
}

func TestAnswerSingleInvoice(t *testing.T) {
	gen := &stubGenerator{answer: "You used 500 kWh in January."}
	a := newAssembler(t, map[string]string{
		"rec-1": invoiceRecord("R-2025-001", "31.01.2025", 142.80, 500),
	}, gen)

	resp := a.Answer(context.Background(), Request{
		Query:          "How much electricity did I use?",
		Language:       "en",
		CustomerNumber: "K-1001",
	})

	assert.False(t, resp.Failed)
	assert.Equal(t, "You used 500 kWh in January.", resp.Text)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, "Max Mustermann", resp.Structured.CustomerName)
	assert.Equal(t, "R-2025-001", resp.Structured.InvoiceNumber)
	assert.InDelta(t, 500, resp.Structured.Consumption, 0.001)
	assert.Equal(t, classify.IntentSimpleFact, resp.Structured.QueryType)
	assert.Equal(t, "01.01.2025 to 31.01.2025", resp.Structured.ConsumptionPeriod)

	assert.Contains(t, gen.lastInstruction, "CUSTOMER: Mr. Max Mustermann")
	assert.Contains(t, gen.lastInstruction, "QUERY: How much electricity did I use?")
	assert.Equal(t, 300, gen.lastMaxTokens)
	assert.InDelta(t, 0.1, float64(gen.lastTemperature), 0.001)
}

func TestAnswerNotFoundLocalized(t *testing.T) {
	gen := &stubGenerator{answer: "unused"}
	a := newAssembler(t, nil, gen)

	resp := a.Answer(context.Background(), Request{
		Query:          "How much did I pay?",
		Language:       "de",
		CustomerNumber: "K-9999",
	})

	assert.True(t, resp.Failed)
	assert.Contains(t, resp.Text, "Ich konnte Ihre Rechnungsdaten nicht finden")
	assert.Nil(t, resp.Structured)
	assert.Empty(t, gen.lastInstruction)
}

func TestAnswerRequestsDisambiguation(t *testing.T) {
	gen := &stubGenerator{answer: "unused"}
	a := newAssembler(t, map[string]string{
		"rec-1": invoiceRecord("R-2025-001", "31.01.2025", 142.80, 500),
		"rec-2": invoiceRecord("R-2025-002", "28.02.2025", 150.00, 520),
	}, gen)

	resp := a.Answer(context.Background(), Request{
		Query:          "How much did I pay?",
		Language:       "en",
		CustomerNumber: "K-1001",
	})

	assert.True(t, resp.NeedsInvoiceNumber)
	assert.Equal(t, []string{"R-2025-001", "R-2025-002"}, resp.InvoiceSuggestions)
	assert.Contains(t, resp.Text, "I found 2 invoices")
	assert.Empty(t, gen.lastInstruction)

	// Pinning the invoice number resolves the ambiguity.
	resp = a.Answer(context.Background(), Request{
		Query:          "How much did I pay?",
		Language:       "en",
		CustomerNumber: "K-1001",
		InvoiceNumber:  "R-2025-002",
	})
	assert.False(t, resp.NeedsInvoiceNumber)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, "R-2025-002", resp.Structured.InvoiceNumber)
}

func TestAnswerComparisonFetchesAllInvoices(t *testing.T) {
	gen := &stubGenerator{answer: "Your bill went up because you used more."}
	a := newAssembler(t, map[string]string{
		"rec-1": invoiceRecord("R-2025-001", "31.01.2025", 120.00, 400),
		"rec-2": invoiceRecord("R-2025-002", "28.02.2025", 150.00, 520),
	}, gen)

	resp := a.Answer(context.Background(), Request{
		Query:          "Why is my bill higher than last month?",
		Language:       "en",
		CustomerNumber: "K-1001",
		InvoiceNumber:  "R-2025-002",
	})

	require.NotNil(t, resp.Structured)
	assert.Equal(t, classify.IntentComparison, resp.Structured.QueryType)
	require.NotNil(t, resp.Structured.Comparison)
	assert.True(t, resp.Structured.Comparison.Found)
	assert.Equal(t, "R-2025-001", resp.Structured.Comparison.PreviousInvoiceNumber)
	assert.InDelta(t, 30.00, resp.Structured.Comparison.AmountDelta, 0.01)
	assert.Contains(t, gen.lastInstruction, "COMPARISON DATA:")
}

func TestAnswerGeneratorFailureKeepsFacts(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream timeout")}
	a := newAssembler(t, map[string]string{
		"rec-1": invoiceRecord("R-2025-001", "31.01.2025", 142.80, 500),
	}, gen)

	resp := a.Answer(context.Background(), Request{
		Query:          "How much did I pay?",
		Language:       "en",
		CustomerNumber: "K-1001",
	})

	assert.True(t, resp.Failed)
	assert.Equal(t, "I encountered an issue processing your request. Please try again.", resp.Text)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, "R-2025-001", resp.Structured.InvoiceNumber)
	assert.NotContains(t, resp.Text, "upstream timeout")
}

func TestAnswerUnknownLanguageFallsBackToEnglish(t *testing.T) {
	gen := &stubGenerator{answer: "unused"}
	a := newAssembler(t, nil, gen)

	resp := a.Answer(context.Background(), Request{Query: "hello", Language: "fr"})
	assert.Contains(t, resp.Text, "I couldn't find your invoice data")
}

func TestGreeting(t *testing.T) {
	gen := &stubGenerator{answer: "unused"}
	a := newAssembler(t, map[string]string{
		"rec-1": invoiceRecord("R-2025-001", "31.01.2025", 142.80, 500),
	}, gen)
	ctx := context.Background()

	greeting, matchType := a.Greeting(ctx, "", "R-2025-001", "en")
	assert.Equal(t, "Mr. Mustermann!", greeting)
	assert.Equal(t, "invoice", matchType)

	greeting, matchType = a.Greeting(ctx, "K-1001", "", "de")
	assert.Equal(t, "Herr Mustermann!", greeting)
	assert.Equal(t, "customer", matchType)

	greeting, matchType = a.Greeting(ctx, "K-9999", "", "en")
	assert.Empty(t, greeting)
	assert.Empty(t, matchType)
}
