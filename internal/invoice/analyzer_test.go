package invoice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/pkg/models"
)

func mustDoc(t *testing.T, raw string) document.Value {
	t.Helper()
	doc, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

// sampleInvoice is a trimmed but structurally faithful invoice document:
// process metadata, one consumption line, usage and basic billing lines
// with nested levy details, and an explicit cost block.
const sampleInvoice = `{
	"ProzessDaten": {
		"ProzessDatenElement": {
			"invoiceNumber": "R-2025-001",
			"invoiceDate": "15.02.2025",
			"invoiceAmount": 142.80,
			"netInvoiceAmount": 120.00,
			"taxAmount": 22.80,
			"bonus": -10.00,
			"invoicePeriodFrom": "01.01.2025",
			"invoicePeriodTo": "31.01.2025",
			"currentBasePrice": 119.00,
			"Geschaeftspartner": {
				"GeschaeftspartnerElement": {
					"salutation": "Frau",
					"firstName": "Anna",
					"name": "Schmidt",
					"customerNumber": "KD-1001"
				}
			}
		}
	},
	"Abrechnungsmengen": {
		"AbrechnungsmengenElement": [
			{"consumption": 500, "dateFrom": "01.01.2025", "dateTo": "31.01.2025"}
		]
	},
	"Abrechnungspositionen": {
		"AbrechnungspositionenElement": [
			{
				"name": "Arbeitspreis HT",
				"priceType": "USAGE_RATE",
				"price": 0.10,
				"amount": 50.00,
				"dateFrom": "01.01.2025",
				"dateTo": "31.01.2025",
				"Abrechnungspositionen-Detailliert": {
					"Abrechnungspositionen-DetailliertElement": [
						{"name": "KWKG-Umlage-Anteil", "priceType": "USAGE_RATE", "price": 0.003},
						{"name": "Stromsteuer", "priceType": "USAGE_RATE", "price": 0.0205},
						{"name": "Konzessionsabgabe", "priceType": "USAGE_RATE", "price": 0.0132},
						{"name": "Sonderposten", "priceType": "USAGE_RATE", "price": 0.01}
					]
				}
			},
			{
				"name": "Grundkosten",
				"priceType": "BASIC_RATE",
				"amount": 100.00,
				"Abrechnungspositionen-Detailliert": {
					"Abrechnungspositionen-DetailliertElement": [
						{"name": "Messstellenbetrieb", "priceType": "BASIC_RATE", "amount": 20.00},
						{"name": "Netznutzung Grundanteil", "priceType": "BASIC_RATE", "amount": 35.00}
					]
				}
			}
		]
	},
	"Kostenblock": {
		"KostenblockElement": [
			{"printItemName": "Netz und Messung", "amount": 40.00, "percentageAmount": 28.0},
			{"printItemName": "Steuern und Umlagen", "amount": 45.00, "percentageAmount": 31.5},
			{"printItemName": "Beschaffung und Vertrieb", "amount": 57.80, "percentageAmount": 40.5}
		]
	}
}`

func TestAnalyze_IdentityAndAmounts(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	assert.Equal(t, "R-2025-001", facts.InvoiceNumber)
	assert.Equal(t, "15.02.2025", facts.InvoiceDate)
	assert.Equal(t, "Anna Schmidt", facts.CustomerName)
	assert.Equal(t, "Frau", facts.Salutation)
	assert.Equal(t, "KD-1001", facts.CustomerNumber)
	assert.Equal(t, 142.80, facts.GrossAmount)
	assert.Equal(t, -10.00, facts.BonusAmount)

	// Net + tax reconciles with gross within rounding tolerance when the
	// document supplies all three independently.
	assert.InDelta(t, facts.GrossAmount, facts.NetAmount+facts.TaxAmount, 0.01)
}

func TestAnalyze_ConsumptionRoundTrip(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	assert.Equal(t, 500.0, facts.TotalConsumption)
	assert.Equal(t, "01.01.2025", facts.PeriodFrom)
	assert.Equal(t, "31.01.2025", facts.PeriodTo)
	assert.False(t, facts.IsZeroConsumption)
}

func TestAnalyze_WorkingPriceSinglePeriod(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	require.Len(t, facts.WorkingPrices, 1)
	assert.False(t, facts.HasMultiplePeriods)
	assert.Equal(t, 0.10, facts.WorkingPrices[0].PricePerUnit)
	assert.InDelta(t, 10.0, facts.WorkingPrices[0].CentsPerUnit(), 1e-9)
}

func TestAnalyze_WorkingPriceMultiPeriod(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {"invoiceNumber": "R-2"}},
		"Abrechnungsmengen": {"AbrechnungsmengenElement": [
			{"consumption": 300, "dateFrom": "01.01.2025", "dateTo": "31.01.2025"},
			{"consumption": 250, "dateFrom": "01.02.2025", "dateTo": "28.02.2025"}
		]},
		"Abrechnungspositionen": {"AbrechnungspositionenElement": [
			{"name": "Arbeitspreis", "priceType": "USAGE_RATE", "price": 0.10,
			 "dateFrom": "01.01.2025", "dateTo": "31.01.2025"},
			{"name": "Arbeitspreis", "priceType": "USAGE_RATE", "price": 0.12,
			 "dateFrom": "01.02.2025", "dateTo": "28.02.2025"}
		]}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	// A mid-period tariff change surfaces every slice in order; rendering
	// only the first entry would misstate the tariff.
	require.Len(t, facts.WorkingPrices, 2)
	assert.True(t, facts.HasMultiplePeriods)
	assert.Equal(t, 0.10, facts.WorkingPrices[0].PricePerUnit)
	assert.Equal(t, 0.12, facts.WorkingPrices[1].PricePerUnit)
	assert.Equal(t, 550.0, facts.TotalConsumption)
}

func TestAnalyze_WorkingPriceFallbackToSnapshot(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {
			"currentWorkPrice": 32.5,
			"invoicePeriodFrom": "01.01.2025",
			"invoicePeriodTo": "31.01.2025"
		}}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	require.Len(t, facts.WorkingPrices, 1)
	assert.InDelta(t, 0.325, facts.WorkingPrices[0].PricePerUnit, 1e-9)
}

func TestAnalyze_BasePriceNetAndGrossStayDistinct(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	assert.Equal(t, 100.00, facts.BasePriceNet)
	assert.Equal(t, 119.00, facts.BasePriceGross)
}

func TestAnalyze_LevySubstringAttribution(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	// "KWKG-Umlage-Anteil" is a superstring of the KWKG keyword and must
	// land in the KWKG bucket; usage-rate details are monetized against
	// total consumption.
	assert.InDelta(t, 0.003*500, facts.Levies[models.LevyKWKG], 1e-9)
	assert.InDelta(t, 0.0205*500, facts.Levies[models.LevyElectricityTax], 1e-9)
	assert.InDelta(t, 0.0132*500, facts.Levies[models.LevyConcession], 1e-9)

	// Basic-rate details carry absolute amounts.
	assert.Equal(t, 20.00, facts.Levies[models.LevyMetering])
	assert.Equal(t, 35.00, facts.Levies[models.LevyGridUsage])

	// Unmatched names contribute to no bucket but every bucket exists.
	assert.Equal(t, 0.0, facts.Levies[models.LevyOffshore])
	assert.Len(t, facts.Levies, len(models.LevyNames))
}

func TestAnalyze_BreakdownFromCostBlocks(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, sampleInvoice))

	assert.Equal(t, 40.00, facts.Breakdown.GridAndMetering.Amount)
	assert.Equal(t, 28.0, facts.Breakdown.GridAndMetering.Percentage)
	assert.Equal(t, 45.00, facts.Breakdown.TaxesAndLevies.Amount)
	assert.Equal(t, 57.80, facts.Breakdown.EnergySupply.Amount)
	assert.Equal(t, -10.00, facts.Breakdown.BonusAmount)
}

func TestAnalyze_DerivedBreakdownWithoutCostBlock(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {
			"invoiceAmount": 200.0,
			"netInvoiceAmount": 168.07,
			"taxAmount": 31.93
		}},
		"Abrechnungsmengen": {"AbrechnungsmengenElement": [
			{"consumption": 1000, "dateFrom": "01.01.2025", "dateTo": "31.01.2025"}
		]},
		"Abrechnungspositionen": {"AbrechnungspositionenElement": [
			{
				"name": "Arbeitspreis", "priceType": "USAGE_RATE", "price": 0.10, "amount": 100.0,
				"Abrechnungspositionen-Detailliert": {
					"Abrechnungspositionen-DetailliertElement": [
						{"name": "Stromsteuer", "priceType": "USAGE_RATE", "price": 0.0205},
						{"name": "Netznutzung", "priceType": "USAGE_RATE", "price": 0.07}
					]
				}
			}
		]}
	}`)
	analyzer := NewAnalyzer()
	facts := analyzer.Analyze(doc)

	grid := facts.Breakdown.GridAndMetering
	taxes := facts.Breakdown.TaxesAndLevies
	supply := facts.Breakdown.EnergySupply

	assert.InDelta(t, 70.0, grid.Amount, 1e-9)                // 0.07 * 1000
	assert.InDelta(t, 20.5+31.93, taxes.Amount, 1e-9)         // electricity tax levy + VAT
	assert.InDelta(t, 168.07-70.0-20.5, supply.Amount, 1e-9)  // net minus grid minus levies
	assert.InDelta(t, 35.0, grid.Percentage, 1e-9)            // of gross 200

	// Both computation paths are available; the derived one matches what
	// Analyze chose since the document has no cost block.
	derived := analyzer.DerivedBreakdown(facts)
	assert.Equal(t, facts.Breakdown, derived)
	_, ok := analyzer.BreakdownFromCostBlocks(doc, facts)
	assert.False(t, ok)
}

func TestAnalyze_ZeroConsumptionBill(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {
			"invoiceNumber": "R-SETUP",
			"invoiceAmount": 25.0,
			"invoicePeriodFrom": "01.03.2025",
			"invoicePeriodTo": "15.03.2025"
		}},
		"Abrechnungsmengen": {"AbrechnungsmengenElement": [
			{"consumption": 0, "dateFrom": "01.03.2025", "dateTo": "15.03.2025"}
		]},
		"Abrechnungspositionen": {"AbrechnungspositionenElement": [
			{"name": "Grundkosten", "priceType": "BASIC_RATE", "amount": 25.0}
		]}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	assert.True(t, facts.IsZeroConsumption)
	require.NotEmpty(t, facts.Anomalies)
	kinds := anomalyKinds(facts)
	assert.Contains(t, kinds, models.AnomalyZeroConsumption)
	assert.NotContains(t, kinds, models.AnomalyZeroUsageCharges)
}

func TestAnalyze_ZeroUsageChargesWithConsumption(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {"invoiceNumber": "R-PRE"}},
		"Abrechnungsmengen": {"AbrechnungsmengenElement": [
			{"consumption": 400, "dateFrom": "01.01.2025", "dateTo": "31.01.2025"}
		]},
		"Abrechnungspositionen": {"AbrechnungspositionenElement": [
			{"name": "Arbeitspreis", "priceType": "USAGE_RATE", "price": 0.1, "amount": 0}
		]}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	// Prepayment-covered usage is a different condition from a
	// zero-consumption setup bill.
	kinds := anomalyKinds(facts)
	assert.Contains(t, kinds, models.AnomalyZeroUsageCharges)
	assert.NotContains(t, kinds, models.AnomalyZeroConsumption)
}

func TestAnalyze_HighBasicCharge(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {"invoiceNumber": "R-HB"}},
		"Abrechnungsmengen": {"AbrechnungsmengenElement": [
			{"consumption": 100, "dateFrom": "01.01.2025", "dateTo": "31.01.2025"}
		]},
		"Abrechnungspositionen": {"AbrechnungspositionenElement": [
			{"name": "Grundkosten", "priceType": "BASIC_RATE", "amount": 150.0},
			{"name": "Arbeitspreis", "priceType": "USAGE_RATE", "price": 0.1, "amount": 10.0}
		]}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	kinds := anomalyKinds(facts)
	require.Contains(t, kinds, models.AnomalyHighBasicCharge)
	for _, a := range facts.Anomalies {
		if a.Kind == models.AnomalyHighBasicCharge {
			assert.Equal(t, 150.0, a.Amount)
		}
	}
}

func TestAnalyze_EmptyDocumentIsBestEffort(t *testing.T) {
	facts := NewAnalyzer().Analyze(mustDoc(t, `{}`))

	assert.Equal(t, "", facts.InvoiceNumber)
	assert.Equal(t, 0.0, facts.GrossAmount)
	assert.True(t, facts.IsZeroConsumption)
	assert.Contains(t, anomalyKinds(facts), models.AnomalyIncompleteDocument)
	// Every levy bucket defaults to zero rather than being absent.
	for _, name := range models.LevyNames {
		v, ok := facts.Levies[name]
		assert.True(t, ok)
		assert.Equal(t, 0.0, v)
	}
}

func TestAnalyze_DiscrepancyPreserved(t *testing.T) {
	doc := mustDoc(t, `{
		"ProzessDaten": {"ProzessDatenElement": {
			"invoiceAmount": 150.0,
			"netInvoiceAmount": 100.0,
			"taxAmount": 19.0
		}}
	}`)
	facts := NewAnalyzer().Analyze(doc)

	// A source document whose totals do not reconcile keeps its numbers;
	// the analyzer never corrects them.
	assert.Equal(t, 150.0, facts.GrossAmount)
	assert.Greater(t, math.Abs(facts.GrossAmount-(facts.NetAmount+facts.TaxAmount)), 0.01)
}

func anomalyKinds(facts models.InvoiceFacts) []models.AnomalyKind {
	kinds := make([]models.AnomalyKind, 0, len(facts.Anomalies))
	for _, a := range facts.Anomalies {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}
