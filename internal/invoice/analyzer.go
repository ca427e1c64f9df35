// Package invoice turns raw nested invoice documents into canonical billing
// facts and compares invoices across billing periods.
//
// The analyzer is a total function over well-formed documents: missing
// optional fields default to zero or empty values instead of failing, and a
// document missing whole sections still yields best-effort facts flagged
// with an incomplete-document anomaly. Analysis is pure and stateless, so a
// single Analyzer may be shared across concurrent requests.
package invoice

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/pkg/models"
)

// Billing line price types as used by the source schema.
const (
	priceTypeBasic = "BASIC_RATE"
	priceTypeUsage = "USAGE_RATE"
)

// basicChargeThreshold is the basic-rate amount above which a line is
// flagged as unusually high.
const basicChargeThreshold = 100.0

// workingPriceName identifies the per-kWh price component among the usage
// billing lines.
const workingPriceName = "Arbeitspreis"

// basePriceName identifies the annual basic-rate billing line.
const basePriceName = "Grundkosten"

// levyKeywords attributes a detail line to a levy bucket by substring match
// against the German component name. A name matching no keyword contributes
// to no bucket; it stays in the raw totals only.
var levyKeywords = []struct {
	keyword string
	bucket  string
}{
	{"KWKG", models.LevyKWKG},
	{"Offshore", models.LevyOffshore},
	{"Konzession", models.LevyConcession},
	{"NEV", models.LevyNEV},
	{"Stromsteuer", models.LevyElectricityTax},
	{"Netznutzung", models.LevyGridUsage},
	{"Messstellen", models.LevyMetering},
	{"Messung", models.LevyMetering},
}

// Analyzer derives InvoiceFacts from raw invoice documents.
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		log: logger.WithComponent("invoice-analyzer"),
	}
}

// sections holds the document's repeated regions, split once per analysis
// the way every extraction step expects them.
type sections struct {
	process      document.Value
	partner      document.Value
	consumption  []document.Value
	billingItems []document.Value
	costBlocks   []document.Value
}

func splitSections(doc document.Value) sections {
	process := doc.Get("ProzessDaten", "ProzessDatenElement")
	return sections{
		process:      process,
		partner:      process.Get("Geschaeftspartner", "GeschaeftspartnerElement"),
		consumption:  doc.Get("Abrechnungsmengen", "AbrechnungsmengenElement").List(),
		billingItems: doc.Get("Abrechnungspositionen", "AbrechnungspositionenElement").List(),
		costBlocks:   doc.Get("Kostenblock", "KostenblockElement").List(),
	}
}

// Analyze transforms one raw invoice document into its canonical fact set.
func (a *Analyzer) Analyze(doc document.Value) models.InvoiceFacts {
	s := splitSections(doc)

	facts := models.InvoiceFacts{
		InvoiceNumber:  s.process.StringField("invoiceNumber"),
		InvoiceDate:    s.process.StringField("invoiceDate"),
		CustomerNumber: s.partner.StringField("customerNumber"),
		Salutation:     s.partner.StringField("salutation"),
		GrossAmount:    s.process.FloatField("invoiceAmount"),
		NetAmount:      s.process.FloatField("netInvoiceAmount"),
		TaxAmount:      s.process.FloatField("taxAmount"),
		BonusAmount:    s.process.FloatField("bonus"),
	}
	facts.CustomerName = strings.TrimSpace(
		s.partner.StringField("firstName") + " " + s.partner.StringField("name"))

	facts.TotalConsumption, facts.PeriodFrom, facts.PeriodTo = a.totalConsumption(s)
	facts.IsZeroConsumption = facts.TotalConsumption == 0

	facts.WorkingPrices = a.workingPrices(s)
	facts.HasMultiplePeriods = len(facts.WorkingPrices) > 1
	facts.BasePriceNet, facts.BasePriceGross = a.basePrice(s)
	facts.Levies = a.specificLevies(s, facts.TotalConsumption)
	facts.Breakdown = a.Breakdown(doc, facts)
	facts.Anomalies = a.unusualCharges(s, facts)

	a.log.Debug().
		Str("invoice_number", facts.InvoiceNumber).
		Float64("gross_amount", facts.GrossAmount).
		Float64("consumption", facts.TotalConsumption).
		Bool("zero_consumption", facts.IsZeroConsumption).
		Int("tariff_periods", len(facts.WorkingPrices)).
		Int("anomalies", len(facts.Anomalies)).
		Msg("Analyzed invoice document")

	return facts
}

// totalConsumption sums the consumption line items. Period bounds come from
// the first and last line item; documents without line items fall back to
// the process-level consumption and period fields. A zero total is a valid
// state, not missing data.
func (a *Analyzer) totalConsumption(s sections) (total float64, from, to string) {
	for _, item := range s.consumption {
		total += item.FloatField("consumption")
	}
	if len(s.consumption) > 0 {
		from = s.consumption[0].StringField("dateFrom")
		to = s.consumption[len(s.consumption)-1].StringField("dateTo")
	} else {
		total = s.process.FloatField("consumption")
	}
	if from == "" {
		from = s.process.StringField("invoicePeriodFrom")
	}
	if to == "" {
		to = s.process.StringField("invoicePeriodTo")
	}
	return total, from, to
}

// workingPrices collects the per-kWh tariff slices from the usage billing
// lines. A mid-period tariff change produces several slices; callers must
// render all of them. When no usage line carries the working-price
// component, the tariff snapshot's ct/kWh value is the fallback.
func (a *Analyzer) workingPrices(s sections) []models.TariffPeriod {
	var periods []models.TariffPeriod
	seen := make(map[string]bool)
	for _, item := range s.billingItems {
		if item.StringField("priceType") != priceTypeUsage {
			continue
		}
		if !strings.Contains(item.StringField("name"), workingPriceName) {
			continue
		}
		p := models.TariffPeriod{
			From:         item.StringField("dateFrom"),
			To:           item.StringField("dateTo"),
			PricePerUnit: item.FloatField("price"),
		}
		key := fmt.Sprintf("%s|%s|%.6f", p.From, p.To, p.PricePerUnit)
		if seen[key] {
			continue
		}
		seen[key] = true
		periods = append(periods, p)
	}
	if len(periods) == 0 {
		if ct := s.process.FloatField("currentWorkPrice"); ct != 0 {
			periods = append(periods, models.TariffPeriod{
				From:         s.process.StringField("invoicePeriodFrom"),
				To:           s.process.StringField("invoicePeriodTo"),
				PricePerUnit: ct / 100,
			})
		}
	}
	return periods
}

// basePrice returns the annual base fee. The net value comes from the
// basic-rate billing line, the gross value from the process-level tariff
// snapshot. The two stem from different sources and are never merged.
func (a *Analyzer) basePrice(s sections) (net, gross float64) {
	for _, item := range s.billingItems {
		if item.StringField("priceType") == priceTypeBasic &&
			item.StringField("name") == basePriceName {
			net = item.FloatField("amount")
			break
		}
	}
	gross = s.process.FloatField("currentBasePrice")
	return net, gross
}

// specificLevies walks every billing line's nested detail items and
// attributes each to a levy bucket by keyword. Usage-rate details are
// monetized as price per kWh times total consumption; basic-rate details
// carry an absolute amount. Every bucket is present in the result, unlisted
// levies are zero.
func (a *Analyzer) specificLevies(s sections, totalConsumption float64) map[string]float64 {
	levies := make(map[string]float64, len(models.LevyNames))
	for _, name := range models.LevyNames {
		levies[name] = 0
	}
	for _, item := range s.billingItems {
		details := item.Get("Abrechnungspositionen-Detailliert", "Abrechnungspositionen-DetailliertElement").List()
		for _, detail := range details {
			bucket, ok := levyBucket(detail.StringField("name"))
			if !ok {
				continue
			}
			if detail.StringField("priceType") == priceTypeUsage {
				levies[bucket] += detail.FloatField("price") * totalConsumption
			} else {
				levies[bucket] += detail.FloatField("amount")
			}
		}
	}
	return levies
}

func levyBucket(name string) (string, bool) {
	for _, kw := range levyKeywords {
		if strings.Contains(name, kw.keyword) {
			return kw.bucket, true
		}
	}
	return "", false
}

// Breakdown returns the three-bucket cost view, preferring the document's
// explicit cost block and deriving the buckets arithmetically when absent.
// Both paths satisfy the same contract; callers never learn which ran.
func (a *Analyzer) Breakdown(doc document.Value, facts models.InvoiceFacts) models.CostBreakdown {
	if breakdown, ok := a.BreakdownFromCostBlocks(doc, facts); ok {
		return breakdown
	}
	return a.DerivedBreakdown(facts)
}

// BreakdownFromCostBlocks reads the invoice's explicit cost-category block,
// sorting each named block into a bucket by substring match. The second
// return value is false when the document carries no usable cost block.
func (a *Analyzer) BreakdownFromCostBlocks(doc document.Value, facts models.InvoiceFacts) (models.CostBreakdown, bool) {
	blocks := splitSections(doc).costBlocks
	var breakdown models.CostBreakdown
	matched := false
	for _, block := range blocks {
		name := block.StringField("printItemName")
		category := models.CostCategory{
			Amount:     block.FloatField("amount"),
			Percentage: block.FloatField("percentageAmount"),
		}
		switch {
		case strings.Contains(name, "Netz") || strings.Contains(name, "Messung"):
			breakdown.GridAndMetering = category
			matched = true
		case strings.Contains(name, "Steuer") || strings.Contains(name, "Umlage"):
			breakdown.TaxesAndLevies = category
			matched = true
		case strings.Contains(name, "Beschaffung") || strings.Contains(name, "Vertrieb"):
			breakdown.EnergySupply = category
			matched = true
		}
	}
	breakdown.BonusAmount = facts.BonusAmount
	return breakdown, matched
}

// DerivedBreakdown computes the three buckets from the itemized levies and
// the recorded totals: grid is the grid-side levies, taxes are the
// policy levies plus VAT, supply is the net remainder. Percentages are
// relative to the gross amount.
func (a *Analyzer) DerivedBreakdown(facts models.InvoiceFacts) models.CostBreakdown {
	grid := facts.Levies[models.LevyGridUsage] + facts.Levies[models.LevyMetering]
	taxLevies := facts.Levies[models.LevyKWKG] +
		facts.Levies[models.LevyOffshore] +
		facts.Levies[models.LevyConcession] +
		facts.Levies[models.LevyNEV] +
		facts.Levies[models.LevyElectricityTax]
	taxes := taxLevies + facts.TaxAmount
	supply := facts.NetAmount - grid - taxLevies

	pct := func(amount float64) float64 {
		if facts.GrossAmount == 0 {
			return 0
		}
		return amount / facts.GrossAmount * 100
	}
	return models.CostBreakdown{
		GridAndMetering: models.CostCategory{Amount: grid, Percentage: pct(grid)},
		TaxesAndLevies:  models.CostCategory{Amount: taxes, Percentage: pct(taxes)},
		EnergySupply:    models.CostCategory{Amount: supply, Percentage: pct(supply)},
		BonusAmount:     facts.BonusAmount,
	}
}

// unusualCharges flags conditions worth surfacing to the customer. Zero
// consumption and zero usage charges with nonzero consumption are distinct
// anomalies and are never merged.
func (a *Analyzer) unusualCharges(s sections, facts models.InvoiceFacts) []models.Anomaly {
	var anomalies []models.Anomaly

	if s.process.IsNil() {
		anomalies = append(anomalies, models.Anomaly{
			Kind:        models.AnomalyIncompleteDocument,
			Explanation: "Invoice document is missing its process data section; extracted values default to zero",
		})
	}

	for _, item := range s.billingItems {
		if item.StringField("priceType") != priceTypeBasic {
			continue
		}
		if amount := item.FloatField("amount"); amount > basicChargeThreshold {
			anomalies = append(anomalies, models.Anomaly{
				Kind:        models.AnomalyHighBasicCharge,
				Amount:      amount,
				Explanation: "Higher than typical basic charge, possibly due to new contract setup or tariff change",
			})
		}
	}

	if facts.IsZeroConsumption {
		anomalies = append(anomalies, models.Anomaly{
			Kind:        models.AnomalyZeroConsumption,
			Explanation: "Zero consumption billed - typical for setup or initial invoices covering only fixed charges",
		})
		return anomalies
	}

	usageLines := 0
	allZero := true
	for _, item := range s.billingItems {
		if item.StringField("priceType") != priceTypeUsage {
			continue
		}
		usageLines++
		if item.FloatField("amount") != 0 {
			allZero = false
		}
	}
	if usageLines > 0 && allZero {
		anomalies = append(anomalies, models.Anomaly{
			Kind:        models.AnomalyZeroUsageCharges,
			Explanation: "No usage charges despite metered consumption - usually covered by prepayments",
		})
	}

	return anomalies
}
