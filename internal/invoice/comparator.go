package invoice

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/pkg/models"
)

// dateFormat is the German date layout used throughout the invoice schema.
const dateFormat = "02.01.2006"

// Comparator finds a customer's most recent prior invoice and explains the
// delta against the current one.
type Comparator struct {
	analyzer *Analyzer
	log      zerolog.Logger
}

// NewComparator creates a Comparator backed by the given analyzer.
func NewComparator(analyzer *Analyzer) *Comparator {
	return &Comparator{
		analyzer: analyzer,
		log:      logger.WithComponent("invoice-comparator"),
	}
}

// Compare selects the invoice with the latest date strictly earlier than
// the current invoice's date and computes the delta report. The selection
// is deterministic regardless of map iteration order; when no prior invoice
// exists the result carries Found=false.
func (c *Comparator) Compare(current models.InvoiceFacts, records map[string]document.Value) models.ComparisonResult {
	currentDate, err := time.Parse(dateFormat, current.InvoiceDate)
	if err != nil {
		c.log.Warn().
			Str("invoice_number", current.InvoiceNumber).
			Str("invoice_date", current.InvoiceDate).
			Msg("Current invoice date is unparseable, comparison skipped")
		return models.ComparisonResult{Found: false}
	}

	// Sorted record ids keep the scan order stable so ties on identical
	// dates always resolve the same way.
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		previous     models.InvoiceFacts
		previousDate time.Time
		found        bool
	)
	for _, id := range ids {
		facts := c.analyzer.Analyze(records[id].Get("Data"))
		date, err := time.Parse(dateFormat, facts.InvoiceDate)
		if err != nil {
			continue
		}
		if !date.Before(currentDate) {
			continue
		}
		if !found || date.After(previousDate) {
			previous = facts
			previousDate = date
			found = true
		}
	}
	if !found {
		return models.ComparisonResult{Found: false}
	}

	result := models.ComparisonResult{
		Found:                 true,
		PreviousInvoiceNumber: previous.InvoiceNumber,
		PreviousPeriod:        previous.PeriodFrom + " to " + previous.PeriodTo,
		PreviousAmount:        previous.GrossAmount,
		CurrentAmount:         current.GrossAmount,
		AmountDelta:           current.GrossAmount - previous.GrossAmount,
		ConsumptionDelta:      current.TotalConsumption - previous.TotalConsumption,
	}
	result.Reasons = compareReasons(current, previous, result)

	c.log.Debug().
		Str("current_invoice", current.InvoiceNumber).
		Str("previous_invoice", previous.InvoiceNumber).
		Float64("amount_delta", result.AmountDelta).
		Float64("consumption_delta", result.ConsumptionDelta).
		Int("reasons", len(result.Reasons)).
		Msg("Compared invoice with previous billing period")

	return result
}

// compareReasons builds the explanation list in fixed priority order. The
// conditions are independent, several may apply to one invoice pair, and an
// empty list is a valid outcome.
func compareReasons(current, previous models.InvoiceFacts, r models.ComparisonResult) []string {
	var reasons []string

	if r.ConsumptionDelta > 0 {
		reasons = append(reasons, fmt.Sprintf(
			"Higher consumption: %.0f kWh more than previous period", r.ConsumptionDelta))
	} else if r.ConsumptionDelta < 0 {
		reasons = append(reasons, fmt.Sprintf(
			"Lower consumption: %.0f kWh less than previous period", math.Abs(r.ConsumptionDelta)))
	}

	if r.AmountDelta > 0 && r.ConsumptionDelta <= 0 {
		reasons = append(reasons,
			"Price increase despite similar or lower consumption - likely due to tariff changes")
	}

	if current.BonusAmount != previous.BonusAmount {
		reasons = append(reasons, fmt.Sprintf(
			"Bonus difference: €%.2f", current.BonusAmount-previous.BonusAmount))
	}

	return reasons
}
