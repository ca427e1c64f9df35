package models

// InvoiceFacts is the canonical fact set derived from one raw invoice
// document. All currency amounts are EUR, consumption is kWh. Values are
// kept at full float64 precision; rounding to two decimals happens only at
// presentation boundaries.
type InvoiceFacts struct {
	// Identity
	InvoiceNumber string // Human-readable invoice number
	InvoiceDate   string // German date format "02.01.2006"
	CustomerName  string // First + last name as printed on the invoice
	Salutation    string // Raw German salutation ("Frau", "Herr", ...)
	CustomerNumber string

	// Billing period
	PeriodFrom string
	PeriodTo   string

	// Amounts
	GrossAmount float64 // Total invoice amount
	NetAmount   float64 // Amount before VAT
	TaxAmount   float64 // VAT amount
	BonusAmount float64 // Negative for credits, positive for charges

	// Consumption
	TotalConsumption  float64
	IsZeroConsumption bool // Setup/initial bill, distinct from "no data"

	// Tariff
	WorkingPrices      []TariffPeriod // One entry per time-sliced sub-period
	HasMultiplePeriods bool           // Mid-period tariff change
	BasePriceNet       float64        // EUR/year, from the basic-rate billing line
	BasePriceGross     float64        // EUR/year, from the tariff snapshot

	// Levies: every known bucket is always present, unlisted levies are zero.
	Levies map[string]float64

	// Cost categories
	Breakdown CostBreakdown

	// Anomalies flagged during analysis
	Anomalies []Anomaly
}

// TariffPeriod is one working-price slice within a billing period.
type TariffPeriod struct {
	From         string  `json:"from"`           // "02.01.2006"
	To           string  `json:"to"`             // "02.01.2006"
	PricePerUnit float64 `json:"price_per_unit"` // EUR/kWh
}

// CentsPerUnit returns the working price in ct/kWh for presentation.
func (p TariffPeriod) CentsPerUnit() float64 {
	return p.PricePerUnit * 100
}

// CostCategory is one of the three aggregate buckets an invoice's gross
// amount is distributed into.
type CostCategory struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"` // 0-100; buckets need not sum to exactly 100
}

// CostBreakdown distributes the gross amount over the three cost buckets.
// Source is either the invoice's explicit cost block or an arithmetic
// derivation from levies and totals; callers see the same contract either
// way.
type CostBreakdown struct {
	GridAndMetering CostCategory `json:"grid_and_metering"`
	TaxesAndLevies  CostCategory `json:"taxes_and_levies"`
	EnergySupply    CostCategory `json:"energy_supply"`
	BonusAmount     float64      `json:"bonus_amount"`
}

// AnomalyKind classifies a flagged invoice condition.
type AnomalyKind string

const (
	// AnomalyHighBasicCharge flags a basic-rate line above the fixed
	// threshold, typically caused by contract setup or a tariff change.
	AnomalyHighBasicCharge AnomalyKind = "high_basic_charge"

	// AnomalyZeroConsumption flags a setup/initial bill with no metered
	// usage at all.
	AnomalyZeroConsumption AnomalyKind = "zero_consumption"

	// AnomalyZeroUsageCharges flags usage lines that are all zero while
	// consumption is nonzero, the prepayment-covered case. Not the same
	// condition as AnomalyZeroConsumption.
	AnomalyZeroUsageCharges AnomalyKind = "zero_usage_charges"

	// AnomalyIncompleteDocument flags a document missing the nested
	// sections fact extraction reads from. Extraction still produces
	// best-effort facts with zero defaults.
	AnomalyIncompleteDocument AnomalyKind = "incomplete_document"
)

// Anomaly is one flagged condition with a presentable explanation.
type Anomaly struct {
	Kind        AnomalyKind `json:"type"`
	Amount      float64     `json:"amount,omitempty"` // Charge that triggered the flag, when applicable
	Explanation string      `json:"explanation"`
}

// ComparisonResult reports the delta between an invoice and the customer's
// most recent prior invoice.
type ComparisonResult struct {
	Found bool `json:"found"` // False when no strictly earlier invoice exists

	PreviousInvoiceNumber string  `json:"previous_invoice_number"`
	PreviousPeriod        string  `json:"previous_period"` // "from to to" descriptor
	PreviousAmount        float64 `json:"previous_amount"`
	CurrentAmount         float64 `json:"current_amount"`

	AmountDelta      float64 `json:"difference"`             // current - previous, signed
	ConsumptionDelta float64 `json:"consumption_difference"` // current - previous, signed

	// Reasons is ordered by fixed priority: consumption change, price
	// change despite flat consumption, bonus delta. Empty means no clear
	// explanatory signal.
	Reasons []string `json:"reasons"`
}

// Levy bucket names. Detail lines are attributed by substring match, so
// "KWKG-Umlage-Anteil" lands in the KWKG bucket.
const (
	LevyKWKG           = "KWKG-Umlage"
	LevyOffshore       = "Offshore-Netzumlage"
	LevyConcession     = "Konzessionsabgabe"
	LevyNEV            = "NEV-Umlage"
	LevyElectricityTax = "Stromsteuer"
	LevyGridUsage      = "Netznutzung"
	LevyMetering       = "Messstellenbetrieb"
)

// LevyNames lists every bucket in presentation order.
var LevyNames = []string{
	LevyKWKG,
	LevyOffshore,
	LevyConcession,
	LevyNEV,
	LevyElectricityTax,
	LevyGridUsage,
	LevyMetering,
}
