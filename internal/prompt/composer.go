// Package prompt assembles the instruction block handed to the text
// generator.
//
// Composition is deterministic string building: the same facts, query and
// shape always produce the same instruction. The block front-loads every
// number the generator is allowed to use and closes with explicit
// anti-hallucination rules, because the most common failure of a free-form
// generator on billing data is swapping tariff rates for cost-category
// percentages or inventing placeholder amounts.
package prompt

import (
	"fmt"
	"strings"

	"github.com/0-uddeshya-0/klarbill/internal/classify"
	"github.com/0-uddeshya-0/klarbill/internal/knowledge"
	"github.com/0-uddeshya-0/klarbill/pkg/models"
)

// maxKnowledgeEntries caps the canned Q&A context appended to a prompt.
const maxKnowledgeEntries = 2

// LocalizeSalutation maps the raw German salutation for English output;
// German output passes the salutation through untouched.
func LocalizeSalutation(raw, language string) string {
	if language != "en" {
		return raw
	}
	switch strings.ToLower(raw) {
	case "frau":
		return "Ms."
	case "herr":
		return "Mr."
	case "":
		return "Dear"
	default:
		return raw
	}
}

// Composer builds generator instructions. Stateless and reentrant.
type Composer struct{}

// NewComposer creates a Composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose builds the full instruction block for one turn. comparison may be
// nil; a comparison result with Found=false appends no comparison block at
// all rather than one with empty values.
func (c *Composer) Compose(
	query string,
	facts models.InvoiceFacts,
	intent classify.Intent,
	shape classify.ResponseShape,
	language string,
	comparison *models.ComparisonResult,
	entries []knowledge.Entry,
) string {
	var b strings.Builder
	queryLower := strings.ToLower(query)

	b.WriteString("You are KlarBill, an intelligent energy billing assistant.\n\n")
	if language == "de" {
		b.WriteString("WICHTIG: Antworte IMMER auf Deutsch. Verwende deutsche Begriffe und Formulierungen.\n\n")
	} else {
		b.WriteString("IMPORTANT: Always respond in English. Use English terms and phrases.\n\n")
	}

	salutation := LocalizeSalutation(facts.Salutation, language)
	fmt.Fprintf(&b, "CUSTOMER: %s %s\n", salutation, facts.CustomerName)
	fmt.Fprintf(&b, "INVOICE: #%s\n", facts.InvoiceNumber)
	fmt.Fprintf(&b, "PERIOD: %s - %s\n", facts.PeriodFrom, facts.PeriodTo)
	fmt.Fprintf(&b, "TOTAL AMOUNT: €%.2f\n", facts.GrossAmount)
	fmt.Fprintf(&b, "CONSUMPTION: %.0f kWh%s\n", facts.TotalConsumption,
		zeroConsumptionMarker(facts))

	b.WriteString("\nTARIFF INFORMATION:\n")
	c.writeWorkingPrices(&b, facts)
	fmt.Fprintf(&b, "- Base Price (Grundpreis): €%.2f/year net, €%.2f/year gross\n",
		facts.BasePriceNet, facts.BasePriceGross)

	b.WriteString("\nSPECIFIC LEVIES ON THIS INVOICE:\n")
	for _, name := range models.LevyNames {
		fmt.Fprintf(&b, "- %s: €%.2f\n", name, facts.Levies[name])
	}

	fmt.Fprintf(&b, "\nRESPONSE STYLE: %s\n", styleInstruction(shape.Verbosity, language))

	b.WriteString("\nCRITICAL RULES:\n")
	b.WriteString("1. ALWAYS use actual invoice data - NEVER use placeholder values like X or €X.XX\n")
	if language == "de" {
		b.WriteString("2. Antworte auf DEUTSCH\n")
	} else {
		b.WriteString("2. Respond in ENGLISH\n")
	}
	b.WriteString("3. The working price is a per-kWh rate, NOT the cost breakdown percentages\n")
	fmt.Fprintf(&b, "4. The base price is €%.2f/year, an annual fee, NEVER a per-kWh rate\n", facts.BasePriceNet)
	fmt.Fprintf(&b, "5. Use the customer's actual name: %s\n", facts.CustomerName)
	b.WriteString("6. Answer the specific question directly\n")

	b.WriteString("\nACTUAL INVOICE BREAKDOWN:\n")
	fmt.Fprintf(&b, "- Net Amount: €%.2f\n", facts.NetAmount)
	fmt.Fprintf(&b, "- Tax (19%% VAT): €%.2f\n", facts.TaxAmount)
	fmt.Fprintf(&b, "- Bonus Applied: €%.2f\n", facts.BonusAmount)
	fmt.Fprintf(&b, "- Grid & Metering Category: €%.2f (%.1f%%)\n",
		facts.Breakdown.GridAndMetering.Amount, facts.Breakdown.GridAndMetering.Percentage)
	fmt.Fprintf(&b, "- Taxes & Levies Category: €%.2f (%.1f%%)\n",
		facts.Breakdown.TaxesAndLevies.Amount, facts.Breakdown.TaxesAndLevies.Percentage)
	fmt.Fprintf(&b, "- Energy Supply Category: €%.2f (%.1f%%)\n",
		facts.Breakdown.EnergySupply.Amount, facts.Breakdown.EnergySupply.Percentage)

	if facts.IsZeroConsumption {
		if language == "de" {
			b.WriteString("\nWICHTIG - NULLVERBRAUCH: Diese Rechnung zeigt 0 kWh Verbrauch. Das ist typisch für Einrichtungs- oder Startabrechnungen. Es fallen nur Grundgebühr und Einrichtungskosten an, keine verbrauchsabhängigen Gebühren.\n")
		} else {
			b.WriteString("\nIMPORTANT - ZERO CONSUMPTION: This invoice shows 0 kWh consumption. This is typical for setup or initial bills. Only base fees and setup costs apply, no usage-based charges.\n")
		}
	}

	c.writeTermClarifications(&b, queryLower, facts, language)
	c.writeKnowledgeContext(&b, entries, language)

	if intent == classify.IntentSimpleFact && strings.Contains(queryLower, "aufschlüsseln") {
		c.writeCalculationBlock(&b, facts, language)
	}

	if comparison != nil && comparison.Found {
		c.writeComparisonBlock(&b, comparison)
	}

	fmt.Fprintf(&b, "\nQUERY: %s\n", query)
	if language == "de" {
		b.WriteString("Antworte auf DEUTSCH mit korrekten Tarifdaten (nicht mit Kostenkategorien verwechseln)!\n\nAntwort:")
	} else {
		b.WriteString("Respond in ENGLISH with correct tariff data (don't confuse it with cost categories)!\n\nResponse:")
	}
	return b.String()
}

// writeWorkingPrices renders every tariff slice. A single slice reads as
// "the" working price; a mid-period change lists all slices with their date
// ranges - rendering only the first would misstate the tariff.
func (c *Composer) writeWorkingPrices(b *strings.Builder, facts models.InvoiceFacts) {
	switch {
	case len(facts.WorkingPrices) == 0:
		b.WriteString("- Working Price (Arbeitspreis): not itemized on this invoice\n")
	case facts.HasMultiplePeriods:
		b.WriteString("- Working Price (Arbeitspreis) changed during the billing period:\n")
		for _, p := range facts.WorkingPrices {
			fmt.Fprintf(b, "  - %s to %s: %.4f €/kWh (%.2f ct/kWh)\n",
				p.From, p.To, p.PricePerUnit, p.CentsPerUnit())
		}
	default:
		p := facts.WorkingPrices[0]
		fmt.Fprintf(b, "- Working Price (Arbeitspreis): %.4f €/kWh (%.2f ct/kWh)\n",
			p.PricePerUnit, p.CentsPerUnit())
	}
}

// termClarifications maps query substrings to the facts-grounded
// explanation block appended when the customer asks about that term.
func (c *Composer) writeTermClarifications(b *strings.Builder, queryLower string, facts models.InvoiceFacts, language string) {
	if strings.Contains(queryLower, "kwkg") {
		if language == "de" {
			fmt.Fprintf(b, "\nKWKG-UMLAGE SPEZIFISCH: Die KWKG-Umlage (Kraft-Wärme-Kopplungsgesetz) ist eine Abgabe zur Förderung von Kraft-Wärme-Kopplung. Auf dieser Rechnung: €%.2f. Das ist NICHT dasselbe wie \"Netz und Messung\".\n",
				facts.Levies[models.LevyKWKG])
		} else {
			fmt.Fprintf(b, "\nKWKG-LEVY SPECIFIC: The KWKG-Umlage (Combined Heat and Power Act levy) supports cogeneration. On this invoice: €%.2f. This is NOT the same as \"Grid and Metering\" costs.\n",
				facts.Levies[models.LevyKWKG])
		}
	}
	if strings.Contains(queryLower, "working price") || strings.Contains(queryLower, "arbeitspreis") {
		if language == "de" {
			b.WriteString("\nARBEITSPREIS SPEZIFISCH: Der Arbeitspreis ist der Preis pro verbrauchter kWh (siehe TARIFF INFORMATION), NICHT die Kostenkategorien wie \"Beschaffung und Vertrieb\".\n")
		} else {
			b.WriteString("\nWORKING PRICE SPECIFIC: The working price is the price per kWh consumed (see TARIFF INFORMATION), NOT cost categories like \"Procurement and Supply\".\n")
		}
	}
	if strings.Contains(queryLower, "base price") || strings.Contains(queryLower, "grundpreis") {
		if language == "de" {
			fmt.Fprintf(b, "\nGRUNDPREIS SPEZIFISCH: Der Grundpreis ist €%.2f/Jahr (netto) bzw. €%.2f/Jahr (brutto). Das ist eine feste Jahresgebühr, KEIN kWh-Preis.\n",
				facts.BasePriceNet, facts.BasePriceGross)
		} else {
			fmt.Fprintf(b, "\nBASE PRICE SPECIFIC: The base price is €%.2f/year (net) or €%.2f/year (gross). This is a fixed annual fee, NOT a per-kWh rate.\n",
				facts.BasePriceNet, facts.BasePriceGross)
		}
	}
	if strings.Contains(queryLower, "konzessionsabgabe") {
		if language == "de" {
			fmt.Fprintf(b, "\nKONZESSIONSABGABE SPEZIFISCH: Die Konzessionsabgabe ist ein Entgelt an Gemeinden für die Nutzung öffentlicher Wege. Auf dieser Rechnung: €%.2f. Die Höhe variiert nach Gemeindegröße.\n",
				facts.Levies[models.LevyConcession])
		} else {
			fmt.Fprintf(b, "\nCONCESSION FEE SPECIFIC: The concession fee is paid to municipalities for using public roads for power lines. On this invoice: €%.2f. Rates vary by municipality size.\n",
				facts.Levies[models.LevyConcession])
		}
	}
}

// writeKnowledgeContext appends the top high-relevance canned answers.
func (c *Composer) writeKnowledgeContext(b *strings.Builder, entries []knowledge.Entry, language string) {
	var high []knowledge.Entry
	for _, e := range entries {
		if e.Relevance == "high" {
			high = append(high, e)
		}
	}
	if len(high) == 0 {
		return
	}
	if len(high) > maxKnowledgeEntries {
		high = high[:maxKnowledgeEntries]
	}
	if language == "de" {
		b.WriteString("\nRELEVANTE INFO:\n")
	} else {
		b.WriteString("\nRELEVANT INFO:\n")
	}
	for _, e := range high {
		fmt.Fprintf(b, "- %s\n", e.Response)
	}
}

func (c *Composer) writeCalculationBlock(b *strings.Builder, facts models.InvoiceFacts, language string) {
	if language == "de" {
		b.WriteString("\nKORREKTE KOSTENAUFSCHLÜSSELUNG:\n")
		fmt.Fprintf(b, "- Grundgebühr + Verbrauchskosten = €%.2f (netto)\n", facts.NetAmount)
		fmt.Fprintf(b, "- Mehrwertsteuer (19%%) = €%.2f\n", facts.TaxAmount)
		fmt.Fprintf(b, "- Bonus/Rabatt = €%.2f\n", facts.BonusAmount)
		fmt.Fprintf(b, "- GESAMT = €%.2f\n", facts.GrossAmount)
	} else {
		b.WriteString("\nCORRECT COST BREAKDOWN:\n")
		fmt.Fprintf(b, "- Base fee + usage charges = €%.2f (net)\n", facts.NetAmount)
		fmt.Fprintf(b, "- VAT (19%%) = €%.2f\n", facts.TaxAmount)
		fmt.Fprintf(b, "- Bonus/discount = €%.2f\n", facts.BonusAmount)
		fmt.Fprintf(b, "- TOTAL = €%.2f\n", facts.GrossAmount)
	}
}

func (c *Composer) writeComparisonBlock(b *strings.Builder, comparison *models.ComparisonResult) {
	b.WriteString("\nCOMPARISON DATA:\n")
	fmt.Fprintf(b, "- Previous invoice: #%s (%s)\n", comparison.PreviousInvoiceNumber, comparison.PreviousPeriod)
	fmt.Fprintf(b, "- Previous: €%.2f\n", comparison.PreviousAmount)
	fmt.Fprintf(b, "- Current: €%.2f\n", comparison.CurrentAmount)
	if comparison.PreviousAmount != 0 {
		fmt.Fprintf(b, "- Difference: €%.2f (%+.1f%%)\n", comparison.AmountDelta,
			comparison.AmountDelta/comparison.PreviousAmount*100)
	} else {
		fmt.Fprintf(b, "- Difference: €%.2f\n", comparison.AmountDelta)
	}
	fmt.Fprintf(b, "- Consumption difference: %+.0f kWh\n", comparison.ConsumptionDelta)
	if len(comparison.Reasons) > 0 {
		fmt.Fprintf(b, "- Reason: %s\n", comparison.Reasons[0])
	} else {
		b.WriteString("- Reason: No clear reason\n")
	}
}

func zeroConsumptionMarker(facts models.InvoiceFacts) string {
	if facts.IsZeroConsumption {
		return " (ZERO CONSUMPTION - Setup/Initial Bill)"
	}
	return ""
}

func styleInstruction(verbosity classify.Verbosity, language string) string {
	switch verbosity {
	case classify.VerbosityBrief:
		if language == "de" {
			return "Antworte SEHR KURZ in 1-2 Sätzen. Nur die wichtigsten Fakten."
		}
		return "Answer VERY BRIEFLY in 1-2 sentences. Essential facts only."
	case classify.VerbosityDetailed:
		if language == "de" {
			return "Gib eine ausführliche Erklärung mit allen relevanten Details."
		}
		return "Provide a comprehensive explanation with all relevant details."
	default:
		if language == "de" {
			return "Antworte präzise in 3-4 Sätzen. Wichtiger Kontext inklusive."
		}
		return "Answer concisely in 3-4 sentences. Include key context."
	}
}
