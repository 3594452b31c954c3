package tax

import "github.com/fiscion/fiscion/internal/models"

// Summary aggregates a set of invoices for the freelancer dashboard and the
// accountant report. It is a display-only computation; nothing here is
// written back to invoice rows.
type Summary struct {
	TotalExpenses  float64 `json:"total_expenses"`
	VATRecoverable float64 `json:"vat_recoverable"`
	TaxDeduction   float64 `json:"tax_deduction"`
	InvoiceCount   int     `json:"invoice_count"`
	NeedsReview    int     `json:"needs_review"`
}

// Summarize computes the report-level tax summary for a batch of invoices.
// The deduction estimate applies the ruleset's configured percentage to the
// sum of invoice totals.
func Summarize(invoices []models.Invoice, ruleset *models.CountryRuleset) Summary {
	summary := Summary{InvoiceCount: len(invoices)}

	for _, inv := range invoices {
		summary.TotalExpenses += inv.TotalAmount
		summary.VATRecoverable += inv.TaxAmount
		if inv.NeedsReview {
			summary.NeedsReview++
		}
	}

	summary.TaxDeduction = summary.TotalExpenses * ruleset.DeductionPercentage / 100

	return summary
}

// DeductibleExpenses sums the totals of invoices the review process confirmed
// as deductible.
func DeductibleExpenses(invoices []models.Invoice) float64 {
	var sum float64
	for _, inv := range invoices {
		if inv.Deductible == models.Deducible {
			sum += inv.TotalAmount
		}
	}
	return sum
}
