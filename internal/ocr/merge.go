package ocr

import "github.com/fiscion/fiscion/internal/models"

// Merge reconciles the external extractor's fields with the pattern
// extractor's fields into one set. The per-field priority order is a fixed
// policy:
//
//   - invoice date, total, tax amount, vendor name: external first. The
//     general-purpose model reads these more reliably than our regexes.
//   - vendor tax ID: pattern first. The local-format RUC regex beats the
//     external model on the jurisdiction-specific ID format.
//   - deductibility: pattern only. The external service has no knowledge of
//     local deduction rules.
//
// Fields only one stage produces (invoice number, receiver, subtotal,
// currency, retention) pass through from the external set. If no stage found
// a total amount, the merged set is flagged for manual review.
func Merge(external, pattern models.FieldSet) models.FieldSet {
	merged := models.FieldSet{
		InvoiceNumber:  external.InvoiceNumber,
		InvoiceDate:    coalesceString(external.InvoiceDate, pattern.InvoiceDate),
		VendorName:     coalesceString(external.VendorName, pattern.VendorName),
		VendorTaxID:    coalesceString(pattern.VendorTaxID, external.VendorTaxID),
		ReceiverName:   external.ReceiverName,
		ReceiverTaxID:  external.ReceiverTaxID,
		TotalAmount:    coalesceFloat(external.TotalAmount, pattern.TotalAmount),
		TaxAmount:      coalesceFloat(external.TaxAmount, pattern.TaxAmount),
		SubtotalAmount: external.SubtotalAmount,
		Currency:       external.Currency,
		HasRetention:   external.HasRetention,
		IsDeductible:   pattern.IsDeductible,
	}

	if merged.TotalAmount == nil {
		merged.NeedsReview = true
	}

	return merged
}

func coalesceString(first, second *string) *string {
	if first != nil {
		return first
	}
	return second
}

func coalesceFloat(first, second *float64) *float64 {
	if first != nil {
		return first
	}
	return second
}
