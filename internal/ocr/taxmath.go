package ocr

import "github.com/fiscion/fiscion/internal/models"

// FillDerivedAmounts derives the VAT amount from the total when neither
// extraction stage found one. The printed total is VAT-inclusive, so the tax
// share is total * rate / (100 + rate) and the subtotal is what remains.
// The derivation never overwrites a value an extraction stage produced; if
// the tax amount is already present the set is returned untouched.
func FillDerivedAmounts(fields models.FieldSet, ruleset *models.CountryRuleset) models.FieldSet {
	if fields.TaxAmount != nil || fields.TotalAmount == nil || ruleset.VATRate <= 0 {
		return fields
	}

	tax := *fields.TotalAmount * ruleset.VATRate / (100 + ruleset.VATRate)
	fields.TaxAmount = models.Float(tax)
	if fields.SubtotalAmount == nil {
		fields.SubtotalAmount = models.Float(*fields.TotalAmount - tax)
	}

	return fields
}
