package ocr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// rucPattern matches the Nicaraguan RUC format: a J (juridical) or C (cedula
// based) prefix followed by thirteen digits, preceded by the RUC label.
var rucPattern = regexp.MustCompile(`(?i)RUC[:\s]*([JC]\d{13})`)

// PatternExtractor pulls structured fields out of raw OCR text with
// jurisdiction-specific regex rules. Everything about it is best-effort: a
// rule that does not match leaves the field absent, it never returns an error.
type PatternExtractor struct {
	logger *zap.Logger
}

// NewPatternExtractor creates a new pattern extractor
func NewPatternExtractor(logger *zap.Logger) *PatternExtractor {
	return &PatternExtractor{logger: logger}
}

// Extract runs every pattern rule against the raw text and returns whichever
// subset of fields matched.
func (e *PatternExtractor) Extract(text string, ruleset *models.CountryRuleset) models.FieldSet {
	var fields models.FieldSet

	if date, ok := ParseLatinDate(text); ok {
		fields.InvoiceDate = models.String(date)
	}

	if m := rucPattern.FindStringSubmatchIndex(text); m != nil {
		fields.VendorTaxID = models.String(text[m[2]:m[3]])
		if name := lineBeforeOffset(text, m[0]); name != "" {
			fields.VendorName = models.String(name)
		}
	}
	if fields.VendorName == nil {
		// No RUC anchor to work from; fall back to the first line that looks
		// like it could be a business name. Known to be unreliable.
		if name := firstNonTrivialLine(text); name != "" {
			fields.VendorName = models.String(name)
		}
	}

	currency := ruleset.Currency
	if currency == "" {
		currency = "NIO"
	}
	totalRe, err := regexp.Compile(fmt.Sprintf(`(?i)TOTAL(?:\s+%s)?[\s:]*([\d,]+\.\d{2})`, regexp.QuoteMeta(currency)))
	if err == nil {
		if m := totalRe.FindStringSubmatch(text); m != nil {
			fields.TotalAmount = models.Float(ParseAmount(m[1]))
		}
	}

	vatName := ruleset.VATName
	if vatName == "" {
		vatName = "IVA"
	}
	vatRe, err := regexp.Compile(fmt.Sprintf(`(?i)%s[\s:]*([\d,]+\.\d{2})`, regexp.QuoteMeta(vatName)))
	if err == nil {
		if m := vatRe.FindStringSubmatch(text); m != nil {
			fields.TaxAmount = models.Float(ParseAmount(m[1]))
		}
	}

	fields.IsDeductible = models.Bool(IsLikelyDeductible(text, ruleset.Categories))

	e.logger.Debug("Pattern extraction finished",
		zap.String("country", ruleset.Code),
		zap.Bool("found_tax_id", fields.VendorTaxID != nil),
		zap.Bool("found_total", fields.TotalAmount != nil))

	return fields
}

// lineBeforeOffset returns the nearest non-empty line preceding the line that
// contains the given byte offset, used to guess the vendor name printed above
// the tax-ID line.
func lineBeforeOffset(text string, offset int) string {
	lines := strings.Split(text[:offset], "\n")
	// The last element is the (partial) line holding the match itself.
	for i := len(lines) - 2; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
