package ocr

import "strings"

// categoryKeywords maps an expense-category label to the words whose presence
// on an invoice suggests the expense belongs to that category. The table is a
// fixed heuristic, not a certainty: downstream consumers treat a hit as a
// suggestion subject to accountant override.
var categoryKeywords = map[string][]string{
	"Transporte": {"gasolina", "uber", "taxi", "bus", "transporte"},
	"Oficina":    {"papelería", "impresora", "toner", "oficina", "escritorio"},
	"Software":   {"licencia", "software", "suscripción", "app", "cloud"},
}

// IsLikelyDeductible scans the lower-cased document text for keywords of any
// of the ruleset's enabled categories. Categories with no keyword table entry
// contribute nothing.
func IsLikelyDeductible(text string, categories []string) bool {
	textLower := strings.ToLower(text)

	for _, category := range categories {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(textLower, keyword) {
				return true
			}
		}
	}
	return false
}
