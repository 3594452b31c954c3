package models

import (
	"errors"
	"time"
)

// ErrUnknownCountry is returned when no ruleset exists for a country code.
// The pipeline must fail the request rather than guess a ruleset, since a
// default would attach wrong tax rates to the document.
var ErrUnknownCountry = errors.New("unknown country")

// CountryRuleset parameterizes extraction and tax math for one jurisdiction.
// Loaded once per request and never mutated by the pipeline; updates happen
// only through the admin configuration endpoint.
type CountryRuleset struct {
	Code                string    `json:"code"`     // ISO-ish country code, unique
	Name                string    `json:"name"`     // display name
	Currency            string    `json:"currency"` // 3-letter code
	VATName             string    `json:"vat_name"` // label printed on invoices, e.g. "IVA"
	VATRate             float64   `json:"vat_rate"` // percentage, 0-100
	DeductionPercentage float64   `json:"deduction_percentage"`
	Categories          []string  `json:"categories"` // recognized expense-category labels
	UpdatedAt           time.Time `json:"updated_at"`
}
