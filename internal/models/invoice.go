package models

import "time"

// DeductibleStatus marks whether an expense can reduce taxable income.
// Invoices start as "pendiente" unless the extraction heuristic suggests
// otherwise; the final word belongs to the accountant review.
type DeductibleStatus string

const (
	Deducible   DeductibleStatus = "deducible"
	NoDeducible DeductibleStatus = "no_deducible"
	Pendiente   DeductibleStatus = "pendiente"
)

// Invoice processing status constants
const (
	InvoiceStatusProcessing = "processing"
	InvoiceStatusProcessed  = "processed"
	InvoiceStatusFailed     = "failed"
)

// Invoice represents a processed invoice document
type Invoice struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	CountryCode    string           `json:"country_code"`
	FileName       string           `json:"file_name"`
	FilePath       string           `json:"file_path"`
	Status         string           `json:"status"`
	InvoiceNumber  string           `json:"invoice_number,omitempty"`
	InvoiceDate    string           `json:"invoice_date,omitempty"` // YYYY-MM-DD
	VendorName     string           `json:"vendor_name,omitempty"`
	VendorTaxID    string           `json:"vendor_tax_id,omitempty"`
	ReceiverName   string           `json:"receiver_name,omitempty"`
	ReceiverTaxID  string           `json:"receiver_tax_id,omitempty"`
	TotalAmount    float64          `json:"total_amount"`
	TaxAmount      float64          `json:"tax_amount"`
	SubtotalAmount float64          `json:"subtotal_amount"`
	Currency       string           `json:"currency"`
	HasRetention   bool             `json:"has_retention"`
	Deductible     DeductibleStatus `json:"deductible"`
	NeedsReview    bool             `json:"needs_review"`
	RawText        string           `json:"raw_text,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// FieldSet holds the output of one extraction stage. Every field is optional:
// a nil pointer means the stage could not find the field, which is distinct
// from a zero value it actually read off the document.
type FieldSet struct {
	InvoiceNumber  *string
	InvoiceDate    *string // YYYY-MM-DD
	VendorName     *string
	VendorTaxID    *string
	ReceiverName   *string
	ReceiverTaxID  *string
	TotalAmount    *float64
	TaxAmount      *float64
	SubtotalAmount *float64
	Currency       *string
	HasRetention   bool
	IsDeductible   *bool
	NeedsReview    bool
}

// Entity is one typed entity returned by the external document-understanding
// service. NormalizedText carries the service's normalized value when it
// supplied one (ISO dates, plain decimal amounts); otherwise it is empty and
// MentionText is all we have.
type Entity struct {
	Type           string
	MentionText    string
	NormalizedText string
}

// Entity type vocabulary of the external invoice processor
const (
	EntityInvoiceID     = "invoice_id"
	EntitySupplierName  = "supplier_name"
	EntitySupplierTaxID = "supplier_tax_id"
	EntityReceiverName  = "receiver_name"
	EntityReceiverTaxID = "receiver_tax_id"
	EntityInvoiceDate   = "invoice_date"
	EntityNetAmount     = "net_amount"
	EntityTotalTax      = "total_tax_amount"
	EntityTotalAmount   = "total_amount"
	EntityCurrency      = "currency"
	EntityRetentionTax  = "retention_tax"
)

// String returns a pointer to s, for optional FieldSet fields.
func String(s string) *string { return &s }

// Float returns a pointer to f, for optional FieldSet fields.
func Float(f float64) *float64 { return &f }

// Bool returns a pointer to b, for optional FieldSet fields.
func Bool(b bool) *bool { return &b }
