package models

import "time"

// User is a freelancer account. Only the fields the backend needs for plan
// enforcement and invoice ownership live here; profile data is out of scope.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	TaxID             string    `json:"tax_id,omitempty"`
	CountryCode       string    `json:"country_code"`
	SubscriptionPlan  string    `json:"subscription_plan"`
	InvoiceLimit      int       `json:"invoice_limit"`
	InvoicesThisMonth int       `json:"invoices_this_month"`
	PaddleCustomerID  string    `json:"paddle_customer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CanUpload reports whether the user is under their monthly invoice limit.
func (u *User) CanUpload() bool {
	if u.InvoiceLimit <= 0 {
		return false
	}
	return u.InvoicesThisMonth < u.InvoiceLimit
}
