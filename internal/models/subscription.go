package models

import "time"

// Plan type constants
const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
	PlanPro     = "pro"
	PlanStudio  = "studio"
)

// Subscription status constants
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Subscription tracks a user's billing-provider subscription
type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               string     `json:"user_id"`
	PaddleSubscriptionID string     `json:"paddle_subscription_id"`
	PaddlePriceID        string     `json:"paddle_price_id"`
	PaddleTransactionID  string     `json:"paddle_transaction_id"`
	PlanType             string     `json:"plan_type"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
}

// PlanInvoiceLimit returns the monthly upload allowance for a plan type.
// Unknown plan types fall back to the free tier.
func PlanInvoiceLimit(planType string) int {
	limits := map[string]int{
		PlanFree:    10,
		PlanBasic:   50,
		PlanPremium: 200,
		PlanPro:     500,
		PlanStudio:  2000,
	}
	if limit, ok := limits[planType]; ok {
		return limit
	}
	return limits[PlanFree]
}
