package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/models"
)

// SubscriptionStore persists billing-provider subscription state.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	UpdateStatus(ctx context.Context, paddleSubscriptionID, status string) error
	GetByPaddleID(ctx context.Context, paddleSubscriptionID string) (*models.Subscription, error)
}

// UserStore mutates user plan state in response to billing events.
type UserStore interface {
	UpdatePlan(ctx context.Context, userID, planType string, invoiceLimit int, paddleCustomerID string) error
}

// Handler processes Paddle billing webhooks.
type Handler struct {
	verifier      *Verifier
	subscriptions SubscriptionStore
	users         UserStore
	logger        *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(verifier *Verifier, subscriptions SubscriptionStore, users UserStore, logger *zap.Logger) *Handler {
	return &Handler{
		verifier:      verifier,
		subscriptions: subscriptions,
		users:         users,
		logger:        logger,
	}
}

// Event is the envelope Paddle posts for every notification.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       EventData `json:"data"`
}

// EventData carries the subscription or transaction payload.
type EventData struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	CustomerID     string        `json:"customer_id"`
	SubscriptionID string        `json:"subscription_id"`
	CustomData     CustomData    `json:"custom_data"`
	Items          []EventItem   `json:"items"`
	BillingPeriod  BillingPeriod `json:"current_billing_period"`
}

// CustomData is the passthrough metadata attached at checkout.
type CustomData struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
}

// EventItem is a line item on a subscription or transaction.
type EventItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
}

// BillingPeriod bounds the current paid period.
type BillingPeriod struct {
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// Handle verifies and dispatches an incoming Paddle webhook.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if err := h.verifier.VerifySignature(c.GetHeader("Paddle-Signature"), body); err != nil {
		h.logger.Warn("Rejected webhook with invalid signature", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Failed to parse event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
		return
	}

	h.logger.Info("Received billing event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType))

	if err := h.processEvent(c.Request.Context(), &event); err != nil {
		h.logger.Error("Failed to process billing event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event processed"})
}

func (h *Handler) processEvent(ctx context.Context, event *Event) error {
	switch event.EventType {
	case "subscription.created", "subscription.updated":
		return h.handleSubscriptionChange(ctx, event)
	case "subscription.canceled":
		return h.handleSubscriptionCanceled(ctx, event)
	case "transaction.completed":
		return h.handleTransactionCompleted(ctx, event)
	default:
		h.logger.Debug("Ignoring unhandled event type", zap.String("event_type", event.EventType))
		return nil
	}
}

func (h *Handler) handleSubscriptionChange(ctx context.Context, event *Event) error {
	data := event.Data
	planType := data.CustomData.PlanType
	if planType == "" {
		planType = models.PlanFree
	}

	sub := &models.Subscription{
		UserID:               data.CustomData.UserID,
		PaddleSubscriptionID: data.ID,
		PlanType:             planType,
		Status:               data.Status,
		CurrentPeriodStart:   data.BillingPeriod.StartsAt,
		CurrentPeriodEnd:     data.BillingPeriod.EndsAt,
	}
	if len(data.Items) > 0 {
		sub.PaddlePriceID = data.Items[0].Price.ID
	}
	if err := h.subscriptions.Upsert(ctx, sub); err != nil {
		return err
	}

	if data.CustomData.UserID == "" {
		h.logger.Warn("Subscription event without user reference",
			zap.String("subscription_id", data.ID))
		return nil
	}
	return h.users.UpdatePlan(ctx, data.CustomData.UserID, planType,
		models.PlanInvoiceLimit(planType), data.CustomerID)
}

func (h *Handler) handleSubscriptionCanceled(ctx context.Context, event *Event) error {
	data := event.Data
	if err := h.subscriptions.UpdateStatus(ctx, data.ID, models.SubscriptionCanceled); err != nil {
		return err
	}

	userID := data.CustomData.UserID
	if userID == "" {
		// Cancellation payloads may omit custom data; fall back to the stored row.
		sub, err := h.subscriptions.GetByPaddleID(ctx, data.ID)
		if err != nil {
			h.logger.Warn("Canceled subscription not found locally",
				zap.String("subscription_id", data.ID), zap.Error(err))
			return nil
		}
		userID = sub.UserID
	}
	return h.users.UpdatePlan(ctx, userID, models.PlanFree,
		models.PlanInvoiceLimit(models.PlanFree), data.CustomerID)
}

func (h *Handler) handleTransactionCompleted(ctx context.Context, event *Event) error {
	data := event.Data
	if data.SubscriptionID == "" {
		h.logger.Debug("Transaction without subscription, nothing to update",
			zap.String("transaction_id", data.ID))
		return nil
	}
	// A completed renewal payment reactivates a past_due subscription.
	return h.subscriptions.UpdateStatus(ctx, data.SubscriptionID, models.SubscriptionActive)
}
