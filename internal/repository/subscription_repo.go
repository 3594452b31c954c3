package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// SubscriptionRepository handles billing-subscription database operations
type SubscriptionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *sql.DB, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, logger: logger}
}

// Upsert creates or refreshes a subscription keyed by the provider's
// subscription ID, mirroring the webhook's at-least-once delivery.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, paddle_subscription_id, paddle_price_id, paddle_transaction_id,
			plan_type, status, current_period_start, current_period_end, cancel_at_period_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paddle_subscription_id) DO UPDATE SET
			paddle_price_id = excluded.paddle_price_id,
			paddle_transaction_id = excluded.paddle_transaction_id,
			plan_type = excluded.plan_type,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.UserID,
		sub.PaddleSubscriptionID,
		sub.PaddlePriceID,
		sub.PaddleTransactionID,
		sub.PlanType,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		r.logger.Error("Failed to upsert subscription",
			zap.String("paddle_subscription_id", sub.PaddleSubscriptionID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// GetByPaddleID returns the subscription for a provider subscription ID
func (r *SubscriptionRepository) GetByPaddleID(ctx context.Context, paddleSubscriptionID string) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, paddle_subscription_id, paddle_price_id, paddle_transaction_id,
		       plan_type, status, current_period_start, current_period_end,
		       cancel_at_period_end, created_at
		FROM subscriptions
		WHERE paddle_subscription_id = ?
	`

	var sub models.Subscription
	err := r.db.QueryRowContext(ctx, query, paddleSubscriptionID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PaddleSubscriptionID,
		&sub.PaddlePriceID,
		&sub.PaddleTransactionID,
		&sub.PlanType,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription %q: %w", paddleSubscriptionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// UpdateStatus transitions a subscription's lifecycle state
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, paddleSubscriptionID, status string) error {
	query := `UPDATE subscriptions SET status = ? WHERE paddle_subscription_id = ?`

	result, err := r.db.ExecContext(ctx, query, status, paddleSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subscription %q: %w", paddleSubscriptionID, ErrNotFound)
	}

	return nil
}
