package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// UserRepository handles user database operations
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, tax_id, country_code, subscription_plan, invoice_limit, invoices_this_month, paddle_customer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.TaxID,
		user.CountryCode,
		user.SubscriptionPlan,
		user.InvoiceLimit,
		user.InvoicesThisMonth,
		user.PaddleCustomerID,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID returns one user
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, full_name, tax_id, country_code, subscription_plan,
		       invoice_limit, invoices_this_month, paddle_customer_id, created_at
		FROM users
		WHERE id = ?
	`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.TaxID,
		&user.CountryCode,
		&user.SubscriptionPlan,
		&user.InvoiceLimit,
		&user.InvoicesThisMonth,
		&user.PaddleCustomerID,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// UpdatePlan moves a user onto a plan and its invoice allowance. The Paddle
// customer ID is only written when the webhook supplies one.
func (r *UserRepository) UpdatePlan(ctx context.Context, userID, planType string, invoiceLimit int, paddleCustomerID string) error {
	query := `
		UPDATE users
		SET subscription_plan = ?, invoice_limit = ?,
		    paddle_customer_id = CASE WHEN ? != '' THEN ? ELSE paddle_customer_id END
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, planType, invoiceLimit, paddleCustomerID, paddleCustomerID, userID)
	if err != nil {
		r.logger.Error("Failed to update user plan", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to update user plan: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}

	return nil
}

// IncrementInvoiceCount bumps the user's monthly upload counter
func (r *UserRepository) IncrementInvoiceCount(ctx context.Context, userID string) error {
	query := `UPDATE users SET invoices_this_month = invoices_this_month + 1 WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to increment invoice count: %w", err)
	}
	return nil
}

// ResetMonthlyCounts zeroes every user's upload counter. Run at the start of
// each billing month.
func (r *UserRepository) ResetMonthlyCounts(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET invoices_this_month = 0`); err != nil {
		return fmt.Errorf("failed to reset monthly counts: %w", err)
	}
	return nil
}
