package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// InvoiceRepository handles invoice database operations
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `
	id, user_id, country_code, file_name, file_path, status,
	invoice_number, invoice_date, vendor_name, vendor_tax_id,
	receiver_name, receiver_tax_id, total_amount, tax_amount,
	subtotal_amount, currency, has_retention, deductible, needs_review,
	raw_text, created_at, updated_at
`

// Create inserts a new invoice row
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.UserID,
		invoice.CountryCode,
		invoice.FileName,
		invoice.FilePath,
		invoice.Status,
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		invoice.VendorName,
		invoice.VendorTaxID,
		invoice.ReceiverName,
		invoice.ReceiverTaxID,
		invoice.TotalAmount,
		invoice.TaxAmount,
		invoice.SubtotalAmount,
		invoice.Currency,
		invoice.HasRetention,
		string(invoice.Deductible),
		invoice.NeedsReview,
		invoice.RawText,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.String("id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID returns one invoice
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invoice %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// ListByUser returns a user's invoices, newest first
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
	}

	return invoices, rows.Err()
}

// Update rewrites the extraction result columns of an existing row. Used by
// the worker once processing finishes.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	query := `
		UPDATE invoices
		SET status = ?, invoice_number = ?, invoice_date = ?, vendor_name = ?,
		    vendor_tax_id = ?, receiver_name = ?, receiver_tax_id = ?,
		    total_amount = ?, tax_amount = ?, subtotal_amount = ?, currency = ?,
		    has_retention = ?, deductible = ?, needs_review = ?, raw_text = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.Status,
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		invoice.VendorName,
		invoice.VendorTaxID,
		invoice.ReceiverName,
		invoice.ReceiverTaxID,
		invoice.TotalAmount,
		invoice.TaxAmount,
		invoice.SubtotalAmount,
		invoice.Currency,
		invoice.HasRetention,
		string(invoice.Deductible),
		invoice.NeedsReview,
		invoice.RawText,
		invoice.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice", zap.String("id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	return nil
}

// UpdateReview applies an accountant's review decision
func (r *InvoiceRepository) UpdateReview(ctx context.Context, id string, deductible models.DeductibleStatus, needsReview bool) error {
	query := `
		UPDATE invoices
		SET deductible = ?, needs_review = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, string(deductible), needsReview, id)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %q: %w", id, ErrNotFound)
	}

	return nil
}

// MarkFailed flags a row whose processing errored so it surfaces for review
func (r *InvoiceRepository) MarkFailed(ctx context.Context, id string) error {
	query := `
		UPDATE invoices
		SET status = ?, needs_review = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, models.InvoiceStatusFailed, id); err != nil {
		return fmt.Errorf("failed to mark invoice failed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var invoice models.Invoice
	var deductible string

	err := row.Scan(
		&invoice.ID,
		&invoice.UserID,
		&invoice.CountryCode,
		&invoice.FileName,
		&invoice.FilePath,
		&invoice.Status,
		&invoice.InvoiceNumber,
		&invoice.InvoiceDate,
		&invoice.VendorName,
		&invoice.VendorTaxID,
		&invoice.ReceiverName,
		&invoice.ReceiverTaxID,
		&invoice.TotalAmount,
		&invoice.TaxAmount,
		&invoice.SubtotalAmount,
		&invoice.Currency,
		&invoice.HasRetention,
		&deductible,
		&invoice.NeedsReview,
		&invoice.RawText,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.Deductible = models.DeductibleStatus(deductible)
	return &invoice, nil
}
