package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// ExtractionLogRepository keeps the raw output of each external extraction
// run, for debugging mis-extracted invoices.
type ExtractionLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExtractionLogRepository creates a new extraction log repository
func NewExtractionLogRepository(db *sql.DB, logger *zap.Logger) *ExtractionLogRepository {
	return &ExtractionLogRepository{db: db, logger: logger}
}

// Create stores one extraction run's raw text and entity payload
func (r *ExtractionLogRepository) Create(ctx context.Context, invoiceID, rawText string, entities []models.Entity) error {
	payload, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to encode entity payload: %w", err)
	}

	query := `INSERT INTO extraction_logs (invoice_id, raw_text, payload) VALUES (?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, invoiceID, rawText, string(payload)); err != nil {
		r.logger.Error("Failed to store extraction log",
			zap.String("invoice_id", invoiceID), zap.Error(err))
		return fmt.Errorf("failed to store extraction log: %w", err)
	}

	return nil
}
