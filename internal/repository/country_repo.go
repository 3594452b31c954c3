package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
)

// CountryRepository serves country tax rulesets
type CountryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCountryRepository creates a new country repository
func NewCountryRepository(db *sql.DB, logger *zap.Logger) *CountryRepository {
	return &CountryRepository{db: db, logger: logger}
}

// GetByCode returns the ruleset for a country code. An unknown code yields
// models.ErrUnknownCountry; callers must treat that as fatal for the request
// rather than substituting a default ruleset.
func (r *CountryRepository) GetByCode(ctx context.Context, code string) (*models.CountryRuleset, error) {
	query := `
		SELECT code, name, currency, vat_name, vat_rate, deduction_percentage, categories, updated_at
		FROM countries
		WHERE code = ?
	`

	var ruleset models.CountryRuleset
	var categoriesJSON string

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&ruleset.Code,
		&ruleset.Name,
		&ruleset.Currency,
		&ruleset.VATName,
		&ruleset.VATRate,
		&ruleset.DeductionPercentage,
		&categoriesJSON,
		&ruleset.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("country %q: %w", code, models.ErrUnknownCountry)
	}
	if err != nil {
		r.logger.Error("Failed to load country ruleset", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to load country ruleset: %w", err)
	}

	if err := json.Unmarshal([]byte(categoriesJSON), &ruleset.Categories); err != nil {
		return nil, fmt.Errorf("failed to parse categories for %s: %w", code, err)
	}

	return &ruleset, nil
}

// List returns every configured country ruleset
func (r *CountryRepository) List(ctx context.Context) ([]models.CountryRuleset, error) {
	query := `
		SELECT code, name, currency, vat_name, vat_rate, deduction_percentage, categories, updated_at
		FROM countries
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	var rulesets []models.CountryRuleset
	for rows.Next() {
		var ruleset models.CountryRuleset
		var categoriesJSON string
		if err := rows.Scan(
			&ruleset.Code,
			&ruleset.Name,
			&ruleset.Currency,
			&ruleset.VATName,
			&ruleset.VATRate,
			&ruleset.DeductionPercentage,
			&categoriesJSON,
			&ruleset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		if err := json.Unmarshal([]byte(categoriesJSON), &ruleset.Categories); err != nil {
			return nil, fmt.Errorf("failed to parse categories for %s: %w", ruleset.Code, err)
		}
		rulesets = append(rulesets, ruleset)
	}

	return rulesets, rows.Err()
}

// Update replaces a country's configurable fields. Only the administrative
// configuration screen calls this; the pipeline reads rulesets but never
// writes them.
func (r *CountryRepository) Update(ctx context.Context, ruleset *models.CountryRuleset) error {
	categoriesJSON, err := json.Marshal(ruleset.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	query := `
		UPDATE countries
		SET name = ?, currency = ?, vat_name = ?, vat_rate = ?,
		    deduction_percentage = ?, categories = ?, updated_at = CURRENT_TIMESTAMP
		WHERE code = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		ruleset.Name,
		ruleset.Currency,
		ruleset.VATName,
		ruleset.VATRate,
		ruleset.DeductionPercentage,
		string(categoriesJSON),
		ruleset.Code,
	)
	if err != nil {
		r.logger.Error("Failed to update country", zap.String("code", ruleset.Code), zap.Error(err))
		return fmt.Errorf("failed to update country: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("country %q: %w", ruleset.Code, models.ErrUnknownCountry)
	}

	return nil
}
