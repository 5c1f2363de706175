package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/utility-reading-api/internal/db"
)

// Repository handles database operations for measures
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertMeasure inserts a new measure. The insert is rejected atomically when
// a measure already exists for the same customer, type and billing period;
// in that case it returns false with no error.
func (r *Repository) InsertMeasure(ctx context.Context, m *db.Measure) (bool, error) {
	query := `
		INSERT INTO measures (uuid, value, datetime, type, confirmed, customer_code, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (customer_code, type, (date_trunc('month', datetime))) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		m.UUID,
		m.Value,
		m.Datetime,
		m.Type,
		m.Confirmed,
		m.CustomerCode,
		m.URL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert measure: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ExistsForPeriod reports whether a measure already exists for the given
// customer, type and billing period. Only year and month of the stored date
// participate in the check.
func (r *Repository) ExistsForPeriod(ctx context.Context, customerCode, measureType string, year, month int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM measures
			WHERE customer_code = $1
			  AND type = $2
			  AND EXTRACT(YEAR FROM datetime) = $3
			  AND EXTRACT(MONTH FROM datetime) = $4
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, customerCode, measureType, year, month).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check billing period: %w", err)
	}

	return exists, nil
}

// GetMeasure retrieves a measure by its identifier. Returns nil when no
// measure exists.
func (r *Repository) GetMeasure(ctx context.Context, uuid string) (*db.Measure, error) {
	query := `
		SELECT uuid, value, datetime, type, confirmed, customer_code, url
		FROM measures
		WHERE uuid = $1
	`

	var m db.Measure
	err := r.pool.QueryRow(ctx, query, uuid).Scan(
		&m.UUID,
		&m.Value,
		&m.Datetime,
		&m.Type,
		&m.Confirmed,
		&m.CustomerCode,
		&m.URL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measure: %w", err)
	}

	return &m, nil
}

// ConfirmMeasure sets confirmed and overwrites the value in one conditional
// write. Returns false when the measure was already confirmed or does not
// exist; two concurrent confirmations cannot both succeed.
func (r *Repository) ConfirmMeasure(ctx context.Context, uuid string, confirmedValue int) (bool, error) {
	query := `
		UPDATE measures
		SET confirmed = true, value = $2
		WHERE uuid = $1 AND confirmed = false
	`

	tag, err := r.pool.Exec(ctx, query, uuid, confirmedValue)
	if err != nil {
		return false, fmt.Errorf("failed to confirm measure: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListMeasures returns all measures for a customer, newest first, optionally
// filtered by type. An empty measureType means no type filter.
func (r *Repository) ListMeasures(ctx context.Context, customerCode, measureType string) ([]db.Measure, error) {
	query := `
		SELECT uuid, value, datetime, type, confirmed, customer_code, url
		FROM measures
		WHERE customer_code = $1
		  AND ($2 = '' OR type = $2)
		ORDER BY datetime DESC
	`

	rows, err := r.pool.Query(ctx, query, customerCode, measureType)
	if err != nil {
		return nil, fmt.Errorf("failed to query measures: %w", err)
	}
	defer rows.Close()

	var measures []db.Measure
	for rows.Next() {
		var m db.Measure
		if err := rows.Scan(
			&m.UUID,
			&m.Value,
			&m.Datetime,
			&m.Type,
			&m.Confirmed,
			&m.CustomerCode,
			&m.URL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan measure: %w", err)
		}
		measures = append(measures, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return measures, nil
}

// RecentValues returns the most recent reading values for a customer and
// type, newest first, for the plausibility check.
func (r *Repository) RecentValues(ctx context.Context, customerCode, measureType string, limit int) ([]int, error) {
	query := `
		SELECT value
		FROM measures
		WHERE customer_code = $1 AND type = $2
		ORDER BY datetime DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, customerCode, measureType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent values: %w", err)
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var value int
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return values, nil
}
