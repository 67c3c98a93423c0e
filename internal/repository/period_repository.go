package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

const periodColumns = `id, name, start_date, end_date, active, created_at, updated_at`

// PeriodRepository handles database operations for academic periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository creates a new PeriodRepository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// FindByID fetches a period by its identifier.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM periods WHERE id = $1`, periodColumns)
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// ListActive returns all active periods ordered by start date, newest first.
func (r *PeriodRepository) ListActive(ctx context.Context) ([]models.Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM periods WHERE active ORDER BY start_date DESC`, periodColumns)
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list active periods: %w", err)
	}
	return periods, nil
}
