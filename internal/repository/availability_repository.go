package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// AvailabilityRepository persists the cached per-period hour counters.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Get reads the counter for (teacher, period). sql.ErrNoRows means the
// teacher has never been assigned in the period; callers treat that as 0.
func (r *AvailabilityRepository) Get(ctx context.Context, teacherID, periodID string) (*models.Availability, error) {
	const query = `SELECT id, teacher_id, period_id, assigned_hours, updated_at FROM availabilities WHERE teacher_id = $1 AND period_id = $2`
	var availability models.Availability
	if err := r.db.GetContext(ctx, &availability, query, teacherID, periodID); err != nil {
		return nil, err
	}
	return &availability, nil
}

// Upsert writes the recomputed counter, replacing whatever value was
// cached. Runs on the supplied executor so recomputation can happen inside
// the transaction that changed the group set.
func (r *AvailabilityRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string, hours int) error {
	if exec == nil {
		exec = r.db
	}
	const query = `
		INSERT INTO availabilities (id, teacher_id, period_id, assigned_hours, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (teacher_id, period_id)
		DO UPDATE SET assigned_hours = EXCLUDED.assigned_hours, updated_at = EXCLUDED.updated_at`
	if _, err := exec.ExecContext(ctx, query, uuid.NewString(), teacherID, periodID, hours, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}
