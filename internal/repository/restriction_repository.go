package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// RestrictionRepository provides read access to scheduling restrictions.
type RestrictionRepository struct {
	db *sqlx.DB
}

// NewRestrictionRepository creates a new restriction repository.
func NewRestrictionRepository(db *sqlx.DB) *RestrictionRepository {
	return &RestrictionRepository{db: db}
}

// ListActiveByTarget returns the active restrictions bound to one entity,
// including period-agnostic rules (NULL period) alongside period-scoped
// ones.
func (r *RestrictionRepository) ListActiveByTarget(ctx context.Context, targetKind models.RestrictionTarget, targetID, periodID string) ([]models.Restriction, error) {
	const query = `SELECT id, kind, target_kind, target_id, period_id, rule, weight, active, created_at FROM restrictions WHERE target_kind = $1 AND target_id = $2 AND active AND (period_id IS NULL OR period_id = $3)`
	var restrictions []models.Restriction
	if err := r.db.SelectContext(ctx, &restrictions, query, targetKind, targetID, periodID); err != nil {
		return nil, fmt.Errorf("list restrictions by target: %w", err)
	}
	return restrictions, nil
}

// ListActiveSystem returns the period's system-wide restrictions.
func (r *RestrictionRepository) ListActiveSystem(ctx context.Context, periodID string) ([]models.Restriction, error) {
	const query = `SELECT id, kind, target_kind, target_id, period_id, rule, weight, active, created_at FROM restrictions WHERE target_kind = 'SYSTEM' AND active AND (period_id IS NULL OR period_id = $1)`
	var restrictions []models.Restriction
	if err := r.db.SelectContext(ctx, &restrictions, query, periodID); err != nil {
		return nil, fmt.Errorf("list system restrictions: %w", err)
	}
	return restrictions, nil
}

// ListActiveTeacherRestrictions loads the day-blocking rules for every
// teacher at once so the generator can seed its arena without per-session
// queries.
func (r *RestrictionRepository) ListActiveTeacherRestrictions(ctx context.Context, periodID string) ([]models.Restriction, error) {
	const query = `SELECT id, kind, target_kind, target_id, period_id, rule, weight, active, created_at FROM restrictions WHERE target_kind = 'TEACHER' AND active AND (period_id IS NULL OR period_id = $1)`
	var restrictions []models.Restriction
	if err := r.db.SelectContext(ctx, &restrictions, query, periodID); err != nil {
		return nil, fmt.Errorf("list teacher restrictions: %w", err)
	}
	return restrictions, nil
}
