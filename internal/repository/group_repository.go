package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

const groupDetailQuery = `
	SELECT g.id, g.name, g.opened_course_id, g.teacher_id, g.shift_id, g.seats, g.active, g.created_at, g.updated_at,
	       c.name AS course_name, c.cycle, oc.period_id, c.theory_hours, c.practice_hours,
	       t.full_name AS teacher_name
	FROM groups g
	JOIN opened_courses oc ON oc.id = g.opened_course_id
	JOIN courses c ON c.id = oc.course_id
	LEFT JOIN teachers t ON t.id = g.teacher_id`

// GroupRepository provides persistence for student groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindDetail loads a group with its course, period and teacher resolved.
func (r *GroupRepository) FindDetail(ctx context.Context, id string) (*models.GroupDetail, error) {
	query := groupDetailQuery + ` WHERE g.id = $1`
	var group models.GroupDetail
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListActiveByPeriod returns every active group opened in a period.
func (r *GroupRepository) ListActiveByPeriod(ctx context.Context, periodID string) ([]models.GroupDetail, error) {
	query := groupDetailQuery + ` WHERE oc.period_id = $1 AND g.active ORDER BY c.cycle ASC, c.name ASC, g.name ASC`
	var groups []models.GroupDetail
	if err := r.db.SelectContext(ctx, &groups, query, periodID); err != nil {
		return nil, fmt.Errorf("list groups by period: %w", err)
	}
	return groups, nil
}

// CountByOpenedCourse counts existing groups of an offering, used to pick
// the next letter name during batch provisioning.
func (r *GroupRepository) CountByOpenedCourse(ctx context.Context, openedCourseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM groups WHERE opened_course_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, openedCourseID); err != nil {
		return 0, fmt.Errorf("count groups by opened course: %w", err)
	}
	return count, nil
}

// CreateWithTx inserts a group inside an open transaction.
func (r *GroupRepository) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	group.Active = true

	const query = `INSERT INTO groups (id, name, opened_course_id, teacher_id, shift_id, seats, active, created_at, updated_at) VALUES (:id, :name, :opened_course_id, :teacher_id, :shift_id, :seats, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// UpdateTeacher rebinds a group's teacher inside an open transaction. A nil
// teacher leaves the group vacant.
func (r *GroupRepository) UpdateTeacher(ctx context.Context, exec sqlx.ExtContext, groupID string, teacherID *string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE groups SET teacher_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, groupID, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update group teacher: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a group inside an open transaction.
func (r *GroupRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, groupID string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE groups SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, groupID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate group: %w", err)
	}
	return nil
}

// SumAssignedHours recomputes a teacher's weekly load in a period from the
// live group set. Runs on the given executor so it observes rows flushed in
// the surrounding transaction before they commit.
func (r *GroupRepository) SumAssignedHours(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string) (int, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `
		SELECT COALESCE(SUM(c.theory_hours + c.practice_hours), 0)
		FROM groups g
		JOIN opened_courses oc ON oc.id = g.opened_course_id
		JOIN courses c ON c.id = oc.course_id
		WHERE g.teacher_id = $1 AND oc.period_id = $2 AND g.active`
	row := exec.QueryRowxContext(ctx, query, teacherID, periodID)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum assigned hours: %w", err)
	}
	return total, nil
}
