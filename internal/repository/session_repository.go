package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// SessionRepository provides persistence for group sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID loads a session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, group_id, kind, duration_hours, active, created_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindContext loads a session joined with the group data placement checks
// need (teacher, shift, cycle, label).
func (r *SessionRepository) FindContext(ctx context.Context, sessionID string) (*models.PendingSession, error) {
	const query = `
		SELECT s.id AS session_id, g.id AS group_id, g.name AS group_name, g.shift_id, g.teacher_id, c.cycle, s.duration_hours
		FROM sessions s
		JOIN groups g ON g.id = s.group_id
		JOIN opened_courses oc ON oc.id = g.opened_course_id
		JOIN courses c ON c.id = oc.course_id
		WHERE s.id = $1 AND s.active`
	var session models.PendingSession
	if err := r.db.GetContext(ctx, &session, query, sessionID); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListPendingByPeriod returns sessions of a period that still need blocks:
// active sessions whose count of active entries is below their duration.
// Passing a cycle narrows the batch to that academic cycle.
func (r *SessionRepository) ListPendingByPeriod(ctx context.Context, periodID string, cycle *int) ([]models.PendingSession, error) {
	query := `
		SELECT s.id AS session_id, g.id AS group_id, g.name AS group_name, g.shift_id, g.teacher_id, c.cycle, s.duration_hours
		FROM sessions s
		JOIN groups g ON g.id = s.group_id
		JOIN opened_courses oc ON oc.id = g.opened_course_id
		JOIN courses c ON c.id = oc.course_id
		WHERE oc.period_id = $1 AND s.active AND g.active
		  AND (SELECT COUNT(*) FROM schedule_entries e WHERE e.session_id = s.id AND e.active) < s.duration_hours`
	args := []interface{}{periodID}
	if cycle != nil {
		query += ` AND c.cycle = $2`
		args = append(args, *cycle)
	}
	query += ` ORDER BY s.duration_hours DESC, s.id ASC`

	var sessions []models.PendingSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	return sessions, nil
}

// ListIDsByGroup returns the session ids of a group, active or not.
func (r *SessionRepository) ListIDsByGroup(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT id FROM sessions WHERE group_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list session ids by group: %w", err)
	}
	return ids, nil
}

// CreateWithTx inserts a session inside an open transaction.
func (r *SessionRepository) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.Active = true

	const query = `INSERT INTO sessions (id, group_id, kind, duration_hours, active, created_at) VALUES (:id, :group_id, :kind, :duration_hours, :active, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// DeactivateByGroup soft-deletes every session of a group inside an open
// transaction.
func (r *SessionRepository) DeactivateByGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE sessions SET active = FALSE WHERE group_id = $1`
	if _, err := exec.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("deactivate sessions by group: %w", err)
	}
	return nil
}
