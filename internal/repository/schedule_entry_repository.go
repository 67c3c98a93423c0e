package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/acadplan/timetable-api/internal/models"
)

// uniqueViolation is the Postgres error code raised when the active-cell
// uniqueness constraint on (period_id, block_id, cycle, group_label) trips.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint violation,
// the storage layer's last line of defense against concurrent placements.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

const entryDetailColumns = `
	e.id, e.session_id, e.block_id, e.room_id, e.period_id, e.cycle, e.group_label, e.active, e.created_at, e.updated_at,
	g.id AS group_id, g.name AS group_name, g.teacher_id,
	c.name AS course_name, s.kind AS session_kind, s.duration_hours,
	b.weekday, b.block_order, b.start_time AS block_start, b.end_time AS block_end,
	r.name AS room_name`

const entryDetailJoins = `
	FROM schedule_entries e
	JOIN blocks b ON b.id = e.block_id
	LEFT JOIN sessions s ON s.id = e.session_id
	LEFT JOIN groups g ON g.id = s.group_id
	LEFT JOIN opened_courses oc ON oc.id = g.opened_course_id
	LEFT JOIN courses c ON c.id = oc.course_id
	LEFT JOIN rooms r ON r.id = e.room_id`

// ScheduleEntryRepository provides persistence for timetable grid cells.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository creates a new schedule entry repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

// ListActiveByPeriod returns every active cell of a period with session,
// group, block and room context resolved. Seeds the generator's occupancy
// arena and backs the grid read model.
func (r *ScheduleEntryRepository) ListActiveByPeriod(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.period_id = $1 AND e.active ORDER BY b.weekday ASC, b.block_order ASC, e.group_label ASC`, entryDetailColumns, entryDetailJoins)
	var entries []models.ScheduleEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, periodID); err != nil {
		return nil, fmt.Errorf("list entries by period: %w", err)
	}
	return entries, nil
}

// CountActiveBySession counts the blocks a session already occupies in a
// period, used to enforce the duration quota.
func (r *ScheduleEntryRepository) CountActiveBySession(ctx context.Context, sessionID, periodID string) (int, error) {
	const query = `SELECT COUNT(*) FROM schedule_entries WHERE session_id = $1 AND period_id = $2 AND active`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID, periodID); err != nil {
		return 0, fmt.Errorf("count entries by session: %w", err)
	}
	return count, nil
}

// FindByID loads one cell.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	const query = `SELECT id, session_id, block_id, room_id, period_id, cycle, group_label, active, created_at, updated_at FROM schedule_entries WHERE id = $1`
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindCell locates the grid cell addressed by its denormalized key.
func (r *ScheduleEntryRepository) FindCell(ctx context.Context, periodID, blockID string, cycle int, groupLabel string) (*models.ScheduleEntry, error) {
	const query = `SELECT id, session_id, block_id, room_id, period_id, cycle, group_label, active, created_at, updated_at FROM schedule_entries WHERE period_id = $1 AND block_id = $2 AND cycle = $3 AND group_label = $4 AND active`
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, periodID, blockID, cycle, groupLabel); err != nil {
		return nil, err
	}
	return &entry, nil
}

// AssignSession fills a cell with a session and optional room.
func (r *ScheduleEntryRepository) AssignSession(ctx context.Context, exec sqlx.ExtContext, entryID, sessionID string, roomID *string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE schedule_entries SET session_id = $2, room_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, entryID, sessionID, roomID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign session to cell: %w", err)
	}
	return nil
}

// ClearCell resets a cell to the empty skeleton state instead of deleting
// the row, so the carved grid survives.
func (r *ScheduleEntryRepository) ClearCell(ctx context.Context, entryID string) error {
	const query = `UPDATE schedule_entries SET session_id = NULL, room_id = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, entryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear cell: %w", err)
	}
	return nil
}

// InsertBatch creates cells inside an open transaction; used for skeleton
// carving at group provisioning and for committed placements without a
// pre-carved cell.
func (r *ScheduleEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if exec == nil {
		exec = r.db
	}
	now := time.Now().UTC()
	for i := range entries {
		payload := entries[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now

		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO schedule_entries (id, session_id, block_id, room_id, period_id, cycle, group_label, active, created_at, updated_at) VALUES (:id, :session_id, :block_id, :room_id, :period_id, :cycle, :group_label, :active, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
		entries[i] = payload
	}
	return nil
}

// DeactivateBySessions soft-deletes every cell referencing the sessions,
// part of group teardown.
func (r *ScheduleEntryRepository) DeactivateBySessions(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}
	query, args, err := sqlx.In(`UPDATE schedule_entries SET active = FALSE, updated_at = NOW() WHERE session_id IN (?)`, sessionIDs)
	if err != nil {
		return fmt.Errorf("build deactivate query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate entries by sessions: %w", err)
	}
	return nil
}
