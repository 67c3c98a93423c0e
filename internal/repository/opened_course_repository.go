package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// OpenedCourseRepository provides read access to period course offerings.
type OpenedCourseRepository struct {
	db *sqlx.DB
}

// NewOpenedCourseRepository creates a new opened course repository.
func NewOpenedCourseRepository(db *sqlx.DB) *OpenedCourseRepository {
	return &OpenedCourseRepository{db: db}
}

// FindDetail loads an offering joined with its catalogue course.
func (r *OpenedCourseRepository) FindDetail(ctx context.Context, id string) (*models.OpenedCourseDetail, error) {
	const query = `
		SELECT oc.id, oc.course_id, oc.period_id, oc.created_at,
		       c.name AS course_name, c.cycle, c.theory_hours, c.practice_hours
		FROM opened_courses oc
		JOIN courses c ON c.id = oc.course_id
		WHERE oc.id = $1`
	var detail models.OpenedCourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}
