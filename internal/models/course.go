package models

import "time"

// Course is a catalogue entry carrying the weekly hour demand split by
// delivery kind. Cycle is the academic cycle (semester level) the course
// belongs to.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Cycle         int       `db:"cycle" json:"cycle"`
	TheoryHours   int       `db:"theory_hours" json:"theory_hours"`
	PracticeHours int       `db:"practice_hours" json:"practice_hours"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TotalHours is the weekly load one group of this course puts on a teacher.
func (c Course) TotalHours() int {
	return c.TheoryHours + c.PracticeHours
}

// OpenedCourse is a course offered within a concrete period.
type OpenedCourse struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	PeriodID  string    `db:"period_id" json:"period_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OpenedCourseDetail joins the offering with its catalogue data.
type OpenedCourseDetail struct {
	OpenedCourse
	CourseName    string `db:"course_name" json:"course_name"`
	Cycle         int    `db:"cycle" json:"cycle"`
	TheoryHours   int    `db:"theory_hours" json:"theory_hours"`
	PracticeHours int    `db:"practice_hours" json:"practice_hours"`
}
