package models

import "time"

// Group is one student cohort of an opened course. TeacherID may be nil: a
// vacant group can be scheduled, it just skips teacher clash checks.
type Group struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	OpenedCourseID string    `db:"opened_course_id" json:"opened_course_id"`
	TeacherID      *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	ShiftID        string    `db:"shift_id" json:"shift_id"`
	Seats          int       `db:"seats" json:"seats"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// GroupDetail enriches a group with course and teacher context for reads.
type GroupDetail struct {
	Group
	CourseName    string  `db:"course_name" json:"course_name"`
	Cycle         int     `db:"cycle" json:"cycle"`
	PeriodID      string  `db:"period_id" json:"period_id"`
	TheoryHours   int     `db:"theory_hours" json:"theory_hours"`
	PracticeHours int     `db:"practice_hours" json:"practice_hours"`
	TeacherName   *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// SessionKind distinguishes the two delivery kinds a group may require.
type SessionKind string

const (
	SessionTheory   SessionKind = "THEORY"
	SessionPractice SessionKind = "PRACTICE"
)

// Session is one recurring weekly meeting requirement of a group. Its
// DurationHours must be covered by that many active schedule entries, never
// more. Sessions are created with their group and only soft-deactivated.
type Session struct {
	ID            string      `db:"id" json:"id"`
	GroupID       string      `db:"group_id" json:"group_id"`
	Kind          SessionKind `db:"kind" json:"kind"`
	DurationHours int         `db:"duration_hours" json:"duration_hours"`
	Active        bool        `db:"active" json:"active"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// PendingSession is the generator's read model: a session that still needs
// placement, joined with the group data the occupancy checks require.
type PendingSession struct {
	SessionID     string  `db:"session_id" json:"session_id"`
	GroupID       string  `db:"group_id" json:"group_id"`
	GroupName     string  `db:"group_name" json:"group_name"`
	ShiftID       string  `db:"shift_id" json:"shift_id"`
	TeacherID     *string `db:"teacher_id" json:"teacher_id,omitempty"`
	Cycle         int     `db:"cycle" json:"cycle"`
	DurationHours int     `db:"duration_hours" json:"duration_hours"`
}
