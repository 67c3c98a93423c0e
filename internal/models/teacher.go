package models

import "time"

// Teacher models an instructor who may be bound to groups via contracts.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Contract authorises a teacher to teach within a date range and carries the
// weekly hour cap enforced before any group binding is committed.
type Contract struct {
	ID              string    `db:"id" json:"id"`
	TeacherID       string    `db:"teacher_id" json:"teacher_id"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	WeeklyHourCap   int       `db:"weekly_hour_cap" json:"weekly_hour_cap"`
	PreferredShifts string    `db:"preferred_shifts" json:"preferred_shifts"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Availability is the cached per-period counter of a teacher's assigned
// hours. It is always recomputed in full from the live group set, never
// patched incrementally.
type Availability struct {
	ID            string    `db:"id" json:"id"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	PeriodID      string    `db:"period_id" json:"period_id"`
	AssignedHours int       `db:"assigned_hours" json:"assigned_hours"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
