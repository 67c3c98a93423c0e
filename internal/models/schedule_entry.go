package models

import "time"

// ScheduleEntry is one cell of the timetable grid. SessionID is nil for an
// empty cell: group skeletons are carved as nil-session rows when the group
// is provisioned, so the grid exists before anything is placed. At most one
// active entry may exist per (period, block, cycle, group label).
type ScheduleEntry struct {
	ID         string    `db:"id" json:"id"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
	BlockID    string    `db:"block_id" json:"block_id"`
	RoomID     *string   `db:"room_id" json:"room_id,omitempty"`
	PeriodID   string    `db:"period_id" json:"period_id"`
	Cycle      int       `db:"cycle" json:"cycle"`
	GroupLabel string    `db:"group_label" json:"group_label"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleEntryDetail is the occupancy read model: an occupied cell joined
// with its session, group and block so clash checks resolve in one pass.
type ScheduleEntryDetail struct {
	ScheduleEntry
	GroupID       *string `db:"group_id" json:"group_id,omitempty"`
	GroupName     *string `db:"group_name" json:"group_name,omitempty"`
	TeacherID     *string `db:"teacher_id" json:"teacher_id,omitempty"`
	CourseName    *string `db:"course_name" json:"course_name,omitempty"`
	SessionKind   *string `db:"session_kind" json:"session_kind,omitempty"`
	Weekday       int     `db:"weekday" json:"weekday"`
	BlockOrder    int     `db:"block_order" json:"block_order"`
	BlockStart    string  `db:"block_start" json:"block_start"`
	BlockEnd      string  `db:"block_end" json:"block_end"`
	RoomName      *string `db:"room_name" json:"room_name,omitempty"`
	DurationHours *int    `db:"duration_hours" json:"duration_hours,omitempty"`
}

// ConflictKind classifies why a candidate placement is illegal.
type ConflictKind string

const (
	ConflictAlreadyComplete ConflictKind = "SESSION_COMPLETE"
	ConflictGroup           ConflictKind = "GROUP"
	ConflictTeacher         ConflictKind = "TEACHER"
	ConflictRoom            ConflictKind = "ROOM"
	ConflictRestriction     ConflictKind = "RESTRICTION"
)

// ConflictReason is one violated placement rule. Validation returns every
// applicable reason so callers can show the full diagnosis at once.
type ConflictReason struct {
	Kind     ConflictKind `json:"kind"`
	Message  string       `json:"message"`
	Blocking bool         `json:"blocking"`
	EntryID  string       `json:"entry_id,omitempty"`
}

// PlacementConflictError carries the complete reason list across the error
// boundary for the interactive assignment path.
type PlacementConflictError struct {
	SessionID string           `json:"session_id"`
	BlockID   string           `json:"block_id"`
	Reasons   []ConflictReason `json:"reasons"`
}

// Error implements the error interface.
func (e *PlacementConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Reasons) == 0 {
		return "placement rejected"
	}
	return e.Reasons[0].Message
}
