package dto

// CreateGroupBatchRequest provisions N groups for an opened course. Every
// group gets its sessions (one per delivery kind with hours > 0) and an
// empty timetable skeleton carved from its shift's active blocks.
type CreateGroupBatchRequest struct {
	OpenedCourseID string  `json:"openedCourseId" validate:"required"`
	ShiftID        string  `json:"shiftId" validate:"required"`
	Count          int     `json:"count" validate:"required,min=1,max=10"`
	TeacherID      *string `json:"teacherId,omitempty"`
	SeatsPerGroup  int     `json:"seatsPerGroup" validate:"required,min=1"`
}

// CreateGroupBatchResult reports the provisioned group ids.
type CreateGroupBatchResult struct {
	GroupIDs      []string `json:"groupIds"`
	SessionsMade  int      `json:"sessionsMade"`
	CellsCarved   int      `json:"cellsCarved"`
	AssignedHours int      `json:"assignedHours"`
}

// UpdateGroupTeacherRequest rebinds a group to a teacher. A nil TeacherID
// leaves the group vacant.
type UpdateGroupTeacherRequest struct {
	TeacherID *string `json:"teacherId"`
}
