package dto

import "github.com/acadplan/timetable-api/internal/models"

// ValidatePlacementRequest asks whether a session may occupy a block.
type ValidatePlacementRequest struct {
	SessionID string  `json:"sessionId" validate:"required"`
	BlockID   string  `json:"blockId" validate:"required"`
	PeriodID  string  `json:"periodId" validate:"required"`
	RoomID    *string `json:"roomId,omitempty"`
}

// ValidatePlacementResponse lists every violated rule; Legal is true when
// no blocking reason remains.
type ValidatePlacementResponse struct {
	Legal   bool                    `json:"legal"`
	Reasons []models.ConflictReason `json:"reasons"`
}

// AssignPlacementRequest commits a validated placement to the grid.
type AssignPlacementRequest struct {
	SessionID string  `json:"sessionId" validate:"required"`
	BlockID   string  `json:"blockId" validate:"required"`
	PeriodID  string  `json:"periodId" validate:"required"`
	RoomID    *string `json:"roomId,omitempty"`
}

// ClearPlacementRequest resets one grid cell back to its empty state.
type ClearPlacementRequest struct {
	EntryID string `json:"entryId" validate:"required"`
}

// GenerateTimetableRequest runs the bulk allocator for a period, optionally
// scoped to one academic cycle. Seed overrides the configured RNG seed so
// operators can replay a run.
type GenerateTimetableRequest struct {
	PeriodID string `json:"periodId" validate:"required"`
	Cycle    *int   `json:"cycle,omitempty" validate:"omitempty,min=1,max=14"`
	Seed     *int64 `json:"seed,omitempty"`
}

// SessionPlacement is one run of contiguous blocks assigned to a session.
type SessionPlacement struct {
	SessionID  string `json:"sessionId"`
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	Weekday    int    `json:"weekday"`
	StartOrder int    `json:"startOrder"`
	Duration   int    `json:"duration"`
}

// GenerationStats summarises a generator run. Truncated counts sessions
// cut by the batch cap; they are reported as unplaced so nothing drops
// out of the result silently.
type GenerationStats struct {
	Attempted int `json:"attempted"`
	Placed    int `json:"placed"`
	Unplaced  int `json:"unplaced"`
	Truncated int `json:"truncated"`
}

// GenerateTimetableResponse returns a persistable proposal plus the
// sessions the first-fit pass could not place. Unplaced sessions are part
// of the normal partial result, not an error.
type GenerateTimetableResponse struct {
	ProposalID         string             `json:"proposalId"`
	Placements         []SessionPlacement `json:"placements"`
	UnplacedSessionIDs []string           `json:"unplacedSessionIds"`
	Stats              GenerationStats    `json:"stats"`
}

// CommitTimetableRequest persists a previously generated proposal.
type CommitTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
}

// CommitTimetableResult reports which placements survived commit-time
// re-validation against the live grid.
type CommitTimetableResult struct {
	Committed int                 `json:"committed"`
	Rejected  []RejectedPlacement `json:"rejected,omitempty"`
}

// RejectedPlacement is a proposal cell that failed commit-time validation,
// usually because the grid moved underneath the proposal.
type RejectedPlacement struct {
	SessionID string                  `json:"sessionId"`
	BlockID   string                  `json:"blockId"`
	Reasons   []models.ConflictReason `json:"reasons"`
}
