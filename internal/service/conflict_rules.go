package service

import (
	"fmt"

	"github.com/acadplan/timetable-api/internal/models"
)

// slotRef locates a candidate cell. BlockID is set on the interactive
// path, where occupancy must be answered per block; the generator works
// positionally and leaves it empty while probing.
type slotRef struct {
	BlockID string
	Weekday int
	Order   int
}

// slotOracle answers the occupancy questions the placement rules ask. Two
// index modes exist: a grid index built from the persisted timetable for
// interactive validation, and the generator's run-scoped arena mutated as
// placements are made. Both paths share one rule definition.
type slotOracle interface {
	AssignedCount(sessionID string, slot slotRef) int
	GroupBusy(groupID, sessionID string, slot slotRef) (string, bool)
	TeacherBusy(teacherID, sessionID string, slot slotRef) (string, bool)
	RoomBusy(roomID, sessionID string, slot slotRef) (string, bool)
	DayRestrictions(teacherID, roomID *string, weekday int) []models.Restriction
}

// evaluatePlacement applies every placement rule for a candidate slot and
// returns all violations at once; it never short-circuits on the first hit.
func evaluatePlacement(session models.PendingSession, slot slotRef, roomID *string, oracle slotOracle) []models.ConflictReason {
	reasons := make([]models.ConflictReason, 0, 2)

	if oracle.AssignedCount(session.SessionID, slot) >= session.DurationHours {
		reasons = append(reasons, models.ConflictReason{
			Kind:     models.ConflictAlreadyComplete,
			Message:  fmt.Sprintf("session %s already occupies its %d weekly blocks", session.SessionID, session.DurationHours),
			Blocking: true,
		})
	}

	if entryID, busy := oracle.GroupBusy(session.GroupID, session.SessionID, slot); busy {
		reasons = append(reasons, models.ConflictReason{
			Kind:     models.ConflictGroup,
			Message:  fmt.Sprintf("group %s is already occupied on weekday %d block %d", session.GroupName, slot.Weekday, slot.Order),
			Blocking: true,
			EntryID:  entryID,
		})
	}

	if session.TeacherID != nil {
		if entryID, busy := oracle.TeacherBusy(*session.TeacherID, session.SessionID, slot); busy {
			reasons = append(reasons, models.ConflictReason{
				Kind:     models.ConflictTeacher,
				Message:  fmt.Sprintf("teacher %s is already teaching on weekday %d block %d", *session.TeacherID, slot.Weekday, slot.Order),
				Blocking: true,
				EntryID:  entryID,
			})
		}
	}

	if roomID != nil {
		if entryID, busy := oracle.RoomBusy(*roomID, session.SessionID, slot); busy {
			reasons = append(reasons, models.ConflictReason{
				Kind:     models.ConflictRoom,
				Message:  fmt.Sprintf("room %s is already occupied on weekday %d block %d", *roomID, slot.Weekday, slot.Order),
				Blocking: true,
				EntryID:  entryID,
			})
		}
	}

	for _, restriction := range oracle.DayRestrictions(session.TeacherID, roomID, slot.Weekday) {
		if blocked, ok := restriction.BlockedWeekday(); ok && blocked == slot.Weekday {
			reasons = append(reasons, models.ConflictReason{
				Kind:     models.ConflictRestriction,
				Message:  fmt.Sprintf("weekday %d is blocked for %s %s", slot.Weekday, restriction.TargetKind, restriction.TargetID),
				Blocking: restriction.Hard(),
			})
		}
	}

	return reasons
}

// blocking reports whether any reason forbids the placement. Soft
// restriction hits stay in the list as advisories.
func blocking(reasons []models.ConflictReason) bool {
	for _, reason := range reasons {
		if reason.Blocking {
			return true
		}
	}
	return false
}

type occupancyKey struct {
	ID      string
	BlockID string
	Weekday int
	Order   int
}

type occupant struct {
	EntryID   string
	SessionID string
}

// occupancyIndex is an in-memory snapshot of who holds which slot.
//
// Grid mode keys teacher, room and group occupancy by block id, so
// parallel shifts that reuse order numbers never shadow each other, and
// it ignores entries owned by the candidate session itself: moving or
// re-validating a session onto a cell it already holds is legal.
//
// Arena mode keys positionally by (weekday, order). The generator places
// whole runs inside one shift grid, and a slot the session reserved
// earlier in the run must stay busy for it.
type occupancyIndex struct {
	grid         bool
	counts       map[string]int
	held         map[string]map[string]bool
	groups       map[occupancyKey]occupant
	teachers     map[occupancyKey]occupant
	rooms        map[occupancyKey]occupant
	restrictions []models.Restriction
}

func newOccupancyIndex(grid bool) *occupancyIndex {
	return &occupancyIndex{
		grid:     grid,
		counts:   make(map[string]int),
		held:     make(map[string]map[string]bool),
		groups:   make(map[occupancyKey]occupant),
		teachers: make(map[occupancyKey]occupant),
		rooms:    make(map[occupancyKey]occupant),
	}
}

// newGridIndex builds the interactive-path index from the persisted grid.
func newGridIndex() *occupancyIndex {
	return newOccupancyIndex(true)
}

// newArenaIndex builds the generator's run-scoped index.
func newArenaIndex() *occupancyIndex {
	return newOccupancyIndex(false)
}

func (idx *occupancyIndex) key(id string, slot slotRef) occupancyKey {
	if idx.grid {
		return occupancyKey{ID: id, BlockID: slot.BlockID}
	}
	return occupancyKey{ID: id, Weekday: slot.Weekday, Order: slot.Order}
}

// Seed loads the persisted occupancy of a period. Empty skeleton cells
// carry no session and are skipped.
func (idx *occupancyIndex) Seed(entries []models.ScheduleEntryDetail) {
	for _, entry := range entries {
		if entry.SessionID == nil {
			continue
		}
		slot := slotRef{BlockID: entry.BlockID, Weekday: entry.Weekday, Order: entry.BlockOrder}
		occ := occupant{EntryID: entry.ID, SessionID: *entry.SessionID}
		idx.count(*entry.SessionID, entry.BlockID)
		if entry.GroupID != nil {
			idx.groups[idx.key(*entry.GroupID, slot)] = occ
		}
		if entry.TeacherID != nil {
			idx.teachers[idx.key(*entry.TeacherID, slot)] = occ
		}
		if entry.RoomID != nil {
			idx.rooms[idx.key(*entry.RoomID, slot)] = occ
		}
	}
}

// SeedRestrictions attaches the active restriction set consulted by
// DayRestrictions.
func (idx *occupancyIndex) SeedRestrictions(restrictions []models.Restriction) {
	idx.restrictions = append(idx.restrictions, restrictions...)
}

// Reserve marks one slot taken by a session, keeping the index consistent
// with placements made during a generator run.
func (idx *occupancyIndex) Reserve(session models.PendingSession, slot slotRef, roomID *string, entryID string) {
	occ := occupant{EntryID: entryID, SessionID: session.SessionID}
	idx.count(session.SessionID, slot.BlockID)
	idx.groups[idx.key(session.GroupID, slot)] = occ
	if session.TeacherID != nil {
		idx.teachers[idx.key(*session.TeacherID, slot)] = occ
	}
	if roomID != nil {
		idx.rooms[idx.key(*roomID, slot)] = occ
	}
}

func (idx *occupancyIndex) count(sessionID, blockID string) {
	idx.counts[sessionID]++
	if blockID == "" {
		return
	}
	if idx.held[sessionID] == nil {
		idx.held[sessionID] = make(map[string]bool)
	}
	idx.held[sessionID][blockID] = true
}

// AssignedCount reports how many blocks the session occupies, not counting
// an entry it already holds at the candidate block.
func (idx *occupancyIndex) AssignedCount(sessionID string, slot slotRef) int {
	n := idx.counts[sessionID]
	if slot.BlockID != "" && idx.held[sessionID][slot.BlockID] {
		n--
	}
	return n
}

func (idx *occupancyIndex) GroupBusy(groupID, sessionID string, slot slotRef) (string, bool) {
	return idx.busy(idx.groups, groupID, sessionID, slot)
}

func (idx *occupancyIndex) TeacherBusy(teacherID, sessionID string, slot slotRef) (string, bool) {
	return idx.busy(idx.teachers, teacherID, sessionID, slot)
}

func (idx *occupancyIndex) RoomBusy(roomID, sessionID string, slot slotRef) (string, bool) {
	return idx.busy(idx.rooms, roomID, sessionID, slot)
}

func (idx *occupancyIndex) busy(m map[occupancyKey]occupant, id, sessionID string, slot slotRef) (string, bool) {
	occ, ok := m[idx.key(id, slot)]
	if !ok {
		return "", false
	}
	if idx.grid && occ.SessionID == sessionID {
		return "", false
	}
	return occ.EntryID, true
}

func (idx *occupancyIndex) DayRestrictions(teacherID, roomID *string, weekday int) []models.Restriction {
	var applicable []models.Restriction
	for _, restriction := range idx.restrictions {
		switch restriction.TargetKind {
		case models.TargetTeacher:
			if teacherID == nil || restriction.TargetID != *teacherID {
				continue
			}
		case models.TargetRoom:
			if roomID == nil || restriction.TargetID != *roomID {
				continue
			}
		case models.TargetSystem:
		default:
			continue
		}
		applicable = append(applicable, restriction)
	}
	return applicable
}
