package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

func TestPlacementValidateLegalSlot(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{})

	resp, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Legal)
	assert.Empty(t, resp.Reasons)
}

func TestPlacementValidateReportsEveryReason(t *testing.T) {
	teacher := "teacher-1"
	otherSession := "sess-other"
	fixture := newPlacementFixture(placementFixtureConfig{
		entries: []models.ScheduleEntryDetail{
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-busy", SessionID: &otherSession, BlockID: "block-1", Active: true},
				GroupID:       strPtr("group-1"),
				TeacherID:     &teacher,
				Weekday:       1,
				BlockOrder:    1,
			},
		},
		teacherRules: []models.Restriction{dayBlocked(models.TargetTeacher, teacher, 1, models.HardWeight)},
	})

	resp, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Legal)

	kinds := make(map[models.ConflictKind]bool)
	for _, reason := range resp.Reasons {
		kinds[reason.Kind] = true
	}
	assert.True(t, kinds[models.ConflictGroup])
	assert.True(t, kinds[models.ConflictTeacher])
	assert.True(t, kinds[models.ConflictRestriction])
}

func TestPlacementValidateIgnoresParallelShiftOccupancy(t *testing.T) {
	teacher := "teacher-1"
	otherSession := "sess-evening"
	fixture := newPlacementFixture(placementFixtureConfig{
		entries: []models.ScheduleEntryDetail{
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-evening", SessionID: &otherSession, BlockID: "block-ev-1", Active: true},
				GroupID:       strPtr("group-9"),
				TeacherID:     &teacher,
				Weekday:       1,
				BlockOrder:    1,
			},
		},
	})

	// The evening shift reuses order 1 on the same weekday, but it is a
	// different block, so the morning placement stays legal.
	resp, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Legal)
	assert.Empty(t, resp.Reasons)
}

func TestPlacementValidateAllowsOwnCell(t *testing.T) {
	teacher := "teacher-1"
	own := "sess-1"
	fixture := newPlacementFixture(placementFixtureConfig{
		entries: []models.ScheduleEntryDetail{
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-own", SessionID: &own, BlockID: "block-1", Active: true},
				GroupID:       strPtr("group-1"),
				TeacherID:     &teacher,
				Weekday:       1,
				BlockOrder:    1,
			},
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-own-2", SessionID: &own, BlockID: "block-2", Active: true},
				GroupID:       strPtr("group-1"),
				TeacherID:     &teacher,
				Weekday:       2,
				BlockOrder:    1,
			},
		},
	})

	// sess-1 already holds both of its weekly blocks, one of them being the
	// candidate cell. Re-validating that cell reports nothing.
	resp, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Legal)
	assert.Empty(t, resp.Reasons)
}

func TestPlacementValidateSoftRestrictionStaysLegal(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{
		teacherRules: []models.Restriction{dayBlocked(models.TargetTeacher, "teacher-1", 1, 40)},
	})

	resp, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Legal, "a soft restriction must not forbid the placement")
	require.Len(t, resp.Reasons, 1)
	assert.False(t, resp.Reasons[0].Blocking)
}

func TestPlacementValidateRejectsForeignShiftBlock(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{blockShift: "shift-evening"})

	_, err := fixture.service.Validate(context.Background(), dto.ValidatePlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPlacementAssignWritesSkeletonCell(t *testing.T) {
	room := "room-1"
	fixture := newPlacementFixture(placementFixtureConfig{})

	entry, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
		RoomID:    &room,
	})
	require.NoError(t, err)
	require.NotNil(t, entry.SessionID)
	assert.Equal(t, "sess-1", *entry.SessionID)
	require.NotNil(t, entry.RoomID)
	assert.Equal(t, room, *entry.RoomID)
	assert.Len(t, fixture.entries.assigned, 1)
}

func TestPlacementAssignBlockedCarriesReasonList(t *testing.T) {
	teacher := "teacher-1"
	otherSession := "sess-other"
	fixture := newPlacementFixture(placementFixtureConfig{
		entries: []models.ScheduleEntryDetail{
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-busy", SessionID: &otherSession, BlockID: "block-1", Active: true},
				TeacherID:     &teacher,
				Weekday:       1,
				BlockOrder:    1,
			},
		},
	})

	_, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var conflict *models.PlacementConflictError
	require.True(t, errors.As(err, &conflict))
	assert.NotEmpty(t, conflict.Reasons)
	assert.Empty(t, fixture.entries.assigned, "a rejected placement must write nothing")
}

func TestPlacementAssignCreatesRowWithoutSkeleton(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{})
	fixture.entries.cellErr = sql.ErrNoRows

	entry, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.NoError(t, err)
	require.NotNil(t, entry.SessionID)
	assert.Equal(t, "sess-1", *entry.SessionID)
	assert.Equal(t, 1, fixture.entries.inserted)
	assert.Empty(t, fixture.entries.assigned)
}

func TestPlacementAssignOccupiedCellConflicts(t *testing.T) {
	otherSession := "sess-other"
	fixture := newPlacementFixture(placementFixtureConfig{})
	fixture.entries.cellOverride = &models.ScheduleEntry{
		ID:        "entry-taken",
		SessionID: &otherSession,
		Active:    true,
	}

	_, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPlacementAssignUnknownSession(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{missingSession: true})

	_, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "ghost",
		BlockID:   "block-1",
		PeriodID:  "period-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPlacementAssignInactiveRoom(t *testing.T) {
	room := "room-closed"
	fixture := newPlacementFixture(placementFixtureConfig{inactiveRoom: true})

	_, err := fixture.service.Assign(context.Background(), dto.AssignPlacementRequest{
		SessionID: "sess-1",
		BlockID:   "block-1",
		PeriodID:  "period-1",
		RoomID:    &room,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPlacementClearKeepsTheRow(t *testing.T) {
	session := "sess-1"
	fixture := newPlacementFixture(placementFixtureConfig{
		entries: []models.ScheduleEntryDetail{
			{
				ScheduleEntry: models.ScheduleEntry{ID: "entry-1", SessionID: &session, PeriodID: "period-1", Active: true},
				Weekday:       1,
				BlockOrder:    1,
			},
		},
	})
	fixture.entries.assigned = map[string]string{"entry-1": session}

	err := fixture.service.Clear(context.Background(), dto.ClearPlacementRequest{EntryID: "entry-1"})
	require.NoError(t, err)
	assert.Empty(t, fixture.entries.assigned)
}

func TestPlacementClearUnknownEntry(t *testing.T) {
	fixture := newPlacementFixture(placementFixtureConfig{})

	err := fixture.service.Clear(context.Background(), dto.ClearPlacementRequest{EntryID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type placementFixtureConfig struct {
	entries        []models.ScheduleEntryDetail
	teacherRules   []models.Restriction
	systemRules    []models.Restriction
	blockShift     string
	missingSession bool
	inactiveRoom   bool
}

type placementFixture struct {
	service *PlacementService
	entries *entryStoreStub
}

func newPlacementFixture(cfg placementFixtureConfig) *placementFixture {
	teacher := "teacher-1"
	session := &models.PendingSession{
		SessionID:     "sess-1",
		GroupID:       "group-1",
		GroupName:     "1A",
		ShiftID:       "shift-m",
		TeacherID:     &teacher,
		Cycle:         1,
		DurationHours: 2,
	}
	blockShift := cfg.blockShift
	if blockShift == "" {
		blockShift = "shift-m"
	}
	block := &models.Block{ID: "block-1", ShiftID: blockShift, Weekday: 1, Order: 1, Active: true}

	entries := &entryStoreStub{items: cfg.entries}
	restrictions := &restrictionReaderStub{teacher: cfg.teacherRules, system: cfg.systemRules}

	service := NewPlacementService(
		sessionContextStub{session: session, missing: cfg.missingSession},
		blockByIDStub{block: block},
		entries,
		restrictions,
		roomReaderStub{inactive: cfg.inactiveRoom},
		nil,
		validator.New(),
		zap.NewNop(),
	)
	return &placementFixture{service: service, entries: entries}
}

type sessionContextStub struct {
	session *models.PendingSession
	missing bool
}

func (s sessionContextStub) FindContext(ctx context.Context, sessionID string) (*models.PendingSession, error) {
	if s.missing {
		return nil, sql.ErrNoRows
	}
	copied := *s.session
	return &copied, nil
}

type blockByIDStub struct {
	block *models.Block
}

func (s blockByIDStub) FindByID(ctx context.Context, id string) (*models.Block, error) {
	if s.block == nil || s.block.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.block, nil
}

type roomReaderStub struct {
	inactive bool
}

func (s roomReaderStub) FindByID(ctx context.Context, id string) (*models.Room, error) {
	return &models.Room{ID: id, Name: "Lab", Capacity: 30, Active: !s.inactive}, nil
}

func strPtr(s string) *string {
	return &s
}
