package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

func TestGeneratorGenerateIsDeterministicForAFixedSeed(t *testing.T) {
	seed := int64(42)

	first, err := newGeneratorFixture(t, generatorFixtureConfig{}).service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)

	second, err := newGeneratorFixture(t, generatorFixtureConfig{}).service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Placements, second.Placements)
	assert.Equal(t, first.UnplacedSessionIDs, second.UnplacedSessionIDs)
}

func TestGeneratorGeneratePlacementsDoNotOverlap(t *testing.T) {
	seed := int64(7)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Placements)

	type slot struct {
		id      string
		weekday int
		order   int
	}
	taken := make(map[slot]string)
	for _, p := range resp.Placements {
		session := fixture.sessionByID(t, p.SessionID)
		for offset := 0; offset < p.Duration; offset++ {
			groupSlot := slot{id: session.GroupID, weekday: p.Weekday, order: p.StartOrder + offset}
			if holder, clash := taken[groupSlot]; clash {
				t.Fatalf("group %s double-booked at weekday %d order %d (held by %s)", session.GroupID, p.Weekday, p.StartOrder+offset, holder)
			}
			taken[groupSlot] = p.SessionID
			if session.TeacherID != nil {
				teacherSlot := slot{id: "t:" + *session.TeacherID, weekday: p.Weekday, order: p.StartOrder + offset}
				if holder, clash := taken[teacherSlot]; clash {
					t.Fatalf("teacher %s double-booked at weekday %d order %d (held by %s)", *session.TeacherID, p.Weekday, p.StartOrder+offset, holder)
				}
				taken[teacherSlot] = p.SessionID
			}
		}
	}
}

func TestGeneratorGeneratePlacesLongerSessionsFirst(t *testing.T) {
	seed := int64(11)
	resp, err := newGeneratorFixture(t, generatorFixtureConfig{}).service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)

	for i := 1; i < len(resp.Placements); i++ {
		assert.GreaterOrEqual(t, resp.Placements[i-1].Duration, resp.Placements[i].Duration)
	}
}

func TestGeneratorGenerateReportsUnplacedSessions(t *testing.T) {
	seed := int64(3)
	teacher := "teacher-1"
	// One weekday with two blocks cannot hold two 2-hour sessions of the
	// same group.
	fixture := newGeneratorFixture(t, generatorFixtureConfig{
		weekdays: []int{1},
		orders:   []int{1, 2},
		pending: []models.PendingSession{
			{SessionID: "sess-a", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 2},
			{SessionID: "sess-b", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 2},
		},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.Placed)
	assert.Equal(t, 1, resp.Stats.Unplaced)
	require.Len(t, resp.UnplacedSessionIDs, 1)
	assert.Equal(t, "sess-b", resp.UnplacedSessionIDs[0])
}

func TestGeneratorGenerateSkipsCompleteSessions(t *testing.T) {
	seed := int64(5)
	teacher := "teacher-1"
	fixture := newGeneratorFixture(t, generatorFixtureConfig{
		pending: []models.PendingSession{
			{SessionID: "sess-a", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 2},
		},
		entries: []models.ScheduleEntryDetail{
			occupiedCell("entry-1", "block-shift-m-1-1", "sess-a", "group-1", &teacher, nil, 1, 1),
			occupiedCell("entry-2", "block-shift-m-1-2", "sess-a", "group-1", &teacher, nil, 1, 2),
		},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Placements)
	assert.Empty(t, resp.UnplacedSessionIDs)
	assert.Equal(t, 1, resp.Stats.Attempted)
}

func TestGeneratorGenerateTopsUpPartiallyPlacedSession(t *testing.T) {
	seed := int64(9)
	teacher := "teacher-1"
	fixture := newGeneratorFixture(t, generatorFixtureConfig{
		pending: []models.PendingSession{
			{SessionID: "sess-a", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 3},
		},
		entries: []models.ScheduleEntryDetail{
			occupiedCell("entry-1", "block-shift-m-1-1", "sess-a", "group-1", &teacher, nil, 1, 1),
		},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	assert.Equal(t, 2, resp.Placements[0].Duration, "only the missing blocks should be placed")
}

func TestGeneratorGenerateHonoursHardRestrictions(t *testing.T) {
	seed := int64(13)
	teacher := "teacher-1"
	fixture := newGeneratorFixture(t, generatorFixtureConfig{
		weekdays: []int{1, 2},
		orders:   []int{1, 2},
		pending: []models.PendingSession{
			{SessionID: "sess-a", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 2},
		},
		teacherRules: []models.Restriction{dayBlocked(models.TargetTeacher, teacher, 1, models.HardWeight)},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	assert.Equal(t, 2, resp.Placements[0].Weekday, "the blocked weekday must never be used")
}

func TestGeneratorGenerateReportsTruncatedSessions(t *testing.T) {
	seed := int64(17)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{maxBatch: 2})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)

	// Three sessions are pending but only two fit the batch; the cut
	// session must still show up in the result instead of vanishing.
	assert.Len(t, resp.Placements, 2)
	assert.Equal(t, 3, resp.Stats.Attempted)
	assert.Equal(t, 1, resp.Stats.Truncated)
	assert.Equal(t, 1, resp.Stats.Unplaced)
	assert.Contains(t, resp.UnplacedSessionIDs, "sess-3")
}

func TestGeneratorGenerateUnknownPeriod(t *testing.T) {
	fixture := newGeneratorFixture(t, generatorFixtureConfig{missingPeriod: true})

	_, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{PeriodID: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGeneratorCommitPersistsEveryPlacement(t *testing.T) {
	seed := int64(21)
	txProvider, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{tx: txProvider})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Placements)

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	assert.Equal(t, len(resp.Placements), result.Committed)
	assert.Empty(t, result.Rejected)

	cells := 0
	for _, p := range resp.Placements {
		cells += p.Duration
	}
	assert.Equal(t, cells, len(fixture.entries.assigned)+fixture.entries.inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratorCommitIsSingleUse(t *testing.T) {
	seed := int64(23)
	txProvider, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{tx: txProvider})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err = fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)

	_, err = fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGeneratorCommitRejectsOutrunPlacements(t *testing.T) {
	seed := int64(31)
	teacher := "teacher-1"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{
		tx:       txProvider,
		weekdays: []int{1},
		orders:   []int{1, 2},
		pending: []models.PendingSession{
			{SessionID: "sess-a", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher, Cycle: 1, DurationHours: 2},
		},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)

	// The grid moves on between generation and commit.
	fixture.restrictions.system = []models.Restriction{dayBlocked(models.TargetSystem, "", 1, models.HardWeight)}

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	assert.Zero(t, result.Committed)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "sess-a", result.Rejected[0].SessionID)
	assert.True(t, blocking(result.Rejected[0].Reasons))
	assert.Empty(t, fixture.entries.assigned)
}

func TestGeneratorCommitAbortsOnStorageConflict(t *testing.T) {
	seed := int64(37)
	txProvider, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(t, generatorFixtureConfig{tx: txProvider})
	fixture.entries.assignErr = &pq.Error{Code: "23505"}

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		PeriodID: "period-1",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Placements)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStorageConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratorCommitUnknownProposal(t *testing.T) {
	fixture := newGeneratorFixture(t, generatorFixtureConfig{})

	_, err := fixture.service.Commit(context.Background(), dto.CommitTimetableRequest{ProposalID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type generatorFixtureConfig struct {
	pending       []models.PendingSession
	entries       []models.ScheduleEntryDetail
	teacherRules  []models.Restriction
	systemRules   []models.Restriction
	weekdays      []int
	orders        []int
	tx            txProvider
	maxBatch      int
	missingPeriod bool
}

type generatorFixture struct {
	service      *TimetableGeneratorService
	pending      []models.PendingSession
	entries      *entryStoreStub
	restrictions *restrictionReaderStub
}

func (f *generatorFixture) sessionByID(t *testing.T, id string) models.PendingSession {
	t.Helper()
	for _, session := range f.pending {
		if session.SessionID == id {
			return session
		}
	}
	t.Fatalf("unknown session %s", id)
	return models.PendingSession{}
}

func newGeneratorFixture(t *testing.T, cfg generatorFixtureConfig) *generatorFixture {
	t.Helper()

	pending := cfg.pending
	if pending == nil {
		teacher1 := "teacher-1"
		teacher2 := "teacher-2"
		pending = []models.PendingSession{
			{SessionID: "sess-1", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher1, Cycle: 1, DurationHours: 3},
			{SessionID: "sess-2", GroupID: "group-1", GroupName: "1A", ShiftID: "shift-m", TeacherID: &teacher2, Cycle: 1, DurationHours: 2},
			{SessionID: "sess-3", GroupID: "group-2", GroupName: "1B", ShiftID: "shift-m", TeacherID: &teacher1, Cycle: 1, DurationHours: 2},
		}
	}
	weekdays := cfg.weekdays
	if weekdays == nil {
		weekdays = []int{1, 2, 3, 4, 5}
	}
	orders := cfg.orders
	if orders == nil {
		orders = []int{1, 2, 3, 4}
	}

	entries := &entryStoreStub{items: cfg.entries}
	restrictions := &restrictionReaderStub{teacher: cfg.teacherRules, system: cfg.systemRules}
	grid := &shiftGridStub{orders: models.ShiftBlockMap{"shift-m": orders}, weekdays: map[string][]int{"shift-m": weekdays}}

	tx := cfg.tx
	if tx == nil {
		tx = noopTxProvider{}
	}

	service := NewTimetableGeneratorService(
		periodReaderStub{missing: cfg.missingPeriod},
		pendingListerStub{items: pending},
		grid,
		entries,
		restrictions,
		tx,
		nil,
		nil,
		validator.New(),
		zap.NewNop(),
		GeneratorConfig{MaxBatchSize: cfg.maxBatch, ProposalTTL: time.Hour},
	)

	return &generatorFixture{service: service, pending: pending, entries: entries, restrictions: restrictions}
}

type periodReaderStub struct {
	missing bool
}

func (s periodReaderStub) FindByID(ctx context.Context, id string) (*models.Period, error) {
	if s.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Period{ID: id, Name: "2026-1", Active: true}, nil
}

type pendingListerStub struct {
	items []models.PendingSession
}

func (s pendingListerStub) ListPendingByPeriod(ctx context.Context, periodID string, cycle *int) ([]models.PendingSession, error) {
	return append([]models.PendingSession(nil), s.items...), nil
}

type shiftGridStub struct {
	orders   models.ShiftBlockMap
	weekdays map[string][]int
}

func (s *shiftGridStub) ShiftBlockMap(ctx context.Context) (models.ShiftBlockMap, error) {
	return s.orders, nil
}

func (s *shiftGridStub) ShiftWeekdayMap(ctx context.Context) (map[string][]int, error) {
	return s.weekdays, nil
}

func (s *shiftGridStub) FindByPosition(ctx context.Context, shiftID string, weekday, order int) (*models.Block, error) {
	for _, o := range s.orders[shiftID] {
		if o != order {
			continue
		}
		for _, w := range s.weekdays[shiftID] {
			if w == weekday {
				return &models.Block{
					ID:      fmt.Sprintf("block-%s-%d-%d", shiftID, weekday, order),
					ShiftID: shiftID,
					Weekday: weekday,
					Order:   order,
					Active:  true,
				}, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

type entryStoreStub struct {
	items        []models.ScheduleEntryDetail
	assigned     map[string]string
	inserted     int
	assignErr    error
	cellErr      error
	cellOverride *models.ScheduleEntry
}

func (s *entryStoreStub) ListActiveByPeriod(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error) {
	return append([]models.ScheduleEntryDetail(nil), s.items...), nil
}

func (s *entryStoreStub) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	for _, item := range s.items {
		if item.ID == id {
			entry := item.ScheduleEntry
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *entryStoreStub) FindCell(ctx context.Context, periodID, blockID string, cycle int, groupLabel string) (*models.ScheduleEntry, error) {
	if s.cellErr != nil {
		return nil, s.cellErr
	}
	if s.cellOverride != nil {
		return s.cellOverride, nil
	}
	// Every grid position has a pre-carved empty cell.
	return &models.ScheduleEntry{
		ID:         fmt.Sprintf("cell-%s-%d-%s", blockID, cycle, groupLabel),
		BlockID:    blockID,
		PeriodID:   periodID,
		Cycle:      cycle,
		GroupLabel: groupLabel,
		Active:     true,
	}, nil
}

func (s *entryStoreStub) AssignSession(ctx context.Context, exec sqlx.ExtContext, entryID, sessionID string, roomID *string) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	if s.assigned == nil {
		s.assigned = make(map[string]string)
	}
	s.assigned[entryID] = sessionID
	return nil
}

func (s *entryStoreStub) ClearCell(ctx context.Context, entryID string) error {
	delete(s.assigned, entryID)
	return nil
}

func (s *entryStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	s.inserted += len(entries)
	return nil
}

type restrictionReaderStub struct {
	teacher []models.Restriction
	room    []models.Restriction
	system  []models.Restriction
}

func (s *restrictionReaderStub) ListActiveTeacherRestrictions(ctx context.Context, periodID string) ([]models.Restriction, error) {
	return s.teacher, nil
}

func (s *restrictionReaderStub) ListActiveSystem(ctx context.Context, periodID string) ([]models.Restriction, error) {
	return s.system, nil
}

func (s *restrictionReaderStub) ListActiveByTarget(ctx context.Context, targetKind models.RestrictionTarget, targetID, periodID string) ([]models.Restriction, error) {
	switch targetKind {
	case models.TargetTeacher:
		var matched []models.Restriction
		for _, r := range s.teacher {
			if r.TargetID == targetID {
				matched = append(matched, r)
			}
		}
		return matched, nil
	case models.TargetRoom:
		var matched []models.Restriction
		for _, r := range s.room {
			if r.TargetID == targetID {
				matched = append(matched, r)
			}
		}
		return matched, nil
	}
	return nil, nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
