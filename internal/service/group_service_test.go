package service

import (
	"context"
	"database/sql"
	"testing"

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

func TestGroupLetterSequence(t *testing.T) {
	cases := map[int]string{
		0:  "A",
		1:  "B",
		25: "Z",
		26: "AA",
		27: "AB",
		51: "AZ",
		52: "BA",
	}
	for n, want := range cases {
		assert.Equal(t, want, groupLetter(n), "letter for offset %d", n)
	}
}

func TestGroupCreateBatchProvisionsEverything(t *testing.T) {
	teacher := "teacher-1"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider})

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := fixture.service.CreateBatch(context.Background(), dto.CreateGroupBatchRequest{
		OpenedCourseID: "oc-1",
		ShiftID:        "shift-m",
		Count:          2,
		TeacherID:      &teacher,
		SeatsPerGroup:  30,
	})
	require.NoError(t, err)
	assert.Len(t, result.GroupIDs, 2)
	// Theory and practice hours are both positive, so two sessions per group.
	assert.Equal(t, 4, result.SessionsMade)
	// Four active blocks per shift, one carved cell each per group.
	assert.Equal(t, 8, result.CellsCarved)
	assert.Equal(t, fixture.capacity.recomputeTotal, result.AssignedHours)
	assert.Equal(t, 1, fixture.capacity.recomputes)

	// The offering already had one group, so naming continues at B.
	assert.Equal(t, []string{"B", "C"}, fixture.groups.names)
	for _, session := range fixture.sessions.created {
		assert.Contains(t, []models.SessionKind{models.SessionTheory, models.SessionPractice}, session.Kind)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupCreateBatchChecksCapBeforeWriting(t *testing.T) {
	teacher := "teacher-1"
	fixture := newGroupFixture(t, groupFixtureConfig{capErr: appErrors.Clone(appErrors.ErrCapacityExceeded, "")})

	_, err := fixture.service.CreateBatch(context.Background(), dto.CreateGroupBatchRequest{
		OpenedCourseID: "oc-1",
		ShiftID:        "shift-m",
		Count:          3,
		TeacherID:      &teacher,
		SeatsPerGroup:  25,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fixture.groups.names, "nothing may be written after a failed cap check")
	// Cap is checked for the whole batch at once: 5 hours x 3 groups.
	assert.Equal(t, 15, fixture.capacity.checkedHours)
}

func TestGroupCreateBatchRequiresCarvedShift(t *testing.T) {
	fixture := newGroupFixture(t, groupFixtureConfig{noBlocks: true})

	_, err := fixture.service.CreateBatch(context.Background(), dto.CreateGroupBatchRequest{
		OpenedCourseID: "oc-1",
		ShiftID:        "shift-empty",
		Count:          1,
		SeatsPerGroup:  20,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestGroupCreateBatchRejectsZeroHourCourse(t *testing.T) {
	fixture := newGroupFixture(t, groupFixtureConfig{theoryHours: 0, practiceHours: 0, zeroHours: true})

	_, err := fixture.service.CreateBatch(context.Background(), dto.CreateGroupBatchRequest{
		OpenedCourseID: "oc-1",
		ShiftID:        "shift-m",
		Count:          1,
		SeatsPerGroup:  20,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGroupCreateBatchSkeletonCollision(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider})
	fixture.entries.insertErr = &pq.Error{Code: "23505"}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := fixture.service.CreateBatch(context.Background(), dto.CreateGroupBatchRequest{
		OpenedCourseID: "oc-1",
		ShiftID:        "shift-m",
		Count:          1,
		SeatsPerGroup:  20,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupUpdateTeacherRecomputesBothSides(t *testing.T) {
	oldTeacher := "teacher-old"
	newTeacher := "teacher-new"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider, groupTeacher: &oldTeacher})

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fixture.service.UpdateTeacher(context.Background(), "group-1", dto.UpdateGroupTeacherRequest{TeacherID: &newTeacher})
	require.NoError(t, err)
	assert.Equal(t, 2, fixture.capacity.recomputes, "both the outgoing and incoming teacher must be recomputed")
	assert.ElementsMatch(t, []string{oldTeacher, newTeacher}, fixture.capacity.recomputedFor)
	// The new teacher absorbs the full course hours.
	assert.Equal(t, 5, fixture.capacity.checkedHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupUpdateTeacherSameTeacherSkipsCapCheck(t *testing.T) {
	teacher := "teacher-1"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider, groupTeacher: &teacher})

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fixture.service.UpdateTeacher(context.Background(), "group-1", dto.UpdateGroupTeacherRequest{TeacherID: &teacher})
	require.NoError(t, err)
	assert.Zero(t, fixture.capacity.checkedHours)
	assert.Equal(t, 1, fixture.capacity.recomputes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupUpdateTeacherUnbind(t *testing.T) {
	teacher := "teacher-1"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider, groupTeacher: &teacher})

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fixture.service.UpdateTeacher(context.Background(), "group-1", dto.UpdateGroupTeacherRequest{TeacherID: nil})
	require.NoError(t, err)
	assert.Equal(t, 1, fixture.capacity.recomputes, "only the released teacher is recomputed")
	assert.Equal(t, []string{teacher}, fixture.capacity.recomputedFor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupDeleteReleasesEverything(t *testing.T) {
	teacher := "teacher-1"
	txProvider, mock := newTxProviderMock(t)
	fixture := newGroupFixture(t, groupFixtureConfig{tx: txProvider, groupTeacher: &teacher})

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := fixture.service.Delete(context.Background(), "group-1")
	require.NoError(t, err)
	assert.True(t, fixture.sessions.deactivatedGroup)
	assert.Equal(t, []string{"sess-1", "sess-2"}, fixture.entries.released)
	assert.True(t, fixture.groups.deactivated)
	assert.Equal(t, 1, fixture.capacity.recomputes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupDeleteUnknownGroup(t *testing.T) {
	fixture := newGroupFixture(t, groupFixtureConfig{missingGroup: true})

	err := fixture.service.Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type groupFixtureConfig struct {
	tx            txProvider
	capErr        error
	noBlocks      bool
	theoryHours   int
	practiceHours int
	zeroHours     bool
	groupTeacher  *string
	missingGroup  bool
}

type groupFixture struct {
	service  *GroupService
	groups   *groupStoreStub
	sessions *sessionStoreStub
	entries  *skeletonCarverStub
	capacity *capacityGuardStub
}

func newGroupFixture(t *testing.T, cfg groupFixtureConfig) *groupFixture {
	t.Helper()

	theory, practice := cfg.theoryHours, cfg.practiceHours
	if !cfg.zeroHours && theory == 0 && practice == 0 {
		theory, practice = 3, 2
	}

	offering := &models.OpenedCourseDetail{
		OpenedCourse:  models.OpenedCourse{ID: "oc-1", CourseID: "course-1", PeriodID: "period-1"},
		CourseName:    "Algorithms",
		Cycle:         3,
		TheoryHours:   theory,
		PracticeHours: practice,
	}

	groups := &groupStoreStub{
		existing: 1,
		detail: &models.GroupDetail{
			Group:         models.Group{ID: "group-1", Name: "A", OpenedCourseID: "oc-1", TeacherID: cfg.groupTeacher, ShiftID: "shift-m", Seats: 30, Active: true},
			CourseName:    "Algorithms",
			Cycle:         3,
			PeriodID:      "period-1",
			TheoryHours:   theory,
			PracticeHours: practice,
		},
		missing: cfg.missingGroup,
	}
	sessions := &sessionStoreStub{ids: []string{"sess-1", "sess-2"}}
	entries := &skeletonCarverStub{}
	capacity := &capacityGuardStub{err: cfg.capErr, recomputeTotal: 10}

	var blocks []models.Block
	if !cfg.noBlocks {
		for order := 1; order <= 4; order++ {
			blocks = append(blocks, models.Block{ID: string(rune('a'+order)), ShiftID: "shift-m", Weekday: 1, Order: order, Active: true})
		}
	}

	tx := cfg.tx
	if tx == nil {
		tx = noopTxProvider{}
	}

	service := NewGroupService(
		openedCourseStub{detail: offering},
		groups,
		sessions,
		shiftBlockListerStub{blocks: blocks},
		entries,
		capacity,
		tx,
		nil,
		validator.New(),
		zap.NewNop(),
	)
	return &groupFixture{service: service, groups: groups, sessions: sessions, entries: entries, capacity: capacity}
}

type openedCourseStub struct {
	detail *models.OpenedCourseDetail
}

func (s openedCourseStub) FindDetail(ctx context.Context, id string) (*models.OpenedCourseDetail, error) {
	if s.detail == nil {
		return nil, sql.ErrNoRows
	}
	return s.detail, nil
}

type groupStoreStub struct {
	existing    int
	detail      *models.GroupDetail
	missing     bool
	names       []string
	deactivated bool
}

func (s *groupStoreStub) FindDetail(ctx context.Context, id string) (*models.GroupDetail, error) {
	if s.missing || s.detail == nil {
		return nil, sql.ErrNoRows
	}
	detail := *s.detail
	return &detail, nil
}

func (s *groupStoreStub) CountByOpenedCourse(ctx context.Context, openedCourseID string) (int, error) {
	return s.existing, nil
}

func (s *groupStoreStub) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error {
	group.ID = "group-" + group.Name
	s.names = append(s.names, group.Name)
	return nil
}

func (s *groupStoreStub) UpdateTeacher(ctx context.Context, exec sqlx.ExtContext, groupID string, teacherID *string) error {
	s.detail.TeacherID = teacherID
	return nil
}

func (s *groupStoreStub) Deactivate(ctx context.Context, exec sqlx.ExtContext, groupID string) error {
	s.deactivated = true
	return nil
}

type sessionStoreStub struct {
	ids              []string
	created          []models.Session
	deactivatedGroup bool
}

func (s *sessionStoreStub) CreateWithTx(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.ID = "sess-new"
	s.created = append(s.created, *session)
	return nil
}

func (s *sessionStoreStub) ListIDsByGroup(ctx context.Context, groupID string) ([]string, error) {
	return s.ids, nil
}

func (s *sessionStoreStub) DeactivateByGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) error {
	s.deactivatedGroup = true
	return nil
}

type shiftBlockListerStub struct {
	blocks []models.Block
}

func (s shiftBlockListerStub) ListActiveByShift(ctx context.Context, shiftID string) ([]models.Block, error) {
	return s.blocks, nil
}

type skeletonCarverStub struct {
	carved    int
	released  []string
	insertErr error
}

func (s *skeletonCarverStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.carved += len(entries)
	return nil
}

func (s *skeletonCarverStub) DeactivateBySessions(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string) error {
	s.released = append(s.released, sessionIDs...)
	return nil
}

type capacityGuardStub struct {
	err            error
	checkedHours   int
	recomputes     int
	recomputeTotal int
	recomputedFor  []string
}

func (s *capacityGuardStub) CheckCap(ctx context.Context, teacherID, periodID string, additionalHours int) error {
	s.checkedHours = additionalHours
	return s.err
}

func (s *capacityGuardStub) Recompute(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string) (int, error) {
	s.recomputes++
	s.recomputedFor = append(s.recomputedFor, teacherID)
	return s.recomputeTotal, nil
}
