package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/internal/repository"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type openedCourseReader interface {
	FindDetail(ctx context.Context, id string) (*models.OpenedCourseDetail, error)
}

type groupStore interface {
	FindDetail(ctx context.Context, id string) (*models.GroupDetail, error)
	CountByOpenedCourse(ctx context.Context, openedCourseID string) (int, error)
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error
	UpdateTeacher(ctx context.Context, exec sqlx.ExtContext, groupID string, teacherID *string) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, groupID string) error
}

type sessionStore interface {
	CreateWithTx(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	ListIDsByGroup(ctx context.Context, groupID string) ([]string, error)
	DeactivateByGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) error
}

type shiftBlockLister interface {
	ListActiveByShift(ctx context.Context, shiftID string) ([]models.Block, error)
}

type skeletonCarver interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
	DeactivateBySessions(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string) error
}

type capacityGuard interface {
	CheckCap(ctx context.Context, teacherID, periodID string, additionalHours int) error
	Recompute(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string) (int, error)
}

// GroupService provisions and tears down groups together with their
// sessions and the empty timetable skeleton.
type GroupService struct {
	openedCourses openedCourseReader
	groups        groupStore
	sessions      sessionStore
	blocks        shiftBlockLister
	entries       skeletonCarver
	capacity      capacityGuard
	tx            txProvider
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewGroupService wires group-lifecycle dependencies.
func NewGroupService(
	openedCourses openedCourseReader,
	groups groupStore,
	sessions sessionStore,
	blocks shiftBlockLister,
	entries skeletonCarver,
	capacity capacityGuard,
	tx txProvider,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{
		openedCourses: openedCourses,
		groups:        groups,
		sessions:      sessions,
		blocks:        blocks,
		entries:       entries,
		capacity:      capacity,
		tx:            tx,
		cache:         cache,
		validator:     validate,
		logger:        logger,
	}
}

// CreateBatch provisions count groups for an opened course. Each group gets
// a letter name continuing the offering's sequence, one session per
// delivery kind with hours > 0, and one empty schedule entry per active
// block of its shift. The teacher's cap is checked before anything is
// written and the availability counter is recomputed inside the same
// transaction.
func (s *GroupService) CreateBatch(ctx context.Context, req dto.CreateGroupBatchRequest) (*dto.CreateGroupBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group batch payload")
	}

	offering, err := s.openedCourses.FindDetail(ctx, req.OpenedCourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opened course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opened course")
	}

	courseHours := offering.TheoryHours + offering.PracticeHours
	if courseHours <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course has no weekly hours to schedule")
	}

	shiftBlocks, err := s.blocks.ListActiveByShift(ctx, req.ShiftID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shift blocks")
	}
	if len(shiftBlocks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "shift has no active blocks to carve")
	}

	if req.TeacherID != nil {
		if err := s.capacity.CheckCap(ctx, *req.TeacherID, offering.PeriodID, courseHours*req.Count); err != nil {
			return nil, err
		}
	}

	existing, err := s.groups.CountByOpenedCourse(ctx, req.OpenedCourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count existing groups")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result := &dto.CreateGroupBatchResult{}
	for i := 0; i < req.Count; i++ {
		group := &models.Group{
			Name:           groupLetter(existing + i),
			OpenedCourseID: req.OpenedCourseID,
			TeacherID:      req.TeacherID,
			ShiftID:        req.ShiftID,
			Seats:          req.SeatsPerGroup,
		}
		if err = s.groups.CreateWithTx(ctx, tx, group); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
			return nil, err
		}
		result.GroupIDs = append(result.GroupIDs, group.ID)

		if offering.TheoryHours > 0 {
			session := &models.Session{GroupID: group.ID, Kind: models.SessionTheory, DurationHours: offering.TheoryHours}
			if err = s.sessions.CreateWithTx(ctx, tx, session); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create theory session")
				return nil, err
			}
			result.SessionsMade++
		}
		if offering.PracticeHours > 0 {
			session := &models.Session{GroupID: group.ID, Kind: models.SessionPractice, DurationHours: offering.PracticeHours}
			if err = s.sessions.CreateWithTx(ctx, tx, session); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create practice session")
				return nil, err
			}
			result.SessionsMade++
		}

		skeleton := make([]models.ScheduleEntry, 0, len(shiftBlocks))
		for _, block := range shiftBlocks {
			skeleton = append(skeleton, models.ScheduleEntry{
				BlockID:    block.ID,
				PeriodID:   offering.PeriodID,
				Cycle:      offering.Cycle,
				GroupLabel: group.Name,
				Active:     true,
			})
		}
		if err = s.entries.InsertBatch(ctx, tx, skeleton); err != nil {
			if repository.IsUniqueViolation(err) {
				err = appErrors.Clone(appErrors.ErrConflict, "timetable skeleton already carved for this group label")
				return nil, err
			}
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to carve timetable skeleton")
			return nil, err
		}
		result.CellsCarved += len(skeleton)
	}

	if req.TeacherID != nil {
		var total int
		if total, err = s.capacity.Recompute(ctx, tx, *req.TeacherID, offering.PeriodID); err != nil {
			return nil, err
		}
		result.AssignedHours = total
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit group batch")
		return nil, err
	}

	s.cache.InvalidatePeriod(ctx, offering.PeriodID)
	s.logger.Info("group batch provisioned",
		zap.String("openedCourseId", req.OpenedCourseID),
		zap.Int("groups", len(result.GroupIDs)),
		zap.Int("sessions", result.SessionsMade),
		zap.Int("cells", result.CellsCarved))
	return result, nil
}

// UpdateTeacher rebinds a group's teacher. The incoming teacher's cap is
// checked against the course hours first; afterwards availability is
// recomputed for both the outgoing and the incoming teacher inside the
// rebinding transaction.
func (s *GroupService) UpdateTeacher(ctx context.Context, groupID string, req dto.UpdateGroupTeacherRequest) (*models.GroupDetail, error) {
	group, err := s.groups.FindDetail(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	courseHours := group.TheoryHours + group.PracticeHours
	sameTeacher := group.TeacherID != nil && req.TeacherID != nil && *group.TeacherID == *req.TeacherID
	if req.TeacherID != nil && !sameTeacher {
		if err := s.capacity.CheckCap(ctx, *req.TeacherID, group.PeriodID, courseHours); err != nil {
			return nil, err
		}
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.groups.UpdateTeacher(ctx, tx, groupID, req.TeacherID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group teacher")
		return nil, err
	}

	if group.TeacherID != nil && !sameTeacher {
		if _, err = s.capacity.Recompute(ctx, tx, *group.TeacherID, group.PeriodID); err != nil {
			return nil, err
		}
	}
	if req.TeacherID != nil {
		if _, err = s.capacity.Recompute(ctx, tx, *req.TeacherID, group.PeriodID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit teacher change")
		return nil, err
	}

	s.cache.InvalidatePeriod(ctx, group.PeriodID)
	return s.groups.FindDetail(ctx, groupID)
}

// Delete deactivates a group, its sessions and every schedule entry they
// occupy, then releases the hours held by the group's teacher.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	group, err := s.groups.FindDetail(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	sessionIDs, err := s.sessions.ListIDsByGroup(ctx, groupID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group sessions")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.entries.DeactivateBySessions(ctx, tx, sessionIDs); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release schedule entries")
		return err
	}
	if err = s.sessions.DeactivateByGroup(ctx, tx, groupID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate sessions")
		return err
	}
	if err = s.groups.Deactivate(ctx, tx, groupID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate group")
		return err
	}
	if group.TeacherID != nil {
		if _, err = s.capacity.Recompute(ctx, tx, *group.TeacherID, group.PeriodID); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit group deletion")
		return err
	}

	s.cache.InvalidatePeriod(ctx, group.PeriodID)
	s.logger.Info("group deleted", zap.String("groupId", groupID), zap.Int("sessions", len(sessionIDs)))
	return nil
}

// groupLetter names the nth group of an offering: A..Z, then AA, AB and so
// on.
func groupLetter(n int) string {
	name := ""
	for {
		name = string(rune('A'+n%26)) + name
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return name
}
