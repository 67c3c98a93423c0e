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

type sessionContextReader interface {
	FindContext(ctx context.Context, sessionID string) (*models.PendingSession, error)
}

type blockReader interface {
	FindByID(ctx context.Context, id string) (*models.Block, error)
}

type entryStore interface {
	ListActiveByPeriod(ctx context.Context, periodID string) ([]models.ScheduleEntryDetail, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	FindCell(ctx context.Context, periodID, blockID string, cycle int, groupLabel string) (*models.ScheduleEntry, error)
	AssignSession(ctx context.Context, exec sqlx.ExtContext, entryID, sessionID string, roomID *string) error
	ClearCell(ctx context.Context, entryID string) error
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
}

type restrictionReader interface {
	ListActiveByTarget(ctx context.Context, targetKind models.RestrictionTarget, targetID, periodID string) ([]models.Restriction, error)
	ListActiveSystem(ctx context.Context, periodID string) ([]models.Restriction, error)
}

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// PlacementService is the interactive placement path: it validates a
// candidate cell against the live grid and commits or clears single cells.
type PlacementService struct {
	sessions     sessionContextReader
	blocks       blockReader
	entries      entryStore
	restrictions restrictionReader
	rooms        roomReader
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPlacementService wires placement dependencies.
func NewPlacementService(
	sessions sessionContextReader,
	blocks blockReader,
	entries entryStore,
	restrictions restrictionReader,
	rooms roomReader,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
) *PlacementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlacementService{
		sessions:     sessions,
		blocks:       blocks,
		entries:      entries,
		restrictions: restrictions,
		rooms:        rooms,
		cache:        cache,
		validator:    validate,
		logger:       logger,
	}
}

// Validate runs every placement rule for the candidate slot and reports all
// violations. Legal is true only when no blocking reason remains; soft
// restriction hits are returned as advisories.
func (s *PlacementService) Validate(ctx context.Context, req dto.ValidatePlacementRequest) (*dto.ValidatePlacementResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid placement payload")
	}
	session, block, reasons, err := s.evaluate(ctx, req.SessionID, req.BlockID, req.PeriodID, req.RoomID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("placement validated",
		zap.String("sessionId", session.SessionID),
		zap.String("blockId", block.ID),
		zap.Int("reasons", len(reasons)))
	return &dto.ValidatePlacementResponse{Legal: !blocking(reasons), Reasons: reasons}, nil
}

// Assign validates and persists a single placement. A blocking validation
// result surfaces as a conflict error carrying the full reason list; a
// storage-level uniqueness trip from a concurrent writer maps to a
// retryable storage conflict.
func (s *PlacementService) Assign(ctx context.Context, req dto.AssignPlacementRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid placement payload")
	}
	session, block, reasons, err := s.evaluate(ctx, req.SessionID, req.BlockID, req.PeriodID, req.RoomID)
	if err != nil {
		return nil, err
	}
	if blocking(reasons) {
		conflict := &models.PlacementConflictError{SessionID: req.SessionID, BlockID: req.BlockID, Reasons: reasons}
		return nil, appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "placement rejected")
	}

	entry, err := s.entries.FindCell(ctx, req.PeriodID, block.ID, session.Cycle, session.GroupName)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grid cell")
		}
		// no carved skeleton cell yet, create the row directly
		fresh := []models.ScheduleEntry{{
			SessionID:  &session.SessionID,
			BlockID:    block.ID,
			RoomID:     req.RoomID,
			PeriodID:   req.PeriodID,
			Cycle:      session.Cycle,
			GroupLabel: session.GroupName,
			Active:     true,
		}}
		if err := s.entries.InsertBatch(ctx, nil, fresh); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrStorageConflict, "")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grid cell")
		}
		s.cache.InvalidatePeriod(ctx, req.PeriodID)
		return &fresh[0], nil
	}

	if entry.SessionID != nil && *entry.SessionID != session.SessionID {
		conflict := &models.PlacementConflictError{
			SessionID: req.SessionID,
			BlockID:   req.BlockID,
			Reasons: []models.ConflictReason{{
				Kind:     models.ConflictGroup,
				Message:  "cell is already occupied by another session of the group",
				Blocking: true,
				EntryID:  entry.ID,
			}},
		}
		return nil, appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "placement rejected")
	}

	if err := s.entries.AssignSession(ctx, nil, entry.ID, session.SessionID, req.RoomID); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrStorageConflict, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign session")
	}

	entry.SessionID = &session.SessionID
	entry.RoomID = req.RoomID
	s.cache.InvalidatePeriod(ctx, req.PeriodID)
	return entry, nil
}

// Clear resets a grid cell back to its empty skeleton state. The row
// survives so the carved grid keeps its shape.
func (s *PlacementService) Clear(ctx context.Context, req dto.ClearPlacementRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clear payload")
	}
	entry, err := s.entries.FindByID(ctx, req.EntryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entry")
	}
	if err := s.entries.ClearCell(ctx, entry.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear cell")
	}
	s.cache.InvalidatePeriod(ctx, entry.PeriodID)
	return nil
}

// evaluate resolves the session and block, builds the persisted occupancy
// oracle for the period and applies the shared rule set.
func (s *PlacementService) evaluate(ctx context.Context, sessionID, blockID, periodID string, roomID *string) (*models.PendingSession, *models.Block, []models.ConflictReason, error) {
	session, err := s.sessions.FindContext(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block")
	}
	if block.ShiftID != session.ShiftID {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "block does not belong to the group's shift")
	}

	if roomID != nil {
		room, err := s.rooms.FindByID(ctx, *roomID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
			}
			return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
		}
		if !room.Active {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "room is not active")
		}
	}

	oracle, err := s.buildOracle(ctx, session, periodID, roomID)
	if err != nil {
		return nil, nil, nil, err
	}
	slot := slotRef{BlockID: block.ID, Weekday: block.Weekday, Order: block.Order}
	reasons := evaluatePlacement(*session, slot, roomID, oracle)
	return session, block, reasons, nil
}

func (s *PlacementService) buildOracle(ctx context.Context, session *models.PendingSession, periodID string, roomID *string) (*occupancyIndex, error) {
	entries, err := s.entries.ListActiveByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grid")
	}
	index := newGridIndex()
	index.Seed(entries)

	if session.TeacherID != nil {
		teacherRules, err := s.restrictions.ListActiveByTarget(ctx, models.TargetTeacher, *session.TeacherID, periodID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher restrictions")
		}
		index.SeedRestrictions(teacherRules)
	}
	if roomID != nil {
		roomRules, err := s.restrictions.ListActiveByTarget(ctx, models.TargetRoom, *roomID, periodID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room restrictions")
		}
		index.SeedRestrictions(roomRules)
	}
	systemRules, err := s.restrictions.ListActiveSystem(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load system restrictions")
	}
	index.SeedRestrictions(systemRules)
	return index, nil
}
