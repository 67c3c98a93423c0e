package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type assignedHoursSummer interface {
	SumAssignedHours(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string) (int, error)
}

type availabilityStore interface {
	Get(ctx context.Context, teacherID, periodID string) (*models.Availability, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string, hours int) error
}

type contractReader interface {
	FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Contract, error)
}

// CapacityService keeps the per-period availability counters honest and
// guards the weekly hour cap of teacher contracts.
type CapacityService struct {
	groups         assignedHoursSummer
	availabilities availabilityStore
	contracts      contractReader
	logger         *zap.Logger
}

// NewCapacityService wires capacity dependencies.
func NewCapacityService(groups assignedHoursSummer, availabilities availabilityStore, contracts contractReader, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{
		groups:         groups,
		availabilities: availabilities,
		contracts:      contracts,
		logger:         logger,
	}
}

// Recompute derives the teacher's assigned hours from the live group set
// and overwrites the cached counter. It is a full recomputation, so running
// it twice in a row is a no-op, and it runs on the supplied executor so a
// caller mid-transaction sees its own flushed group writes reflected in the
// result.
func (s *CapacityService) Recompute(ctx context.Context, exec sqlx.ExtContext, teacherID, periodID string) (int, error) {
	total, err := s.groups.SumAssignedHours(ctx, exec, teacherID, periodID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute assigned hours")
	}
	if err := s.availabilities.Upsert(ctx, exec, teacherID, periodID, total); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
	}
	s.logger.Debug("availability recomputed",
		zap.String("teacherId", teacherID),
		zap.String("periodId", periodID),
		zap.Int("assignedHours", total))
	return total, nil
}

// GetAvailability reports the teacher's current load against the contract
// cap. A missing contract is not an error here; the response just carries
// no cap.
func (s *CapacityService) GetAvailability(ctx context.Context, teacherID, periodID string) (*dto.TeacherAvailabilityResponse, error) {
	resp := &dto.TeacherAvailabilityResponse{TeacherID: teacherID, PeriodID: periodID}

	availability, err := s.availabilities.Get(ctx, teacherID, periodID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
		}
	} else {
		resp.AssignedHours = availability.AssignedHours
	}

	contract, err := s.contracts.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
		}
		return resp, nil
	}
	resp.HasContract = true
	resp.WeeklyHourCap = contract.WeeklyHourCap
	if remaining := contract.WeeklyHourCap - resp.AssignedHours; remaining > 0 {
		resp.RemainingHours = remaining
	}
	return resp, nil
}

// CheckCap verifies that adding additionalHours to the teacher's current
// load stays within the active contract's weekly cap. It reads only; a
// missing availability row counts as zero hours, a missing contract is a
// precondition failure regardless of the requested hours.
func (s *CapacityService) CheckCap(ctx context.Context, teacherID, periodID string, additionalHours int) error {
	contract, err := s.contracts.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNoActiveContract, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}

	current := 0
	availability, err := s.availabilities.Get(ctx, teacherID, periodID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
		}
	} else {
		current = availability.AssignedHours
	}

	if current+additionalHours > contract.WeeklyHourCap {
		detail := &models.CapacityExceededError{
			TeacherID:  teacherID,
			PeriodID:   periodID,
			Current:    current,
			Additional: additionalHours,
			Cap:        contract.WeeklyHourCap,
		}
		return appErrors.Wrap(detail, appErrors.ErrCapacityExceeded.Code, appErrors.ErrCapacityExceeded.Status, detail.Error())
	}
	return nil
}
