package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/internal/repository"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type pendingSessionLister interface {
	ListPendingByPeriod(ctx context.Context, periodID string, cycle *int) ([]models.PendingSession, error)
}

type shiftGridReader interface {
	FindByPosition(ctx context.Context, shiftID string, weekday, order int) (*models.Block, error)
	ShiftBlockMap(ctx context.Context) (models.ShiftBlockMap, error)
	ShiftWeekdayMap(ctx context.Context) (map[string][]int, error)
}

type periodReader interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
}

type generatorRestrictionReader interface {
	ListActiveTeacherRestrictions(ctx context.Context, periodID string) ([]models.Restriction, error)
	ListActiveSystem(ctx context.Context, periodID string) ([]models.Restriction, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// GeneratorConfig governs bulk allocation behaviour.
type GeneratorConfig struct {
	// Seed fixes the weekday visitation order; 0 falls back to the clock.
	Seed         int64
	MaxBatchSize int
	ProposalTTL  time.Duration
}

// TimetableGeneratorService runs the greedy first-fit allocator over a
// period's pending sessions and commits accepted proposals.
type TimetableGeneratorService struct {
	periods      periodReader
	sessions     pendingSessionLister
	blocks       shiftGridReader
	entries      entryStore
	restrictions generatorRestrictionReader
	tx           txProvider
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	store        *proposalStore
	cfg          GeneratorConfig
}

// NewTimetableGeneratorService wires generator dependencies.
func NewTimetableGeneratorService(
	periods periodReader,
	sessions pendingSessionLister,
	blocks shiftGridReader,
	entries entryStore,
	restrictions generatorRestrictionReader,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg GeneratorConfig,
) *TimetableGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 512
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &TimetableGeneratorService{
		periods:      periods,
		sessions:     sessions,
		blocks:       blocks,
		entries:      entries,
		restrictions: restrictions,
		tx:           tx,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		store:        newProposalStore(cfg.ProposalTTL),
		cfg:          cfg,
	}
}

// Generate produces a placement proposal for a period without touching the
// grid. Sessions the first-fit pass cannot place are reported, never fatal.
func (s *TimetableGeneratorService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if _, err := s.periods.FindByID(ctx, req.PeriodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}

	started := time.Now()

	pending, err := s.sessions.ListPendingByPeriod(ctx, req.PeriodID, req.Cycle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending sessions")
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].DurationHours == pending[j].DurationHours {
			return pending[i].SessionID < pending[j].SessionID
		}
		return pending[i].DurationHours > pending[j].DurationHours
	})
	var truncated []string
	if len(pending) > s.cfg.MaxBatchSize {
		for _, session := range pending[s.cfg.MaxBatchSize:] {
			truncated = append(truncated, session.SessionID)
		}
		pending = pending[:s.cfg.MaxBatchSize]
	}

	shiftBlocks, err := s.blocks.ShiftBlockMap(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shift block map")
	}
	shiftWeekdays, err := s.blocks.ShiftWeekdayMap(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shift weekdays")
	}

	arena, err := s.seedArena(ctx, req.PeriodID)
	if err != nil {
		return nil, err
	}

	seed := s.cfg.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	placements := make([]dto.SessionPlacement, 0, len(pending))
	unplaced := make([]string, 0)
	sessionIndex := make(map[string]models.PendingSession, len(pending))

	for _, session := range pending {
		sessionIndex[session.SessionID] = session
		remaining := session.DurationHours - arena.AssignedCount(session.SessionID, slotRef{})
		if remaining <= 0 {
			continue
		}

		orders := shiftBlocks[session.ShiftID]
		weekdays := shiftWeekdays[session.ShiftID]
		if len(orders) < remaining || len(weekdays) == 0 {
			unplaced = append(unplaced, session.SessionID)
			continue
		}

		placement, ok := s.placeSession(session, remaining, orders, weekdays, rng, arena)
		if !ok {
			unplaced = append(unplaced, session.SessionID)
			continue
		}
		placements = append(placements, placement)
	}

	unplaced = append(unplaced, truncated...)

	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		PeriodID:    req.PeriodID,
		Cycle:       req.Cycle,
		Seed:        seed,
		Placements:  placements,
		Sessions:    sessionIndex,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	stats := dto.GenerationStats{
		Attempted: len(pending) + len(truncated),
		Placed:    len(placements),
		Unplaced:  len(unplaced),
		Truncated: len(truncated),
	}
	s.metrics.RecordGeneratorRun(stats.Placed, stats.Unplaced, time.Since(started))
	s.logger.Info("timetable generated",
		zap.String("periodId", req.PeriodID),
		zap.Int64("seed", seed),
		zap.Int("attempted", stats.Attempted),
		zap.Int("placed", stats.Placed),
		zap.Int("unplaced", stats.Unplaced))

	return &dto.GenerateTimetableResponse{
		ProposalID:         proposal.ProposalID,
		Placements:         placements,
		UnplacedSessionIDs: unplaced,
		Stats:              stats,
	}, nil
}

// placeSession finds the first feasible contiguous run for the session,
// visiting weekdays in shuffled order and start positions in block order.
func (s *TimetableGeneratorService) placeSession(
	session models.PendingSession,
	length int,
	orders []int,
	weekdays []int,
	rng *rand.Rand,
	arena *occupancyIndex,
) (dto.SessionPlacement, bool) {
	shuffled := make([]int, len(weekdays))
	copy(shuffled, weekdays)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, weekday := range shuffled {
		for start := 0; start+length <= len(orders); start++ {
			if !contiguous(orders[start : start+length]) {
				continue
			}
			if !s.runFree(session, weekday, orders[start:start+length], arena) {
				continue
			}
			for _, order := range orders[start : start+length] {
				arena.Reserve(session, slotRef{Weekday: weekday, Order: order}, nil, "")
			}
			return dto.SessionPlacement{
				SessionID:  session.SessionID,
				GroupID:    session.GroupID,
				GroupName:  session.GroupName,
				Weekday:    weekday,
				StartOrder: orders[start],
				Duration:   length,
			}, true
		}
	}
	return dto.SessionPlacement{}, false
}

// runFree applies the shared placement rules to every slot of a candidate
// run before anything is reserved.
func (s *TimetableGeneratorService) runFree(session models.PendingSession, weekday int, orders []int, arena *occupancyIndex) bool {
	for _, order := range orders {
		if reasons := evaluatePlacement(session, slotRef{Weekday: weekday, Order: order}, nil, arena); blocking(reasons) {
			return false
		}
	}
	return true
}

func contiguous(orders []int) bool {
	for i := 1; i < len(orders); i++ {
		if orders[i] != orders[i-1]+1 {
			return false
		}
	}
	return true
}

func (s *TimetableGeneratorService) seedArena(ctx context.Context, periodID string) (*occupancyIndex, error) {
	entries, err := s.entries.ListActiveByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grid")
	}
	arena := newArenaIndex()
	arena.Seed(entries)

	teacherRules, err := s.restrictions.ListActiveTeacherRestrictions(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher restrictions")
	}
	arena.SeedRestrictions(teacherRules)

	systemRules, err := s.restrictions.ListActiveSystem(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load system restrictions")
	}
	arena.SeedRestrictions(systemRules)
	return arena, nil
}

// Commit persists a previously generated proposal. Every cell is
// re-validated against the live grid inside one transaction; placements the
// grid has outrun are rejected individually, while a storage-level
// uniqueness trip aborts the whole commit as retryable.
func (s *TimetableGeneratorService) Commit(ctx context.Context, req dto.CommitTimetableRequest) (*dto.CommitTimetableResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid commit payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	live, err := s.seedArena(ctx, proposal.PeriodID)
	if err != nil {
		return nil, err
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

	result := &dto.CommitTimetableResult{}
	for _, placement := range proposal.Placements {
		session, found := proposal.Sessions[placement.SessionID]
		if !found {
			continue
		}
		rejected, commitErr := s.commitPlacement(ctx, tx, proposal.PeriodID, session, placement, live)
		if commitErr != nil {
			err = commitErr
			return nil, err
		}
		if rejected != nil {
			result.Rejected = append(result.Rejected, *rejected)
			continue
		}
		result.Committed++
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}

	s.store.Delete(req.ProposalID)
	s.cache.InvalidatePeriod(ctx, proposal.PeriodID)
	s.metrics.RecordCommitRejections(len(result.Rejected))
	s.logger.Info("timetable committed",
		zap.String("proposalId", req.ProposalID),
		zap.String("periodId", proposal.PeriodID),
		zap.Int("committed", result.Committed),
		zap.Int("rejected", len(result.Rejected)))
	return result, nil
}

// commitPlacement writes one contiguous run. A non-nil rejection means the
// placement lost its slots between generation and commit.
func (s *TimetableGeneratorService) commitPlacement(
	ctx context.Context,
	tx *sqlx.Tx,
	periodID string,
	session models.PendingSession,
	placement dto.SessionPlacement,
	live *occupancyIndex,
) (*dto.RejectedPlacement, error) {
	type resolvedSlot struct {
		block *models.Block
		cell  *models.ScheduleEntry
	}
	slots := make([]resolvedSlot, 0, placement.Duration)

	for offset := 0; offset < placement.Duration; offset++ {
		order := placement.StartOrder + offset

		if reasons := evaluatePlacement(session, slotRef{Weekday: placement.Weekday, Order: order}, nil, live); blocking(reasons) {
			return &dto.RejectedPlacement{SessionID: session.SessionID, BlockID: "", Reasons: reasons}, nil
		}

		block, err := s.blocks.FindByPosition(ctx, session.ShiftID, placement.Weekday, order)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &dto.RejectedPlacement{
					SessionID: session.SessionID,
					Reasons: []models.ConflictReason{{
						Kind:     models.ConflictRestriction,
						Message:  fmt.Sprintf("no active block at weekday %d order %d for shift %s", placement.Weekday, order, session.ShiftID),
						Blocking: true,
					}},
				}, nil
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve block")
		}

		cell, err := s.entries.FindCell(ctx, periodID, block.ID, session.Cycle, session.GroupName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grid cell")
		}
		if cell != nil && cell.SessionID != nil && *cell.SessionID != session.SessionID {
			return &dto.RejectedPlacement{
				SessionID: session.SessionID,
				BlockID:   block.ID,
				Reasons: []models.ConflictReason{{
					Kind:     models.ConflictGroup,
					Message:  "cell was taken by another session before commit",
					Blocking: true,
					EntryID:  cell.ID,
				}},
			}, nil
		}
		slots = append(slots, resolvedSlot{block: block, cell: cell})
	}

	for offset, slot := range slots {
		if slot.cell != nil {
			if err := s.entries.AssignSession(ctx, tx, slot.cell.ID, session.SessionID, nil); err != nil {
				if repository.IsUniqueViolation(err) {
					return nil, appErrors.Clone(appErrors.ErrStorageConflict, "")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign session")
			}
		} else {
			fresh := []models.ScheduleEntry{{
				SessionID:  &session.SessionID,
				BlockID:    slot.block.ID,
				PeriodID:   periodID,
				Cycle:      session.Cycle,
				GroupLabel: session.GroupName,
				Active:     true,
			}}
			if err := s.entries.InsertBatch(ctx, tx, fresh); err != nil {
				if repository.IsUniqueViolation(err) {
					return nil, appErrors.Clone(appErrors.ErrStorageConflict, "")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grid cell")
			}
		}
		live.Reserve(session, slotRef{BlockID: slot.block.ID, Weekday: placement.Weekday, Order: placement.StartOrder + offset}, nil, "")
	}
	return nil, nil
}

// --- Proposal cache ---

type timetableProposal struct {
	ProposalID  string
	PeriodID    string
	Cycle       *int
	Seed        int64
	Placements  []dto.SessionPlacement
	Sessions    map[string]models.PendingSession
	RequestedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
