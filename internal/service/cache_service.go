package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the Redis grid cache. Every placement mutation must
// invalidate the touched period through InvalidatePeriod.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

func periodGridKey(periodID string) string {
	return fmt.Sprintf("timetable:grid:%s", periodID)
}

// GetPeriodGrid loads a cached grid. It returns true on a hit.
func (s *CacheService) GetPeriodGrid(ctx context.Context, periodID string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	err := s.repo.Get(ctx, periodGridKey(periodID), dest)
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("grid cache get failed", zap.String("periodId", periodID), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
		return false
	}
	s.metrics.RecordCacheLookup(true)
	return true
}

// SetPeriodGrid caches a grid payload for the configured TTL.
func (s *CacheService) SetPeriodGrid(ctx context.Context, periodID string, value interface{}) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Set(ctx, periodGridKey(periodID), value, s.defaultTTL); err != nil {
		s.logger.Warn("grid cache set failed", zap.String("periodId", periodID), zap.Error(err))
	}
}

// InvalidatePeriod drops every cached payload of a period.
func (s *CacheService) InvalidatePeriod(ctx context.Context, periodID string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, periodGridKey(periodID)+"*"); err != nil {
		s.logger.Warn("grid cache invalidate failed", zap.String("periodId", periodID), zap.Error(err))
	}
}
