package cleanup

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/service/clearer"
	"github.com/flagkeeper/retention-api/pkg/logger"
)

// ExpirySource lists auto-clear policies and resolves expired
// flaggings per policy.
type ExpirySource interface {
	ListAutoClear(ctx context.Context) (map[string]int, error)
	SelectExpired(ctx context.Context, flagID string, retentionDays int, now time.Time, limit int) ([]uuid.UUID, error)
}

// Deleter removes flaggings by ID through the authoritative path.
type Deleter interface {
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ConfigSource supplies a per-tick snapshot of the global retention
// defaults.
type ConfigSource interface {
	Snapshot() model.RetentionConfig
}

// Service runs one cleanup tick at a time over all auto-clear
// policies, bounded by the configured batch budget.
type Service struct {
	source  ExpirySource
	deleter Deleter
	cfg     ConfigSource
	clock   func() time.Time
	logger  *logger.Logger
}

func NewService(source ExpirySource, deleter Deleter, cfg ConfigSource, logger *logger.Logger) *Service {
	return &Service{
		source:  source,
		deleter: deleter,
		cfg:     cfg,
		clock:   time.Now,
		logger:  logger,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// RunTick executes one cleanup pass: load every auto-clear policy,
// select expired flaggings per policy in a stable order, and delete
// them within a single deletion budget shared across all policies.
// A failing flag type is recorded and the tick moves on; only loading
// the policy set itself can fail the whole tick.
func (s *Service) RunTick(ctx context.Context) (*model.CleanupResult, error) {
	cfg := s.cfg.Snapshot()
	started := s.clock()

	result := &model.CleanupResult{
		State:         model.TickCompleted,
		DeletedByFlag: make(map[string]int64),
		StartedAt:     started,
	}

	policies, err := s.source.ListAutoClear(ctx)
	if err != nil {
		return nil, err
	}

	// Stable iteration order within a tick for reproducibility.
	flagIDs := make([]string, 0, len(policies))
	for flagID := range policies {
		flagIDs = append(flagIDs, flagID)
	}
	sort.Strings(flagIDs)

	budget := cfg.CronBatchSize
	for _, flagID := range flagIDs {
		if budget <= 0 {
			// Budget exhausted; remaining policies wait for the next
			// tick.
			break
		}

		ids, err := s.source.SelectExpired(ctx, flagID, policies[flagID], started, budget)
		if err != nil {
			s.recordFailure(result, flagID, err)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		deleted, err := s.deleter.DeleteByIDs(ctx, ids)
		if err != nil {
			if !errors.Is(err, clearer.ErrDeletionFailed) {
				s.logger.Error(err, "unexpected deletion error", "flag_id", flagID)
			}
			s.recordFailure(result, flagID, err)
			continue
		}

		// The budget is charged for the selected set, not just the
		// rows still present at delete time, so a tick never selects
		// more than cron_batch_size candidates in total.
		budget -= len(ids)
		result.TotalDeleted += deleted
		result.DeletedByFlag[flagID] = deleted
	}

	result.Duration = s.clock().Sub(started)

	if cfg.LogClearingActivity {
		s.logger.Info("cleanup tick finished",
			"state", string(result.State),
			"total_deleted", result.TotalDeleted,
			"failed_flags", len(result.FailedFlagIDs),
			"duration", result.Duration.String())
	}

	return result, nil
}

func (s *Service) recordFailure(result *model.CleanupResult, flagID string, err error) {
	result.State = model.TickPartiallyFailed
	result.FailedFlagIDs = append(result.FailedFlagIDs, flagID)
	s.logger.Error(err, "cleanup failed for flag type", "flag_id", flagID)
}
