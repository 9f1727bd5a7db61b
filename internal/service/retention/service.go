package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/repository"
)

// ErrInvalidPolicyValue is returned for policy values that must be
// rejected before persistence (negative retention days, empty flag ID).
var ErrInvalidPolicyValue = errors.New("invalid retention policy value")

const flagTypesCacheKey = "flag_types"

// ConfigSource supplies a per-operation snapshot of the global
// retention defaults.
type ConfigSource interface {
	Snapshot() model.RetentionConfig
}

// Service owns retention policies and expiry selection.
type Service struct {
	policies  repository.PolicyRepository
	flaggings repository.FlaggingRepository
	cfg       ConfigSource
	clock     func() time.Time
	// flagCache holds the flag type registry only. Flagging statistics
	// must always reflect current storage state and are never cached.
	flagCache *gocache.Cache
}

func NewService(policies repository.PolicyRepository, flaggings repository.FlaggingRepository, cfg ConfigSource) *Service {
	return &Service{
		policies:  policies,
		flaggings: flaggings,
		cfg:       cfg,
		clock:     time.Now,
		flagCache: gocache.New(time.Minute, 5*time.Minute),
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// GetSettings returns the stored policy for a flag type, or a policy
// synthesized from the global default when no row exists. Absence is a
// valid state, never an error.
func (s *Service) GetSettings(ctx context.Context, flagID string) (*model.RetentionPolicy, error) {
	policy, err := s.policies.Get(ctx, flagID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			cfg := s.cfg.Snapshot()
			return &model.RetentionPolicy{
				FlagID:        flagID,
				RetentionDays: cfg.DefaultRetentionDays,
				AutoClear:     false,
			}, nil
		}
		return nil, err
	}

	return policy, nil
}

// SaveSettings upserts the policy row for a flag type.
func (s *Service) SaveSettings(ctx context.Context, flagID string, retentionDays int, autoClear bool) error {
	if flagID == "" {
		return fmt.Errorf("%w: flag ID is required", ErrInvalidPolicyValue)
	}
	if retentionDays < 0 {
		return fmt.Errorf("%w: retention days must not be negative", ErrInvalidPolicyValue)
	}

	now := s.clock()
	return s.policies.Upsert(ctx, &model.RetentionPolicy{
		FlagID:        flagID,
		RetentionDays: retentionDays,
		AutoClear:     autoClear,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// ListAutoClear returns flag_id -> retention_days for every policy the
// cleanup tick should act on. Zero-day policies never expire anything
// and are excluded at the store.
func (s *Service) ListAutoClear(ctx context.Context) (map[string]int, error) {
	return s.policies.ListAutoClear(ctx)
}

// SelectExpired computes the flaggings of one type eligible for
// deletion at the given time: created before now minus the retention
// period, capped at limit, oldest first. A retention period of zero
// means keep forever, so nothing is ever eligible.
func (s *Service) SelectExpired(ctx context.Context, flagID string, retentionDays int, now time.Time, limit int) ([]uuid.UUID, error) {
	if retentionDays <= 0 || limit <= 0 {
		return nil, nil
	}

	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	return s.flaggings.SelectExpiredIDs(ctx, flagID, cutoff, limit)
}

// ListFlagsWithSettings joins every registered flag type with its
// effective retention policy for the admin listing. The flag type
// registry changes rarely and is read through a short-lived cache;
// policies are always read fresh.
func (s *Service) ListFlagsWithSettings(ctx context.Context) ([]*model.FlagWithPolicy, error) {
	flags, err := s.listFlagTypes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*model.FlagWithPolicy, 0, len(flags))
	for _, flag := range flags {
		policy, err := s.GetSettings(ctx, flag.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.FlagWithPolicy{Flag: *flag, Policy: *policy})
	}

	return out, nil
}

func (s *Service) listFlagTypes(ctx context.Context) ([]*model.FlagType, error) {
	if cached, ok := s.flagCache.Get(flagTypesCacheKey); ok {
		return cached.([]*model.FlagType), nil
	}

	flags, err := s.flaggings.ListFlagTypes(ctx)
	if err != nil {
		return nil, err
	}

	s.flagCache.Set(flagTypesCacheKey, flags, gocache.DefaultExpiration)
	return flags, nil
}
