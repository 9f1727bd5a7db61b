package clearer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/repository"
	"github.com/flagkeeper/retention-api/pkg/logger"
	"github.com/flagkeeper/retention-api/pkg/messaging"
)

var (
	// ErrDeletionFailed wraps storage failures during a delete batch.
	// The whole batch counts as failed; callers log and continue.
	ErrDeletionFailed = errors.New("deletion failed")

	// ErrFlagAccessDenied is returned when a user-facing operation
	// names a flag type outside the configured allow-list.
	ErrFlagAccessDenied = errors.New("flag type is not enabled for clearing")

	// ErrUserClearingDisabled is returned when user-initiated clearing
	// is switched off globally.
	ErrUserClearingDisabled = errors.New("user clearing is disabled")
)

// DeletedEventChannel is the broker channel deletion events go to.
const DeletedEventChannel = "flaggings.deleted"

// DeletedEvent is published for every flagging removed through the
// authoritative deletion path.
type DeletedEvent struct {
	FlaggingID string    `json:"flagging_id"`
	FlagID     string    `json:"flag_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// ConfigSource supplies a per-operation snapshot of the global
// retention defaults.
type ConfigSource interface {
	Snapshot() model.RetentionConfig
}

// Service deletes flaggings in bounded batches and aggregates
// statistics over them.
type Service struct {
	flaggings repository.FlaggingRepository
	cfg       ConfigSource
	broker    messaging.Broker
	logger    *logger.Logger
}

func NewService(flaggings repository.FlaggingRepository, cfg ConfigSource, broker messaging.Broker, logger *logger.Logger) *Service {
	if broker == nil {
		broker = messaging.NoopBroker{}
	}
	return &Service{
		flaggings: flaggings,
		cfg:       cfg,
		broker:    broker,
		logger:    logger,
	}
}

// DeleteByIDs removes the named flaggings and returns the count
// actually removed. IDs that were deleted concurrently are skipped
// without error; an empty input performs no store call at all.
func (s *Service) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := s.flaggings.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeletionFailed, err)
	}

	s.publishDeleted(ctx, deleted)
	return int64(len(deleted)), nil
}

// ClearUserFlags removes a user's flaggings, optionally scoped to one
// flag type. The access allow-list applies: a disallowed explicit flag
// type is rejected, and an unscoped clear only touches allowed types.
func (s *Service) ClearUserFlags(ctx context.Context, userID uuid.UUID, flagID string) (int64, error) {
	cfg := s.cfg.Snapshot()
	if !cfg.UserClearingEnabled {
		return 0, ErrUserClearingDisabled
	}

	var flagIDs []string
	if flagID != "" {
		if !cfg.FlagAllowed(flagID) {
			return 0, fmt.Errorf("%w: %s", ErrFlagAccessDenied, flagID)
		}
		flagIDs = []string{flagID}
	} else {
		flagIDs = cfg.AllowedFlags()
	}

	ids, err := s.flaggings.SelectIDsByUser(ctx, userID, flagIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to select user flaggings: %w", err)
	}

	return s.DeleteByIDs(ctx, ids)
}

// ClearAllByType removes every flagging of one type regardless of age
// or owner. This is the admin bulk clear; the access allow-list does
// not apply here.
func (s *Service) ClearAllByType(ctx context.Context, flagID string) (int64, error) {
	ids, err := s.flaggings.SelectIDsByFlag(ctx, flagID)
	if err != nil {
		return 0, fmt.Errorf("failed to select flaggings by type: %w", err)
	}

	return s.DeleteByIDs(ctx, ids)
}

// CountsByFlag returns total and distinct-user counts per flag type.
// When flagID is given the result holds exactly one entry, zero-valued
// if no flaggings of that type exist.
func (s *Service) CountsByFlag(ctx context.Context, flagID string) (map[string]*model.FlagStats, error) {
	stats, err := s.flaggings.CountsByFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*model.FlagStats, len(stats))
	for _, st := range stats {
		out[st.FlagID] = st
	}

	if flagID != "" {
		if _, ok := out[flagID]; !ok {
			out[flagID] = &model.FlagStats{FlagID: flagID}
		}
	}

	return out, nil
}

// CountsByUser returns a user's flagging counts per flag type. Flag
// types outside the allow-list are silently filtered out; asking for a
// disallowed type yields an empty result rather than an error.
func (s *Service) CountsByUser(ctx context.Context, userID uuid.UUID, flagID string) (map[string]int64, error) {
	cfg := s.cfg.Snapshot()

	if flagID != "" && !cfg.FlagAllowed(flagID) {
		return map[string]int64{}, nil
	}

	return s.flaggings.CountsByUser(ctx, userID, flagID, cfg.AllowedFlags())
}

func (s *Service) publishDeleted(ctx context.Context, deleted []*model.Flagging) {
	now := time.Now()
	for _, f := range deleted {
		event := DeletedEvent{
			FlaggingID: f.ID.String(),
			FlagID:     f.FlagID,
			EntityType: f.EntityType,
			EntityID:   f.EntityID,
			UserID:     f.UserID.String(),
			DeletedAt:  now,
		}
		if err := s.broker.Publish(ctx, DeletedEventChannel, event); err != nil {
			// Deletion already committed; a lost event must not fail
			// the operation.
			s.logger.Error(err, "failed to publish deletion event",
				"flagging_id", f.ID.String())
		}
	}
}
