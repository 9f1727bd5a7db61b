package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flagkeeper/retention-api/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type (
	// PolicyRepository persists per-flag-type retention settings.
	PolicyRepository interface {
		Get(ctx context.Context, flagID string) (*model.RetentionPolicy, error)
		Upsert(ctx context.Context, policy *model.RetentionPolicy) error
		// ListAutoClear returns flag_id -> retention_days for every row
		// with auto_clear enabled and a non-zero retention period.
		ListAutoClear(ctx context.Context) (map[string]int, error)
	}

	// FlaggingRepository is the boundary to the authoritative flagging
	// store. Deletions must go through DeleteByIDs so that store-side
	// side effects (deletion events) fire for every removed record.
	FlaggingRepository interface {
		SelectExpiredIDs(ctx context.Context, flagID string, cutoff time.Time, limit int) ([]uuid.UUID, error)
		// SelectIDsByUser returns flagging IDs owned by a user,
		// restricted to flagIDs when non-nil.
		SelectIDsByUser(ctx context.Context, userID uuid.UUID, flagIDs []string) ([]uuid.UUID, error)
		SelectIDsByFlag(ctx context.Context, flagID string) ([]uuid.UUID, error)
		// DeleteByIDs removes the named flaggings and returns the rows
		// actually deleted. IDs that no longer exist are skipped.
		DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Flagging, error)
		// CountsByFlag aggregates totals per flag type; flagID narrows
		// the result to one type when non-empty.
		CountsByFlag(ctx context.Context, flagID string) ([]*model.FlagStats, error)
		// CountsByUser counts a user's flaggings per flag type,
		// restricted to allowedFlags when non-nil.
		CountsByUser(ctx context.Context, userID uuid.UUID, flagID string, allowedFlags []string) (map[string]int64, error)
		ListFlagTypes(ctx context.Context) ([]*model.FlagType, error)
	}
)
