package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/repository"
)

type policyRepository struct {
	BaseRepository
}

func NewPolicyRepository(base BaseRepository) repository.PolicyRepository {
	return &policyRepository{base}
}

func (r *policyRepository) Get(ctx context.Context, flagID string) (*model.RetentionPolicy, error) {
	query := `
        SELECT flag_id, retention_days, auto_clear, created_at, updated_at
        FROM flag_retention_settings
        WHERE flag_id = $1
    `

	var policy model.RetentionPolicy
	if err := r.GetDB().GetContext(ctx, &policy, query, flagID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}

	return &policy, nil
}

// Upsert inserts or updates the policy row for a flag type in a single
// statement. The unique constraint on flag_id keeps concurrent saves
// from creating duplicate rows; created_at is preserved on update.
func (r *policyRepository) Upsert(ctx context.Context, policy *model.RetentionPolicy) error {
	query := `
        INSERT INTO flag_retention_settings (
            flag_id, retention_days, auto_clear, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (flag_id) DO UPDATE SET
            retention_days = EXCLUDED.retention_days,
            auto_clear = EXCLUDED.auto_clear,
            updated_at = EXCLUDED.updated_at
    `

	_, err := r.GetDB().ExecContext(ctx, query,
		policy.FlagID,
		policy.RetentionDays,
		policy.AutoClear,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert retention policy: %w", err)
	}

	return nil
}

func (r *policyRepository) ListAutoClear(ctx context.Context) (map[string]int, error) {
	query := `
        SELECT flag_id, retention_days
        FROM flag_retention_settings
        WHERE auto_clear = TRUE AND retention_days > 0
    `

	rows, err := r.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-clear policies: %w", err)
	}
	defer rows.Close()

	policies := make(map[string]int)
	for rows.Next() {
		var flagID string
		var days int
		if err := rows.Scan(&flagID, &days); err != nil {
			return nil, err
		}
		policies[flagID] = days
	}

	return policies, rows.Err()
}
