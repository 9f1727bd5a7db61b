package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/repository"
)

type flaggingRepository struct {
	BaseRepository
}

func NewFlaggingRepository(base BaseRepository) repository.FlaggingRepository {
	return &flaggingRepository{base}
}

// SelectExpiredIDs returns flaggings of one type created before the
// cutoff, oldest first so sustained backlogs drain predictably.
func (r *flaggingRepository) SelectExpiredIDs(ctx context.Context, flagID string, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
        SELECT id FROM flaggings
        WHERE flag_id = $1 AND created_at < $2
        ORDER BY created_at ASC, id ASC
        LIMIT $3
    `

	var ids []uuid.UUID
	if err := r.GetDB().SelectContext(ctx, &ids, query, flagID, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to select expired flaggings: %w", err)
	}

	return ids, nil
}

func (r *flaggingRepository) SelectIDsByUser(ctx context.Context, userID uuid.UUID, flagIDs []string) ([]uuid.UUID, error) {
	query := `SELECT id FROM flaggings WHERE user_id = $1`
	args := []interface{}{userID}

	if flagIDs != nil {
		query += fmt.Sprintf(" AND flag_id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(flagIDs))
	}

	var ids []uuid.UUID
	if err := r.GetDB().SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select user flaggings: %w", err)
	}

	return ids, nil
}

func (r *flaggingRepository) SelectIDsByFlag(ctx context.Context, flagID string) ([]uuid.UUID, error) {
	query := `SELECT id FROM flaggings WHERE flag_id = $1`

	var ids []uuid.UUID
	if err := r.GetDB().SelectContext(ctx, &ids, query, flagID); err != nil {
		return nil, fmt.Errorf("failed to select flaggings by type: %w", err)
	}

	return ids, nil
}

// DeleteByIDs is the authoritative deletion path. It deletes and
// returns the removed rows in one transaction so callers can emit
// deletion events for exactly the records that were removed. IDs that
// were already deleted by a concurrent caller simply do not come back.
func (r *flaggingRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Flagging, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
        DELETE FROM flaggings
        WHERE id = ANY($1)
        RETURNING id, flag_id, entity_type, entity_id, user_id, created_at
    `

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	var deleted []*model.Flagging
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &deleted, query, pq.Array(strIDs))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete flaggings: %w", err)
	}

	return deleted, nil
}

func (r *flaggingRepository) CountsByFlag(ctx context.Context, flagID string) ([]*model.FlagStats, error) {
	query := `
        SELECT flag_id, COUNT(id) AS total_count, COUNT(DISTINCT user_id) AS unique_users
        FROM flaggings
    `
	var args []interface{}

	if flagID != "" {
		query += " WHERE flag_id = $1"
		args = append(args, flagID)
	}
	query += " GROUP BY flag_id"

	var stats []*model.FlagStats
	if err := r.GetDB().SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate flag statistics: %w", err)
	}

	return stats, nil
}

func (r *flaggingRepository) CountsByUser(ctx context.Context, userID uuid.UUID, flagID string, allowedFlags []string) (map[string]int64, error) {
	query := `SELECT flag_id, COUNT(id) AS count FROM flaggings WHERE user_id = $1`
	args := []interface{}{userID}

	if flagID != "" {
		query += fmt.Sprintf(" AND flag_id = $%d", len(args)+1)
		args = append(args, flagID)
	}

	if allowedFlags != nil {
		query += fmt.Sprintf(" AND flag_id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(allowedFlags))
	}

	query += " GROUP BY flag_id"

	rows, err := r.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count user flaggings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}

	return counts, rows.Err()
}

func (r *flaggingRepository) ListFlagTypes(ctx context.Context) ([]*model.FlagType, error) {
	query := `
        SELECT id, label, entity_type, created_at
        FROM flag_types
        ORDER BY id
    `

	var flags []*model.FlagType
	if err := r.GetDB().SelectContext(ctx, &flags, query); err != nil {
		return nil, fmt.Errorf("failed to list flag types: %w", err)
	}

	return flags, nil
}
