package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlaggingRepositorySelectExpiredIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	first := uuid.New()
	second := uuid.New()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id"}).
		AddRow(first.String()).
		AddRow(second.String())
	mock.ExpectQuery("SELECT id FROM flaggings").
		WithArgs("bookmark", cutoff, 10).
		WillReturnRows(rows)

	ids, err := repo.SelectExpiredIDs(context.Background(), "bookmark", cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
}

func TestFlaggingRepositoryDeleteByIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	id := uuid.New()
	userID := uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "flag_id", "entity_type", "entity_id", "user_id", "created_at"}).
		AddRow(id.String(), "bookmark", "article", "42", userID.String(), time.Now())
	mock.ExpectQuery("DELETE FROM flaggings").
		WillReturnRows(rows)
	mock.ExpectCommit()

	deleted, err := repo.DeleteByIDs(context.Background(), []uuid.UUID{id, uuid.New()})
	require.NoError(t, err)

	// The second ID was already gone; only the row that actually
	// existed comes back.
	require.Len(t, deleted, 1)
	assert.Equal(t, id, deleted[0].ID)
	assert.Equal(t, "bookmark", deleted[0].FlagID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlaggingRepositoryDeleteByIDsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	deleted, err := repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlaggingRepositorySelectIDsByUserScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	userID := uuid.New()
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id"}).AddRow(id.String())
	mock.ExpectQuery("SELECT id FROM flaggings WHERE user_id").
		WillReturnRows(rows)

	ids, err := repo.SelectIDsByUser(context.Background(), userID, []string{"bookmark"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)
}

func TestFlaggingRepositoryCountsByFlag(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	rows := sqlmock.NewRows([]string{"flag_id", "total_count", "unique_users"}).
		AddRow("bookmark", 12, 4).
		AddRow("report", 3, 3)
	mock.ExpectQuery("SELECT flag_id, COUNT").
		WillReturnRows(rows)

	stats, err := repo.CountsByFlag(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(12), stats[0].TotalCount)
	assert.Equal(t, int64(4), stats[0].UniqueUsers)
}

func TestFlaggingRepositoryCountsByUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	userID := uuid.New()
	rows := sqlmock.NewRows([]string{"flag_id", "count"}).
		AddRow("bookmark", 5)
	mock.ExpectQuery("SELECT flag_id, COUNT").
		WillReturnRows(rows)

	counts, err := repo.CountsByUser(context.Background(), userID, "", []string{"bookmark"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"bookmark": 5}, counts)
}

func TestFlaggingRepositoryListFlagTypes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFlaggingRepository(NewBaseRepository(db))

	rows := sqlmock.NewRows([]string{"id", "label", "entity_type", "created_at"}).
		AddRow("bookmark", "Bookmark", "node", time.Now())
	mock.ExpectQuery("SELECT id, label, entity_type").
		WillReturnRows(rows)

	flags, err := repo.ListFlagTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "bookmark", flags[0].ID)
}
