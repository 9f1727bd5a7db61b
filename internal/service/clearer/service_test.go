package clearer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/repository"
	"github.com/flagkeeper/retention-api/pkg/logger"
)

type fakeFlaggingRepo struct {
	repository.FlaggingRepository

	byUser        []uuid.UUID
	byUserFlagIDs []string
	byFlag        []uuid.UUID
	deleted       []*model.Flagging
	deleteErr     error
	deleteCalls   int
	deletedWith   []uuid.UUID
	stats         []*model.FlagStats
	userCounts    map[string]int64
}

func (f *fakeFlaggingRepo) SelectIDsByUser(ctx context.Context, userID uuid.UUID, flagIDs []string) ([]uuid.UUID, error) {
	f.byUserFlagIDs = flagIDs
	return f.byUser, nil
}

func (f *fakeFlaggingRepo) SelectIDsByFlag(ctx context.Context, flagID string) ([]uuid.UUID, error) {
	return f.byFlag, nil
}

func (f *fakeFlaggingRepo) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Flagging, error) {
	f.deleteCalls++
	f.deletedWith = ids
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return f.deleted, nil
}

func (f *fakeFlaggingRepo) CountsByFlag(ctx context.Context, flagID string) ([]*model.FlagStats, error) {
	return f.stats, nil
}

func (f *fakeFlaggingRepo) CountsByUser(ctx context.Context, userID uuid.UUID, flagID string, allowedFlags []string) (map[string]int64, error) {
	return f.userCounts, nil
}

type staticConfig struct {
	cfg model.RetentionConfig
}

func (s staticConfig) Snapshot() model.RetentionConfig { return s.cfg }

type recordingBroker struct {
	channels []string
	messages []interface{}
	err      error
}

func (b *recordingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.channels = append(b.channels, channel)
	b.messages = append(b.messages, message)
	return b.err
}

func (b *recordingBroker) Close() error { return nil }

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
}

func flaggingsOf(ids ...uuid.UUID) []*model.Flagging {
	out := make([]*model.Flagging, len(ids))
	for i, id := range ids {
		out[i] = &model.Flagging{ID: id, FlagID: "bookmark", UserID: uuid.New()}
	}
	return out
}

func TestDeleteByIDsEmptyInput(t *testing.T) {
	repo := &fakeFlaggingRepo{}
	svc := NewService(repo, staticConfig{}, nil, testLogger())

	deleted, err := svc.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Zero(t, repo.deleteCalls)
}

func TestDeleteByIDsCountsActualDeletions(t *testing.T) {
	survivor := uuid.New()
	repo := &fakeFlaggingRepo{deleted: flaggingsOf(survivor)}
	svc := NewService(repo, staticConfig{}, nil, testLogger())

	// Two requested, one already gone.
	deleted, err := svc.DeleteByIDs(context.Background(), []uuid.UUID{survivor, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDeleteByIDsStorageFailure(t *testing.T) {
	repo := &fakeFlaggingRepo{deleteErr: errors.New("connection reset")}
	svc := NewService(repo, staticConfig{}, nil, testLogger())

	deleted, err := svc.DeleteByIDs(context.Background(), []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrDeletionFailed)
	assert.Zero(t, deleted)
}

func TestDeleteByIDsPublishesEvents(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	repo := &fakeFlaggingRepo{deleted: flaggingsOf(ids...)}
	broker := &recordingBroker{}
	svc := NewService(repo, staticConfig{}, broker, testLogger())

	deleted, err := svc.DeleteByIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.Len(t, broker.messages, 2)
	assert.Equal(t, DeletedEventChannel, broker.channels[0])
	event := broker.messages[0].(DeletedEvent)
	assert.Equal(t, ids[0].String(), event.FlaggingID)
	assert.Equal(t, "bookmark", event.FlagID)
}

func TestDeleteByIDsPublishFailureDoesNotFailDeletion(t *testing.T) {
	ids := []uuid.UUID{uuid.New()}
	repo := &fakeFlaggingRepo{deleted: flaggingsOf(ids...)}
	broker := &recordingBroker{err: errors.New("broker down")}
	svc := NewService(repo, staticConfig{}, broker, testLogger())

	deleted, err := svc.DeleteByIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestClearUserFlagsDisabled(t *testing.T) {
	repo := &fakeFlaggingRepo{}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{UserClearingEnabled: false}}, nil, testLogger())

	_, err := svc.ClearUserFlags(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrUserClearingDisabled)
	assert.Zero(t, repo.deleteCalls)
}

func TestClearUserFlagsDisallowedFlag(t *testing.T) {
	repo := &fakeFlaggingRepo{}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{
		UserClearingEnabled: true,
		FlagAccessMode:      model.FlagAccessAllowSelected,
		EnabledFlags:        []string{"bookmark"},
	}}, nil, testLogger())

	_, err := svc.ClearUserFlags(context.Background(), uuid.New(), "report")
	assert.ErrorIs(t, err, ErrFlagAccessDenied)
	assert.Zero(t, repo.deleteCalls)
}

func TestClearUserFlagsScopedToAllowList(t *testing.T) {
	id := uuid.New()
	repo := &fakeFlaggingRepo{byUser: []uuid.UUID{id}, deleted: flaggingsOf(id)}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{
		UserClearingEnabled: true,
		FlagAccessMode:      model.FlagAccessAllowSelected,
		EnabledFlags:        []string{"bookmark", "favorite"},
	}}, nil, testLogger())

	deleted, err := svc.ClearUserFlags(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, []string{"bookmark", "favorite"}, repo.byUserFlagIDs)
}

func TestClearUserFlagsAllowAllUnscoped(t *testing.T) {
	repo := &fakeFlaggingRepo{}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{
		UserClearingEnabled: true,
		FlagAccessMode:      model.FlagAccessAllowAll,
	}}, nil, testLogger())

	_, err := svc.ClearUserFlags(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.Nil(t, repo.byUserFlagIDs)
}

func TestClearAllByTypeIgnoresAllowList(t *testing.T) {
	id := uuid.New()
	repo := &fakeFlaggingRepo{byFlag: []uuid.UUID{id}, deleted: flaggingsOf(id)}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{
		FlagAccessMode: model.FlagAccessAllowSelected,
		EnabledFlags:   []string{"bookmark"},
	}}, nil, testLogger())

	deleted, err := svc.ClearAllByType(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCountsByFlagZeroValuedEntry(t *testing.T) {
	repo := &fakeFlaggingRepo{stats: nil}
	svc := NewService(repo, staticConfig{}, nil, testLogger())

	stats, err := svc.CountsByFlag(context.Background(), "bookmark")
	require.NoError(t, err)
	require.Contains(t, stats, "bookmark")
	assert.Zero(t, stats["bookmark"].TotalCount)
	assert.Zero(t, stats["bookmark"].UniqueUsers)
}

func TestCountsByUserDisallowedFlagIsSilent(t *testing.T) {
	repo := &fakeFlaggingRepo{userCounts: map[string]int64{"report": 3}}
	svc := NewService(repo, staticConfig{cfg: model.RetentionConfig{
		FlagAccessMode: model.FlagAccessAllowSelected,
		EnabledFlags:   []string{"bookmark"},
	}}, nil, testLogger())

	counts, err := svc.CountsByUser(context.Background(), uuid.New(), "report")
	require.NoError(t, err)
	assert.Empty(t, counts)
}
