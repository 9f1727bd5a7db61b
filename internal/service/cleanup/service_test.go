package cleanup

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
	"github.com/flagkeeper/retention-api/pkg/logger"
)

type fakeSource struct {
	policies  map[string]int
	listErr   error
	expired   map[string][]uuid.UUID
	selectErr map[string]error
	limits    []int
	order     []string
}

func (f *fakeSource) ListAutoClear(ctx context.Context) (map[string]int, error) {
	return f.policies, f.listErr
}

func (f *fakeSource) SelectExpired(ctx context.Context, flagID string, retentionDays int, now time.Time, limit int) ([]uuid.UUID, error) {
	f.order = append(f.order, flagID)
	f.limits = append(f.limits, limit)
	if err := f.selectErr[flagID]; err != nil {
		return nil, err
	}
	ids := f.expired[flagID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fakeDeleter struct {
	err     error
	deleted [][]uuid.UUID
}

func (f *fakeDeleter) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deleted = append(f.deleted, ids)
	return int64(len(ids)), nil
}

type staticConfig struct {
	cfg model.RetentionConfig
}

func (s staticConfig) Snapshot() model.RetentionConfig { return s.cfg }

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
}

func uuids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestRunTickDeletesExpired(t *testing.T) {
	source := &fakeSource{
		policies: map[string]int{"bookmark": 30},
		expired:  map[string][]uuid.UUID{"bookmark": uuids(5)},
	}
	deleter := &fakeDeleter{}
	svc := NewService(source, deleter, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TickCompleted, result.State)
	assert.Equal(t, int64(5), result.TotalDeleted)
	assert.Equal(t, int64(5), result.DeletedByFlag["bookmark"])
	assert.Empty(t, result.FailedFlagIDs)
}

func TestRunTickSharedBudget(t *testing.T) {
	// Two policies with 8 expired each and a budget of 10: the first
	// gets 8, the second only the remaining 2.
	source := &fakeSource{
		policies: map[string]int{"a_first": 30, "b_second": 30},
		expired: map[string][]uuid.UUID{
			"a_first":  uuids(8),
			"b_second": uuids(8),
		},
	}
	deleter := &fakeDeleter{}
	svc := NewService(source, deleter, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 10}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalDeleted)
	assert.Equal(t, int64(8), result.DeletedByFlag["a_first"])
	assert.Equal(t, int64(2), result.DeletedByFlag["b_second"])
	assert.Equal(t, []int{10, 2}, source.limits)
}

func TestRunTickBudgetExhaustionSkipsRemaining(t *testing.T) {
	source := &fakeSource{
		policies: map[string]int{"a_first": 30, "b_second": 30, "c_third": 30},
		expired: map[string][]uuid.UUID{
			"a_first":  uuids(10),
			"b_second": uuids(10),
			"c_third":  uuids(10),
		},
	}
	deleter := &fakeDeleter{}
	svc := NewService(source, deleter, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 10}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalDeleted)

	// The third policy was never consulted.
	assert.Equal(t, []string{"a_first", "b_second"}, source.order)
}

func TestRunTickStableOrder(t *testing.T) {
	source := &fakeSource{
		policies: map[string]int{"zebra": 1, "alpha": 1, "mango": 1},
		expired:  map[string][]uuid.UUID{},
	}
	svc := NewService(source, &fakeDeleter{}, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	_, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, source.order)
}

func TestRunTickPartialFailureContinues(t *testing.T) {
	source := &fakeSource{
		policies: map[string]int{"a_broken": 30, "b_healthy": 30},
		expired:  map[string][]uuid.UUID{"b_healthy": uuids(3)},
		selectErr: map[string]error{
			"a_broken": errors.New("relation does not exist"),
		},
	}
	deleter := &fakeDeleter{}
	svc := NewService(source, deleter, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TickPartiallyFailed, result.State)
	assert.Equal(t, []string{"a_broken"}, result.FailedFlagIDs)
	assert.Equal(t, int64(3), result.TotalDeleted)
}

func TestRunTickPolicyListFailure(t *testing.T) {
	source := &fakeSource{listErr: errors.New("connection refused")}
	svc := NewService(source, &fakeDeleter{}, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	_, err := svc.RunTick(context.Background())
	assert.Error(t, err)
}

func TestRunTickNoPolicies(t *testing.T) {
	source := &fakeSource{policies: map[string]int{}}
	svc := NewService(source, &fakeDeleter{}, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TickCompleted, result.State)
	assert.Zero(t, result.TotalDeleted)
}

func TestRunTickDeletionFailureRecorded(t *testing.T) {
	source := &fakeSource{
		policies: map[string]int{"bookmark": 30},
		expired:  map[string][]uuid.UUID{"bookmark": uuids(4)},
	}
	deleter := &fakeDeleter{err: errors.New("deadlock detected")}
	svc := NewService(source, deleter, staticConfig{cfg: model.RetentionConfig{CronBatchSize: 100}}, testLogger())

	result, err := svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TickPartiallyFailed, result.State)
	assert.Equal(t, []string{"bookmark"}, result.FailedFlagIDs)
	assert.Zero(t, result.TotalDeleted)
}
