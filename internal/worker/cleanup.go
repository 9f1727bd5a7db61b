package worker

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/flagkeeper/retention-api/internal/config"
	"github.com/flagkeeper/retention-api/internal/model"
	"github.com/flagkeeper/retention-api/internal/notifier"
	"github.com/flagkeeper/retention-api/internal/service/cleanup"
	"github.com/flagkeeper/retention-api/pkg/lock"
	"github.com/flagkeeper/retention-api/pkg/logger"
)

// tickLockKey guards against overlapping ticks across worker replicas.
const tickLockKey = "retention:cleanup:tick"

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_cleanup_ticks_total",
		Help: "Cleanup ticks by outcome",
	}, []string{"state"})

	deletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retention_flaggings_deleted_total",
		Help: "Flaggings deleted by the cleanup worker",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retention_cleanup_tick_duration_seconds",
		Help:    "Duration of cleanup ticks",
		Buckets: prometheus.DefBuckets,
	})
)

// CleanupWorker runs expired-flagging cleanup on a cron schedule. A
// Redis lock keeps replicas from running the same tick concurrently.
type CleanupWorker struct {
	service *cleanup.Service
	locker  lock.Locker
	mailer  *notifier.Mailer
	cfg     config.WorkerConfig
	logger  *logger.Logger
	cron    *cron.Cron
}

func NewCleanupWorker(
	service *cleanup.Service,
	locker lock.Locker,
	mailer *notifier.Mailer,
	cfg config.WorkerConfig,
	logger *logger.Logger,
) *CleanupWorker {
	return &CleanupWorker{
		service: service,
		locker:  locker,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start schedules the worker and blocks until ctx is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.cfg.Schedule, func() {
		w.runOnce(ctx)
	})
	if err != nil {
		return err
	}

	w.logger.Info("Starting cleanup worker", "schedule", w.cfg.Schedule)
	w.cron.Start()

	<-ctx.Done()

	stopped := w.cron.Stop()
	<-stopped.Done()
	w.logger.Info("Cleanup worker stopped")
	return nil
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	acquired, err := w.locker.Acquire(ctx, tickLockKey, w.cfg.LockTTL)
	if err != nil {
		w.logger.Error(err, "Failed to acquire cleanup lock")
		ticksTotal.WithLabelValues(string(model.TickSkipped)).Inc()
		return
	}
	if !acquired {
		w.logger.Info("Cleanup tick already running elsewhere, skipping")
		ticksTotal.WithLabelValues(string(model.TickSkipped)).Inc()
		return
	}
	defer func() {
		if err := w.locker.Release(ctx, tickLockKey); err != nil {
			w.logger.Error(err, "Failed to release cleanup lock")
		}
	}()

	result, err := w.service.RunTick(ctx)
	if err != nil {
		w.logger.Error(err, "Cleanup tick failed")
		ticksTotal.WithLabelValues(string(model.TickPartiallyFailed)).Inc()
		return
	}

	ticksTotal.WithLabelValues(string(result.State)).Inc()
	deletedTotal.Add(float64(result.TotalDeleted))
	tickDuration.Observe(result.Duration.Seconds())

	if result.State == model.TickPartiallyFailed {
		if err := w.mailer.NotifyTickFailure(result); err != nil {
			w.logger.Error(err, "Failed to send tick failure notice")
		}
	}
}
