package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flagkeeper/retention-api/internal/config"
	"github.com/flagkeeper/retention-api/internal/notifier"
	"github.com/flagkeeper/retention-api/internal/repository/postgres"
	"github.com/flagkeeper/retention-api/internal/service/cleanup"
	"github.com/flagkeeper/retention-api/internal/service/clearer"
	"github.com/flagkeeper/retention-api/internal/service/retention"
	"github.com/flagkeeper/retention-api/internal/worker"
	"github.com/flagkeeper/retention-api/pkg/lock"
	"github.com/flagkeeper/retention-api/pkg/logger"
	"github.com/flagkeeper/retention-api/pkg/messaging"
	messagingRedis "github.com/flagkeeper/retention-api/pkg/messaging/redis"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "Failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	// Broker and lock share one Redis connection when configured.
	var broker messaging.Broker = messaging.NoopBroker{}
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Redis.URL != "" {
		rb, err := messagingRedis.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Fatal(err, "Failed to connect to Redis")
		}
		broker = rb
		locker = lock.NewRedisLocker(rb.(*messagingRedis.RedisBroker).Client())
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	policyRepo := postgres.NewPolicyRepository(base)
	flaggingRepo := postgres.NewFlaggingRepository(base)

	retentionSvc := retention.NewService(policyRepo, flaggingRepo, cfg)
	clearerSvc := clearer.NewService(flaggingRepo, cfg, broker, log)
	cleanupSvc := cleanup.NewService(retentionSvc, clearerSvc, cfg, log)

	w := worker.NewCleanupWorker(
		cleanupSvc,
		locker,
		notifier.NewMailer(cfg.SMTP),
		cfg.Worker,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveHealth(ctx, db, log)

	if err := w.Start(ctx); err != nil {
		log.Fatal(err, "Worker failed")
	}
}

// serveHealth exposes liveness and metrics for the worker process on a
// side port.
func serveHealth(ctx context.Context, pinger interface{ Ping() error }, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pinger.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":8081", Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info("Starting worker health endpoint", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(err, "Worker health endpoint failed")
	}
}
