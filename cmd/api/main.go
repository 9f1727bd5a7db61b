package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flagkeeper/retention-api/internal/config"
	"github.com/flagkeeper/retention-api/internal/handler"
	clearerHandler "github.com/flagkeeper/retention-api/internal/handler/clearer"
	retentionHandler "github.com/flagkeeper/retention-api/internal/handler/retention"
	"github.com/flagkeeper/retention-api/internal/middleware"
	"github.com/flagkeeper/retention-api/internal/repository/postgres"
	"github.com/flagkeeper/retention-api/internal/router"
	"github.com/flagkeeper/retention-api/internal/service/cleanup"
	"github.com/flagkeeper/retention-api/internal/service/clearer"
	"github.com/flagkeeper/retention-api/internal/service/retention"
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

	var broker messaging.Broker = messaging.NoopBroker{}
	if cfg.Redis.URL != "" {
		broker, err = messagingRedis.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Fatal(err, "Failed to connect to Redis")
		}
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	policyRepo := postgres.NewPolicyRepository(base)
	flaggingRepo := postgres.NewFlaggingRepository(base)

	retentionSvc := retention.NewService(policyRepo, flaggingRepo, cfg)
	clearerSvc := clearer.NewService(flaggingRepo, cfg, broker, log)
	cleanupSvc := cleanup.NewService(retentionSvc, clearerSvc, cfg, log)

	auth := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.NewRouter(
		auth,
		retentionHandler.NewHandler(retentionSvc, cleanupSvc),
		clearerHandler.NewHandler(clearerSvc),
		handler.NewHealthHandler(db),
		cfg.RateLimit,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}
