package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flagkeeper/retention-api/internal/config"
	"github.com/flagkeeper/retention-api/internal/handler"
	clearerHandler "github.com/flagkeeper/retention-api/internal/handler/clearer"
	retentionHandler "github.com/flagkeeper/retention-api/internal/handler/retention"
	"github.com/flagkeeper/retention-api/internal/middleware"
)

type Router struct {
	engine     *gin.Engine
	auth       *middleware.AuthMiddleware
	retentionH *retentionHandler.Handler
	clearerH   *clearerHandler.Handler
	healthH    *handler.HealthHandler
	rateLimit  config.RateLimitConfig
	metrics    *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func newRouterMetrics() *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	retentionH *retentionHandler.Handler,
	clearerH *clearerHandler.Handler,
	healthH *handler.HealthHandler,
	rateLimit config.RateLimitConfig,
) *Router {
	return &Router{
		engine:     gin.New(),
		auth:       auth,
		retentionH: retentionH,
		clearerH:   clearerH,
		healthH:    healthH,
		rateLimit:  rateLimit,
		metrics:    newRouterMetrics(),
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(r.observe())

	if r.rateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(r.rateLimit.RequestsPerSecond),
			Burst: r.rateLimit.Burst,
		})
		r.engine.Use(limiter.RateLimit())
	}

	r.engine.GET("/health", r.healthH.Health)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())

	r.retentionH.RegisterRoutes(api, r.auth)
	r.clearerH.RegisterRoutes(api, r.auth)
}

func (r *Router) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
