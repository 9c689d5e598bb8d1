package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/http/middleware"
	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Deps is everything the HTTP layer talks to. Runners holds enabled targets
// only; Outboxes holds every target. Attempts may be nil when ClickHouse is
// not configured.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Redis    *redis.Client
	Awards   AwardsService
	Outboxes map[model.Target]repository.OutboxRepository
	Runners  map[model.Target]*syncer.Runner
	Attempts repository.AttemptsRepository
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	cfg := d.Config

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(gommonLevel(cfg.Log.Level))
	e.Use(
		echoMid.Recover(),
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: uuid.NewString}),
		requestLogger(d.Log),
		echo.WrapMiddleware(cors.New(cors.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-API-Key"},
		}).Handler),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	secretMW := middleware.BearerSecretMiddleware(cfg.Sync.Secret)
	adminMW := middleware.AdminKeyMiddleware(cfg.Admin.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
		Log:            d.Log,
	})

	// routes
	cron := e.Group("/api/sync", secretMW)
	cron.POST("/:target", syncRunHandler(d.Runners, d.Log))
	cron.GET("/:target", syncStatusHandler(d.Outboxes, d.Runners, d.Log))

	v1 := e.Group("/v1", rlMW)
	v1.POST("/nominations", submitNominationHandler(d.Awards, d.Log))
	v1.POST("/votes", castVoteHandler(d.Awards, d.Log))

	admin := e.Group("/v1/admin", adminMW)
	admin.POST("/nominations/:id/approve", approveNominationHandler(d.Awards, d.Log))
	admin.PUT("/nominations/:id/live-url", updateLiveURLHandler(d.Awards, d.Log))
	admin.POST("/outbox/:target/:id/replay", replayHandler(d.Outboxes, d.Log))
	admin.GET("/sync/:target/attempts", listAttemptsHandler(d.Attempts, d.Log))

	return &Server{e: e, log: d.Log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("ip", v.RemoteIP),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

func gommonLevel(level string) glog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error":
		return glog.ERROR
	default:
		return glog.INFO
	}
}
