package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/carelink/engage/internal/bridge"
	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/http/middleware"
	"github.com/carelink/engage/internal/logger"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/notifier"
	"github.com/carelink/engage/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

// NewServer wires the serve deployable: health, metrics, direct-call
// bridge, device registration and the delivery/feed read models. The
// broker client is owned by the caller, which closes it on shutdown.
func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, bk broker.Client) *Server {
	// repos (MySQL)
	devicesRepo := repository.NewDeviceTokensRepository(mysqlDB)
	destinationsRepo := repository.NewDestinationsRepository(mysqlDB)
	relationshipsRepo := repository.NewRelationshipsRepository(mysqlDB)
	feedRepo := repository.NewFeedRepository(mysqlDB)

	// repos (ClickHouse)
	deliveriesRepo := repository.NewDeliveriesRepository(clickhouseDB)

	// the bridge shares the router implementation with the log path;
	// the routing table decides which event types may use it
	registry := notifier.BuildRegistry(cfg.Adapters, notifier.Deps{
		Devices:      devicesRepo,
		Destinations: destinationsRepo,
		Feed:         feedRepo,
		Broker:       bk,
		Namespace:    cfg.Broker.Namespace,
		Log:          logger.L(),
	})
	router := notifier.NewRouter(registry, relationshipsRepo, deliveriesRepo, logger.L())

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:dev:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", rlMW)
	v1.POST("/events", bridge.PublishEventHandler(cfg, router))
	v1.POST("/devices", registerDeviceHandler(devicesRepo))
	v1.DELETE("/devices", revokeDeviceHandler(devicesRepo))
	v1.GET("/reports/deliveries", listDeliveriesHandler(deliveriesRepo))
	v1.GET("/feed/:userId", listFeedHandler(feedRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
