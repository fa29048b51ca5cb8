package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/db"
	"github.com/carelink/engage/internal/game"
	"github.com/carelink/engage/internal/kafka"
	"github.com/carelink/engage/internal/logger"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/notifier"
	"github.com/carelink/engage/internal/repository"
	"github.com/carelink/engage/internal/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run the notification router (gamification.events + broker -> channel adapters)",
	RunE:  runRouter,
}

func runRouter(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) stores
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	rds, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}

	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer func() { _ = chDB.Close() }()

	// 3) broker, adapters, router
	bk := broker.NewRedisClient(rds, logger.L())
	defer func() { _ = bk.Close() }()

	registry := notifier.BuildRegistry(cfg.Adapters, notifier.Deps{
		Devices:      repository.NewDeviceTokensRepository(dbx),
		Destinations: repository.NewDestinationsRepository(dbx),
		Feed:         repository.NewFeedRepository(dbx),
		Broker:       bk,
		Namespace:    cfg.Broker.Namespace,
		Log:          logger.L(),
	})
	router := notifier.NewRouter(
		registry,
		repository.NewRelationshipsRepository(dbx),
		repository.NewDeliveriesRepository(chDB),
		logger.L(),
	)

	groupID := cfg.Kafka.GroupID + "-router"
	source := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          game.TopicGamification,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		StartOffset:    cfg.Kafka.StartOffset,
	})
	defer source.Close()

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := router.RunBroker(ctx, bk)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", notifier.TopicNotifications, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// correlated call surface: producers that need a synchronous ack
	// publish to <ns>/request/notify instead of the fire-and-forget topic
	responder := request.NewResponder(bk, cfg.Broker.Namespace, logger.L())
	err = responder.Serve(ctx, cfg.Broker.Namespace+"/request/notify", func(ctx context.Context, payload []byte) ([]byte, error) {
		ev, perr := model.ParseEvent(payload)
		if perr != nil {
			return nil, perr
		}
		router.Handle(ctx, ev)
		return json.Marshal(model.Ack{OK: true})
	})
	if err != nil {
		return fmt.Errorf("serve notify requests: %w", err)
	}
	defer func() { _ = responder.Stop() }()

	log.Printf(">> notification router started log=%s broker=%s group=%s",
		game.TopicGamification, notifier.TopicNotifications, groupID)

	return router.RunLog(ctx, source)
}
