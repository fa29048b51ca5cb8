package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/db"
	"github.com/carelink/engage/internal/game"
	"github.com/carelink/engage/internal/kafka"
	"github.com/carelink/engage/internal/logger"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run the engagement consumer (engagement.events -> game state)",
	RunE:  runConsumer,
}

func runConsumer(cmd *cobra.Command, args []string) error {
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

	// 2) DB connection (MySQL)
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

	statesRepo := repository.NewGameStateRepository(dbx)

	// 3) kafka: ordered per-user log in, derived events out
	groupID := cfg.Kafka.GroupID + "-consumer"
	source := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          game.TopicEngagement,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		StartOffset:    cfg.Kafka.StartOffset,
	})
	defer source.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, game.TopicGamification)
	defer producer.Close()

	w := game.NewConsumer(source, statesRepo, producer, logger.L())

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> engagement consumer started topic=%s group=%s", game.TopicEngagement, groupID)

	return w.Run(ctx)
}
