package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/db"
	"github.com/carelink/engage/internal/logger"
	"github.com/carelink/engage/internal/request"
	"github.com/spf13/cobra"
)

var pingPayload string

// pingCmd exercises the correlated request path end to end against a
// running router: publish, wait for the matching ack, print it.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a correlated notify request over the broker and await the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger.Init(cfg.Log.Level)

		rds, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}

		bk := broker.NewRedisClient(rds, logger.L())

		client, err := request.New(context.Background(), bk, cfg.Broker.Namespace, cfg.Broker.ResponseTimeout())
		if err != nil {
			return fmt.Errorf("request client: %w", err)
		}
		defer func() { _ = client.Close() }()

		start := time.Now()
		reply, err := client.Send(cmd.Context(), cfg.Broker.Namespace+"/request/notify", []byte(pingPayload), 0)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}

		fmt.Printf(">> reply in %s: %s\n", time.Since(start).Round(time.Millisecond), reply)
		return nil
	},
}

func init() {
	pingCmd.Flags().StringVar(&pingPayload, "payload", `{"type":"notification","userId":"u1","timestamp":"2024-01-01T08:00:00Z","payload":{"text":"ping"}}`, "event JSON to send")
	rootCmd.AddCommand(pingCmd)
}
