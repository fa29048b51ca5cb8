package cmd

import (
	"fmt"

	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/db"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert dev seed data (relationships, tokens, destinations)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns: cfg.MySQL.MaxOpenConns,
			MaxIdleConns: cfg.MySQL.MaxIdleConns,
			PingTimeout:  cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		stmts := []string{
			`INSERT IGNORE INTO relationships (senior_id, caregiver_id) VALUES
				('u1', 'fam1'), ('u1', 'fam2'), ('u2', 'fam1')`,
			`INSERT IGNORE INTO device_tokens (user_id, token, revoked, last_seen_at) VALUES
				('fam1', 'dev-token-fam1', 0, NOW()),
				('fam2', 'dev-token-fam2-old', 1, NOW() - INTERVAL 7 DAY),
				('fam2', 'dev-token-fam2', 0, NOW())`,
			`INSERT IGNORE INTO verified_destinations (user_id, address, channel, is_active) VALUES
				('fam1', '+15550000001', 'sms', 1),
				('fam2', '+15550000002', 'sms', 0)`,
		}

		for _, s := range stmts {
			if _, err := sqlDB.Exec(s); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}

		fmt.Println(">> Seed complete")
		return nil
	},
}
