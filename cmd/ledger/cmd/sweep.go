package cmd

import (
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/worker"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue bonuses once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.close()

		lock, closeLock := redisLock(cfg.RedisAddr, logger)
		defer closeLock()

		n := worker.NewSweeper(a.service, lock, logger).Sweep(cmd.Context())
		fmt.Printf("expired %d bonuses\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
