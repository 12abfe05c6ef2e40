package cmd

import (
	"fmt"
	"os"

	"github.com/Fi44er/casino_ledger/config"
	"github.com/Fi44er/casino_ledger/utils"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Casino wallet ledger for game aggregator callbacks",
	Long: `ledger keeps player balances for a casino and answers the signed
wallet callbacks (balance, debit, credit, rollback) of a game aggregator.`,
	SilenceUsage: true,
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "path to the env config file")
}

func loadConfig() (config.Config, *utils.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, utils.InitLogger(cfg.LogLevel, cfg.LogFormat), nil
}
