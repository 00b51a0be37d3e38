package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hildam/fin-flow-go/entity/conf"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "finflow",
	Short: "finflow - salary deposit advisory pipeline",
	Long: `finflow turns a salary deposit into a savings, risk and investment
recommendation, then executes the user's decision.

Commands:
  serve       Run the HTTP front door, metrics, deposit consumer and sweeper
  deposit     Run one deposit in-process and print the events
  health      Print dependency health
  publish     Publish a message to the broker`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		return conf.Init(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
}

// loadEnv 加载 .env，文件不存在时忽略
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
