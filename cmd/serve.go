package cmd

import (
	"context"

	"github.com/HildaM/logs/slog"
	"github.com/spf13/cobra"

	"github.com/hildam/fin-flow-go/agent"
	"github.com/hildam/fin-flow-go/biz/handler"
	"github.com/hildam/fin-flow-go/biz/router"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/checkpoint"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP front door",
	Long: `Run the HTTP front door together with the metrics endpoint, the
checkpoint sweeper and, when broker.consume_deposits is set, the deposit consumer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), *conf.GetCfg())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg conf.AppConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := checkpoint.New()
	a := newApp(ctx, cfg, agent.WithStore(store))
	defer a.Close()

	sweeper, err := checkpoint.NewSweeper(store, cfg.Checkpoint.TTL, cfg.Checkpoint.SweepInterval)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.Server.MetricsAddr); err != nil {
				slog.Error("metrics server failed, err = %v", err)
			}
		}()
	}

	if cfg.Broker.ConsumeDeposits {
		go func() {
			err := broker.ConsumeDeposits(ctx, a.deps.Broker, func(ctx context.Context, d broker.Deposit) error {
				_, err := a.engine.StartRun(ctx, d.UserID, d.Amount, d.CorrelationID)
				return err
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("deposit consumer stopped, err = %v", err)
			}
		}()
	}

	if !a.engine.IsReady() {
		slog.Error("engine not ready, runs will use the degraded path")
	}

	h := router.NewServer(cfg.Server.Addr, handler.New(a.engine, a.deps.Broker))
	slog.Info("http server listening on %s", cfg.Server.Addr)
	// Spin 在收到退出信号后返回
	h.Spin()
	return nil
}
