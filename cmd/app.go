package cmd

import (
	"context"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/agent"
	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/callback"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/memory"
	"github.com/hildam/fin-flow-go/repo/metrics"
	"github.com/hildam/fin-flow-go/repo/tool"
)

// app 进程内组装好的依赖
// 依赖初始化失败时只记录日志，引擎按未就绪走降级路径
type app struct {
	cfg     conf.AppConfig
	metrics *metrics.Metrics
	deps    *comm.Deps
	engine  *agent.Engine
}

func newApp(ctx context.Context, cfg conf.AppConfig, opts ...agent.Option) *app {
	m := metrics.New()
	d := &comm.Deps{
		Bus:     bus.New(bus.WithSubscriberHook(m.SetSubscribers)),
		Metrics: m,
		Config:  cfg,
	}

	if tools, err := tool.New(ctx, cfg, tool.WithMetrics(m)); err != nil {
		slog.Error("init tool gateway failed, err = %v", err)
	} else {
		d.Tools = tools
	}

	var embed memory.Embedder
	if models, err := llm.New(ctx, cfg.Model, llm.WithMetrics(m), llm.WithCallbacks(&callback.ModelLogger{Metrics: m})); err != nil {
		slog.Error("init model gateway failed, err = %v", err)
	} else {
		d.Models = models
		embed = models
	}
	d.Memory = memory.New(cfg.Memory, embed)

	if b, err := broker.New(cfg.Broker); err != nil {
		slog.Error("init broker failed, use log broker, err = %v", err)
		d.Broker = broker.NewLog()
	} else {
		d.Broker = b
	}

	return &app{cfg: cfg, metrics: m, deps: d, engine: agent.NewEngine(d, opts...)}
}

// Close 等待运行结束后释放依赖
func (a *app) Close() {
	a.engine.Close()
	a.deps.Bus.Close()
	if a.deps.Tools != nil {
		_ = a.deps.Tools.Close()
	}
	if err := a.deps.Memory.Close(); err != nil {
		slog.Error("close memory failed, err = %v", err)
	}
	if err := a.deps.Broker.Close(); err != nil {
		slog.Error("close broker failed, err = %v", err)
	}
}
