package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finflow"

// Metrics 运行指标，所有方法对 nil 接收者安全
type Metrics struct {
	Registry *prometheus.Registry

	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFallback *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	modelCalls    *prometheus.CounterVec
	modelTokens   *prometheus.CounterVec
	brokerPublish *prometheus.CounterVec
	subscribers   prometheus.Gauge
	checkpoints   prometheus.Gauge
}

// New 创建独立 registry 上的指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		runsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Number of runs started, by the path they started on",
		}, []string{"path"}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_finished_total",
			Help: "Number of runs that reached a resting or terminal stage",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Stage handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		stageFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_fallback_total",
			Help: "Number of stage runs that used the manual tool plan",
		}, []string{"stage"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_calls_total",
			Help: "Finance tool invocations by path and outcome",
		}, []string{"path", "outcome"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_calls_total",
			Help: "Model invocations by backend and outcome",
		}, []string{"backend", "outcome"}),
		modelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_tokens_total",
			Help: "Tokens reported by model backends",
		}, []string{"backend", "kind"}),
		brokerPublish: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broker_publish_total",
			Help: "Broker publishes by topic and outcome",
		}, []string{"topic", "outcome"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bus_subscribers",
			Help: "Current event bus subscribers",
		}),
		checkpoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checkpoints",
			Help: "Run states currently held in the checkpoint store",
		}),
	}
}

// Outcome 由 err 得到 ok 或 error 标签
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RunStarted 每个运行只记一次，path 为 pipeline 或 degraded
func (m *Metrics) RunStarted(path string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(path).Inc()
}

// RunFinished status 为运行停下时的阶段：end、done 或 error
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(status).Inc()
}

// ObserveStage 记录阶段耗时与是否走了兜底
func (m *Metrics) ObserveStage(stage string, d time.Duration, fallback bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if fallback {
		m.stageFallback.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ToolCall(path string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(path, Outcome(err)).Inc()
}

func (m *Metrics) ModelCall(backend string, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(backend, Outcome(err)).Inc()
}

func (m *Metrics) ModelTokens(backend string, prompt, completion int) {
	if m == nil {
		return
	}
	m.modelTokens.WithLabelValues(backend, "prompt").Add(float64(prompt))
	m.modelTokens.WithLabelValues(backend, "completion").Add(float64(completion))
}

func (m *Metrics) BrokerPublish(topic string, err error) {
	if m == nil {
		return
	}
	m.brokerPublish.WithLabelValues(topic, Outcome(err)).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) SetCheckpoints(n int) {
	if m == nil {
		return
	}
	m.checkpoints.Set(float64(n))
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve 在独立端口上提供 /metrics，ctx 取消后关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
