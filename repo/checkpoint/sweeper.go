package checkpoint

import (
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/robfig/cron/v3"
)

// Sweeper 定期清理过期的挂起运行
type Sweeper struct {
	store *Store
	ttl   time.Duration
	cron  *cron.Cron
}

// NewSweeper 创建清理任务，interval 为清理周期
func NewSweeper(store *Store, ttl, interval time.Duration) (*Sweeper, error) {
	if ttl <= 0 || interval <= 0 {
		return nil, fmt.Errorf("invalid sweeper config, ttl = %v, interval = %v", ttl, interval)
	}
	s := &Sweeper{store: store, ttl: ttl, cron: cron.New()}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.run); err != nil {
		return nil, fmt.Errorf("add sweep job failed: %w", err)
	}
	return s, nil
}

// Start 启动
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop 停止并等待正在执行的清理结束
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	if removed := s.store.Sweep(s.ttl); len(removed) > 0 {
		slog.Info("checkpoint sweeper removed %d parked runs: %v", len(removed), removed)
	}
}
