package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/hildam/fin-flow-go/entity/model"
)

// entry 单个运行的存储点
type entry struct {
	state    *model.RunState
	userID   string            // 运行所属用户，创建后不变
	inFlight bool              // 是否有执行者持有该状态
	pending  *model.UserAction // 执行中收到的用户决定
	parkedAt time.Time
}

// Store 运行状态存储点，按 correlationId 索引
// 同时充当每个 correlationId 的互斥锁：同一时刻只有一个执行者持有状态
type Store struct {
	mu  sync.Mutex
	buf map[string]*entry

	onChange func(n int)
}

// New 创建存储点
func New() *Store {
	return &Store{buf: make(map[string]*entry)}
}

// OnChange 数量变化回调
func (c *Store) OnChange(fn func(n int)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Begin 登记新的运行并由调用方持有
func (c *Store) Begin(st *model.RunState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.buf[st.CorrelationID]; ok {
		if e.inFlight {
			return fmt.Errorf("%w: %s", model.ErrRunInFlight, st.CorrelationID)
		}
		return fmt.Errorf("%w: %s", model.ErrRunExists, st.CorrelationID)
	}
	c.buf[st.CorrelationID] = &entry{state: st, userID: st.UserID, inFlight: true}
	c.changed()
	return nil
}

// Deliver 投递用户决定，userID 必须与运行所属用户一致
// 运行已挂起时取回状态并转为持有，返回 resumed=true；执行中时记为待处理决定
func (c *Store) Deliver(id, userID string, action model.UserAction) (st *model.RunState, resumed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.buf[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", model.ErrRunNotFound, id)
	}
	if e.userID != userID {
		return nil, false, fmt.Errorf("%w: run %s does not belong to user %q", model.ErrInvalidRequest, id, userID)
	}
	if e.inFlight {
		a := action
		e.pending = &a
		return nil, false, nil
	}
	e.inFlight = true
	e.parkedAt = time.Time{}
	return e.state, true, nil
}

// TakePending 取出执行中收到的用户决定
func (c *Store) TakePending(id string) (model.UserAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.buf[id]
	if !ok || e.pending == nil {
		return model.UserAction{}, false
	}
	a := *e.pending
	e.pending = nil
	return a, true
}

// Park 运行停在 end 等待用户决定时释放持有
// 若期间已收到决定则不释放，返回该决定由调用方继续执行
func (c *Store) Park(id string) (model.UserAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.buf[id]
	if !ok {
		return model.UserAction{}, false
	}
	if e.pending != nil {
		a := *e.pending
		e.pending = nil
		return a, true
	}
	e.inFlight = false
	e.parkedAt = time.Now()
	return model.UserAction{}, false
}

// Finish 运行进入终态，丢弃存储点
func (c *Store) Finish(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.buf[id]; ok {
		delete(c.buf, id)
		c.changed()
	}
}

// Parked 读取挂起运行的快照，执行中的运行返回 false
func (c *Store) Parked(id string) (*model.RunState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.buf[id]
	if !ok || e.inFlight {
		return nil, false
	}
	return e.state.Clone(), true
}

// Len 存储点数量
func (c *Store) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Sweep 删除挂起超过 ttl 的运行，执行中的运行不受影响
func (c *Store) Sweep(ttl time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var removed []string
	for id, e := range c.buf {
		if !e.inFlight && !e.parkedAt.IsZero() && now.Sub(e.parkedAt) > ttl {
			delete(c.buf, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		c.changed()
	}
	return removed
}

func (c *Store) changed() {
	if c.onChange != nil {
		c.onChange(len(c.buf))
	}
}
