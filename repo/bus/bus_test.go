package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) model.Event {
	t.Helper()
	select {
	case ev, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.Event{}
}

func TestBus_OrderPerSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	s1, s2 := b.Subscribe(), b.Subscribe()
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Publish(model.NewEvent("agent-output", "c1", i)))
	}
	for _, s := range []*Subscription{s1, s2} {
		for i := 0; i < 100; i++ {
			assert.Equal(t, i, recv(t, s).Data)
		}
	}
}

func TestBus_OnlyEventsAfterSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	early := b.Subscribe()
	require.NoError(t, b.Publish(model.NewEvent("notification", "c1", "before")))
	assert.Equal(t, "before", recv(t, early).Data)

	late := b.Subscribe()
	require.NoError(t, b.Publish(model.NewEvent("notification", "c1", "after")))
	assert.Equal(t, "after", recv(t, late).Data)
	assert.Equal(t, "after", recv(t, early).Data)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	const n = 5000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			_ = b.Publish(model.NewEvent("agent-output", "c1", i))
		}
	}()

	for i := 0; i < n; i++ {
		assert.Equal(t, i, recv(t, fast).Data)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked by slow subscriber")
	}

	// 慢订阅者最终也按顺序收到全部事件
	for i := 0; i < n; i++ {
		assert.Equal(t, i, recv(t, slow).Data)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	b := New(WithSubscriberHook(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}))
	defer b.Close()

	s := b.Subscribe()
	require.NoError(t, b.Publish(model.NewEvent("x", "c1", 1)))
	s.Close()

	// 取消订阅后通道关闭
	for range s.C() {
	}
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Publish(model.NewEvent("x", "c1", 2)))

	mu.Lock()
	assert.Equal(t, []int{1, 0}, counts)
	mu.Unlock()

	assert.NotPanics(t, s.Close, "double close")
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	b := New()
	defer b.Close()
	s := b.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = b.Publish(model.NewEvent("x", fmt.Sprintf("p%d", p), i))
			}
		}(p)
	}
	wg.Wait()

	// 同一发布者的事件保持先后顺序
	last := map[string]int{"p0": -1, "p1": -1, "p2": -1, "p3": -1}
	for i := 0; i < 200; i++ {
		ev := recv(t, s)
		n := ev.Data.(int)
		assert.Greater(t, n, last[ev.CorrelationID])
		last[ev.CorrelationID] = n
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	s := b.Subscribe()
	b.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(model.NewEvent("x", "c1", nil)), ErrClosed)

	late := b.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}
