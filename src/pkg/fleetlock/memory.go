package fleetlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory 进程内 Locker 实现，用于单实例部署和测试，ttl 被忽略
type Memory struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemory 创建进程内锁
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]chan struct{})}
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

func (m *Memory) Acquire(ctx context.Context, key string, _ time.Duration) (Handle, error) {
	ch := m.slot(key)
	select {
	case ch <- struct{}{}:
		return &memoryHandle{ch: ch, lost: make(chan struct{})}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
}

type memoryHandle struct {
	ch   chan struct{}
	lost chan struct{}
	once sync.Once
}

func (h *memoryHandle) Release(context.Context) error {
	h.once.Do(func() { <-h.ch })
	return nil
}

func (h *memoryHandle) Lost() <-chan struct{} {
	return h.lost
}
