package writegate

import (
	"context"
	"sync"
	"time"
)

// Memory 进程内 Gate 实现
type Memory struct {
	mu    sync.RWMutex
	state *State
}

// NewMemory 创建处于打开状态的门闸
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Block(_ context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &State{Reason: reason, Since: time.Now().UTC()}
	return nil
}

func (m *Memory) Unblock(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

func (m *Memory) State(context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, nil
	}
	st := *m.state
	return &st, nil
}
