// Package writegate 提供集群级写门闸
//
// 迁移期间门闸处于 Blocked 状态，请求处理层在执行任何写操作前
// 调用 AssertWriteAllowed 检查，写入被拒绝或排队由调用方决定。
package writegate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultKey Redis 中保存门闸状态的 key
const DefaultKey = "maintenance:writes"

// ErrWritesBlocked 写门闸关闭时的写操作错误
var ErrWritesBlocked = errors.New("writes are blocked for maintenance")

// State 门闸关闭时记录的信息
type State struct {
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
	Host   string    `json:"host"`
}

// Gate 写门闸
type Gate interface {
	// Block 关闭写入，重复调用会覆盖原因
	Block(ctx context.Context, reason string) error
	// Unblock 恢复写入，未关闭时调用也不报错
	Unblock(ctx context.Context) error
	// State 返回当前状态，未关闭时返回 nil
	State(ctx context.Context) (*State, error)
}

// AssertWriteAllowed 校验写操作是否允许，operation 仅用于错误信息
func AssertWriteAllowed(ctx context.Context, g Gate, operation string) error {
	st, err := g.State(ctx)
	if err != nil {
		return fmt.Errorf("check write gate for %s: %w", operation, err)
	}
	if st != nil {
		return fmt.Errorf("%s: %w (%s)", operation, ErrWritesBlocked, st.Reason)
	}
	return nil
}
