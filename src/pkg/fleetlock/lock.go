// Package fleetlock 提供跨实例的互斥锁，保证同一时刻整个集群只有一个实例执行维护任务
package fleetlock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotHeld 释放时发现锁已不属于当前持有者（过期后被其他实例获取）
	ErrNotHeld = errors.New("lock is not held by this owner")
	// ErrLockLost 持有期间续期失败，锁可能已被其他实例获取
	ErrLockLost = errors.New("lock lost")
)

// Locker 分布式锁
type Locker interface {
	// Acquire 阻塞直到获得 key 对应的锁或 ctx 结束。
	// ttl 为锁的存活时间，持有期间由实现负责续期。
	Acquire(ctx context.Context, key string, ttl time.Duration) (Handle, error)
}

// Handle 已获得的锁
type Handle interface {
	// Release 释放锁，可重复调用
	Release(ctx context.Context) error
	// Lost 在锁续期失败时关闭
	Lost() <-chan struct{}
}
