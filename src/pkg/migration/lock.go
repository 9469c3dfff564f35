package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/pkg/fleetlock"
)

// LockKey Run 与 Finalize 共用的集群锁
const LockKey = "maintenance:migrations"

// withLock 在集群锁内执行 fn
//
// 锁续期失败时 fn 收到的 ctx 会被取消，原因为 fleetlock.ErrLockLost。
// 释放锁使用独立的超时，调用方 ctx 已取消时也会释放。
func (m *Manager) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	key := m.opts.LockKey
	logger := m.logger.WithField("lock", key)

	logger.Debug("acquiring fleet lock")
	handle, err := m.locker.Acquire(ctx, key, m.opts.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	logger.Debug("fleet lock acquired")

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RollbackTimeout)
		defer cancel()
		if err := handle.Release(releaseCtx); err != nil {
			logger.WithError(err).Warn("failed to release fleet lock")
			return
		}
		logger.Debug("fleet lock released")
	}()

	lost := handle.Lost()
	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-lost:
			logger.WithFields(logrus.Fields{"ttl": m.opts.LockTTL.String()}).Error("fleet lock lost")
			cancel(fleetlock.ErrLockLost)
		case <-lockCtx.Done():
		}
	}()

	return fn(lockCtx)
}
