// Package cache 提供缓存失效能力
//
// 迁移可能改变响应结构，旧结构的缓存必须在旧索引代删除后整体清除，
// 因此失效以前缀通配（"{prefix}*"）为单位进行。
package cache

import (
	"context"
	"errors"
)

// Invalidator 按通配模式删除缓存项，返回删除的数量
type Invalidator interface {
	ScanDelete(ctx context.Context, pattern string) (int, error)
}

// Multi 将失效请求分发给多个 Invalidator，某一层失败不影响其他层
type Multi []Invalidator

func (m Multi) ScanDelete(ctx context.Context, pattern string) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, inv := range m {
		n, err := inv.ScanDelete(ctx, pattern)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
