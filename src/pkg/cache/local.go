package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/gobwas/glob"
)

// Local 进程内 LRU 缓存，同样支持按通配模式失效
type Local struct {
	c gcache.Cache
}

// NewLocal 创建本地缓存，ttl<=0 表示不过期
func NewLocal(size int, ttl time.Duration) *Local {
	b := gcache.New(size).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}
	return &Local{c: b.Build()}
}

// Get 读取缓存
func (l *Local) Get(key string) (any, bool) {
	v, err := l.c.Get(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set 写入缓存
func (l *Local) Set(key string, value any) {
	_ = l.c.Set(key, value)
}

// SetWithExpire 写入缓存，单独指定过期时间
func (l *Local) SetWithExpire(key string, value any, ttl time.Duration) {
	_ = l.c.SetWithExpire(key, value, ttl)
}

// Remove 删除单个缓存项
func (l *Local) Remove(key string) bool {
	return l.c.Remove(key)
}

// Len 当前未过期的缓存项数量
func (l *Local) Len() int {
	return l.c.Len(true)
}

// ScanDelete 删除匹配 pattern 的缓存项，匹配规则与 Redis SCAN MATCH 一致（'*' 可跨越 '/' 与 ':'）
func (l *Local) ScanDelete(ctx context.Context, pattern string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	deleted := 0
	for _, k := range l.c.Keys(false) {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		key, ok := k.(string)
		if !ok {
			continue
		}
		if g.Match(key) && l.c.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}
