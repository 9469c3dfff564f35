package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// scanCount 每次 SCAN 建议返回的 key 数量
const scanCount = 500

// Redis 使用 SCAN + DEL 删除匹配的 key
type Redis struct {
	client redis.UniversalClient
}

// NewRedis 创建 Redis 缓存失效器
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) ScanDelete(ctx context.Context, pattern string) (int, error) {
	// 集群模式下 SCAN 只覆盖单个节点，需要遍历所有主节点
	if cc, ok := r.client.(*redis.ClusterClient); ok {
		var total atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			n, err := scanDelete(ctx, c, pattern)
			total.Add(int64(n))
			return err
		})
		return int(total.Load()), err
	}
	return scanDelete(ctx, r.client, pattern)
}

func scanDelete(ctx context.Context, c redis.Cmdable, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete %d keys matching %s: %w", len(keys), pattern, err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
