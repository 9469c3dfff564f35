package writegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis 基于 Redis key 的 Gate 实现，key 存在即表示写入被关闭
type Redis struct {
	client redis.UniversalClient
	key    string
	logger *logrus.Entry
}

// NewRedis 创建 Redis 写门闸，key 为空时使用 DefaultKey
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{
		client: client,
		key:    key,
		logger: logrus.WithField("component", "write_gate"),
	}
}

func (r *Redis) Block(ctx context.Context, reason string) error {
	host, _ := os.Hostname()
	data, err := json.Marshal(State{Reason: reason, Since: time.Now().UTC(), Host: host})
	if err != nil {
		return fmt.Errorf("failed to marshal write gate state: %w", err)
	}
	// 不设置过期时间：门闸必须由 Unblock 显式打开
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("block writes: %w", err)
	}
	r.logger.WithField("reason", reason).Warn("writes blocked")
	return nil
}

func (r *Redis) Unblock(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("unblock writes: %w", err)
	}
	r.logger.Info("writes unblocked")
	return nil
}

func (r *Redis) State(ctx context.Context) (*State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read write gate: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// 其他工具直接写入的任意值同样视为关闭
		return &State{Reason: string(data)}, nil
	}
	return &st, nil
}
