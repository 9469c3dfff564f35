package fleetlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRetryInterval 锁被占用时的重试间隔
	DefaultRetryInterval = 500 * time.Millisecond
)

// 仅当 value 仍是自己的 token 时才删除/续期
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis 基于 SET NX PX 的 Locker 实现
type Redis struct {
	client        redis.UniversalClient
	retryInterval time.Duration
	logger        *logrus.Entry
}

// NewRedis 创建 Redis 分布式锁，retryInterval<=0 时使用默认值
func NewRedis(client redis.UniversalClient, retryInterval time.Duration) *Redis {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Redis{
		client:        client,
		retryInterval: retryInterval,
		logger:        logrus.WithField("component", "fleet_lock"),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Handle, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("acquire lock %s: ttl must be positive", key)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: failed to generate token: %w", key, err)
	}
	token := id.String()

	waiting := false
	var sentAt time.Time
	for {
		sentAt = time.Now()
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !waiting {
			r.logger.WithField("key", key).Info("lock is held by another instance, waiting")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-time.After(r.retryInterval):
		}
	}

	h := &redisHandle{
		client: r.client,
		key:    key,
		token:  token,
		ttl:    ttl,
		lastOK: sentAt,
		stop:   make(chan struct{}),
		lost:   make(chan struct{}),
		logger: r.logger.WithField("key", key),
	}
	h.wg.Add(1)
	go h.refresh()

	r.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl}).Debug("lock acquired")
	return h, nil
}

type redisHandle struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
	logger *logrus.Entry
	// lastOK 最近一次成功写入 TTL 的请求发出时间，键最晚在 lastOK+ttl 过期
	lastOK time.Time

	stop        chan struct{}
	lost        chan struct{}
	wg          sync.WaitGroup
	releaseOnce sync.Once
	releaseErr  error
	lostOnce    sync.Once
}

// refresh 每 ttl/3 续期一次，直到释放或确认锁已丢失。
// 续期请求出错时无法确认键的状态，只要下一次续期前键可能已过期就视为丢失。
func (h *redisHandle) refresh() {
	defer h.wg.Done()
	interval := h.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			sentAt := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := refreshScript.Run(ctx, h.client, []string{h.key}, h.token, h.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				if time.Since(h.lastOK)+interval >= h.ttl {
					h.logger.WithError(err).WithField("last_refresh", h.lastOK).Error("lock lease expired while redis is unreachable")
					h.markLost()
					return
				}
				h.logger.WithError(err).Warn("failed to refresh lock")
				continue
			}
			if n == 0 {
				h.logger.Error("lock expired and was taken over")
				h.markLost()
				return
			}
			h.lastOK = sentAt
		}
	}
}

func (h *redisHandle) markLost() {
	h.lostOnce.Do(func() { close(h.lost) })
}

func (h *redisHandle) Release(ctx context.Context) error {
	h.releaseOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()

		n, err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Int64()
		if err != nil {
			h.releaseErr = fmt.Errorf("release lock %s: %w", h.key, err)
			return
		}
		if n == 0 {
			h.releaseErr = fmt.Errorf("release lock %s: %w", h.key, ErrNotHeld)
			return
		}
		h.logger.Debug("lock released")
	})
	return h.releaseErr
}

func (h *redisHandle) Lost() <-chan struct{} {
	return h.lost
}
