package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/configs"
	"github.com/bililive-go/docstore/src/consts"
	"github.com/bililive-go/docstore/src/log"
	"github.com/bililive-go/docstore/src/metrics"
	"github.com/bililive-go/docstore/src/migrations"
	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/fleetlock"
	"github.com/bililive-go/docstore/src/pkg/history"
	"github.com/bililive-go/docstore/src/pkg/migration"
	"github.com/bililive-go/docstore/src/pkg/search"
	"github.com/bililive-go/docstore/src/pkg/sentry"
	"github.com/bililive-go/docstore/src/pkg/writegate"
)

// app 由配置组装出的全部组件
type app struct {
	config  *configs.Config
	logger  *logrus.Logger
	redis   redis.UniversalClient
	journal *history.Store
	// local 进程内响应缓存，serve 写入、Finalize 清理
	local   *cache.Local
	metrics *metrics.Metrics
	manager *migration.Manager
}

func loadConfig(file string, debug bool) (*configs.Config, error) {
	var (
		config *configs.Config
		err    error
	)
	if file != "" {
		config, err = configs.NewConfigWithFile(file)
		if err != nil {
			return nil, err
		}
	} else {
		config = configs.NewConfig()
	}
	if debug {
		config.Debug = true
	}
	if err := config.Verify(); err != nil {
		return nil, err
	}
	configs.SetCurrentConfig(config)
	return config, nil
}

func initSentry(config *configs.Config) {
	// DSN 来源优先级：配置文件 > 编译时注入 > 环境变量 SENTRY_DSN
	dsn := config.Sentry.DSN
	if dsn == "" {
		dsn = SentryDSN
	}
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	environment := config.Sentry.Environment
	if environment == "" {
		environment = SentryEnv
	}
	if config.Debug {
		environment = "development"
	}
	if err := sentry.Init(dsn, environment, consts.AppVersion); err != nil {
		logrus.WithError(err).Warn("Sentry 初始化失败")
	}
}

// newApp 组装组件；未配置 Redis 时锁、门闸与缓存使用进程内实现，仅适用于单实例
func newApp(config *configs.Config) (*app, error) {
	logger, err := log.New(config)
	if err != nil {
		return nil, err
	}
	initSentry(config)
	a := &app{config: config, logger: logger, metrics: metrics.New()}

	client, err := search.NewElastic(search.ElasticConfig{
		Addresses: config.Elasticsearch.Addresses,
		Username:  config.Elasticsearch.Username,
		Password:  config.Elasticsearch.Password,
	})
	if err != nil {
		return nil, err
	}

	var (
		locker fleetlock.Locker
		gate   writegate.Gate
	)
	if config.Cache.LocalSize > 0 {
		a.local = cache.NewLocal(config.Cache.LocalSize, 0)
	}
	if config.Redis.Address != "" {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    strings.Split(config.Redis.Address, ","),
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		locker = fleetlock.NewRedis(a.redis, config.Migration.LockRetryInterval)
		gate = writegate.NewRedis(a.redis, writegate.DefaultKey)
	} else {
		logger.Warn("redis is not configured, using in-process lock and write gate")
		locker = fleetlock.NewMemory()
		gate = writegate.NewMemory()
	}

	var journal migration.Journal
	if config.Migration.HistoryPath != "" {
		a.journal, err = history.Open(config.Migration.HistoryPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		journal = a.journal
	}

	registry, err := migrations.NewRegistry()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager, err = migration.NewManager(migration.Dependencies{
		Registry: registry,
		Client:   client,
		Locker:   locker,
		Gate:     gate,
		Cache:    a.invalidator(),
		Journal:  journal,
		Metrics:  a.metrics,
		Logger:   logger.WithField("component", "migration"),
	}, migration.Options{
		Prefix:          config.Elasticsearch.IndexPrefix,
		CachePrefix:     config.Cache.Prefix,
		LockKey:         config.Migration.LockKey,
		LockTTL:         config.Migration.LockTTL,
		RollbackTimeout: config.Migration.RollbackTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// invalidator Finalize 需要清理的全部缓存：Redis 共享缓存与本进程的响应缓存
func (a *app) invalidator() cache.Invalidator {
	var multi cache.Multi
	if a.redis != nil {
		multi = append(multi, cache.NewRedis(a.redis))
	}
	if a.local != nil {
		multi = append(multi, a.local)
	}
	if len(multi) == 0 {
		return nil
	}
	return multi
}

// ping 启动时检查 Redis 连通性
func (a *app) ping(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", a.config.Redis.Address, err)
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
