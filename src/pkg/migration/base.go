package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/pkg/indexname"
	"github.com/bililive-go/docstore/src/pkg/search"
)

// Base 迁移单元的公共实现，具体迁移嵌入 *Base 并实现 Run
type Base struct {
	id     int64
	name   string
	prefix string
	client search.Client
	logger *logrus.Entry

	mu      sync.Mutex
	created []string
}

// NewBase 根据注册时的声明名构造 Base
func NewBase(c Context) *Base {
	id, _ := indexname.ParseMigrationID(c.Name)
	logger := c.Logger
	if logger == nil {
		logger = logrus.WithField("migration", c.Name)
	}
	return &Base{
		id:     id,
		name:   c.Name,
		prefix: c.Prefix,
		client: c.Client,
		logger: logger,
	}
}

func (b *Base) ID() int64 {
	return b.id
}

func (b *Base) Name() string {
	return b.name
}

// IndexesCreated 返回本次运行创建的索引副本
func (b *Base) IndexesCreated() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	created := make([]string, len(b.created))
	copy(created, b.created)
	return created
}

func (b *Base) Client() search.Client {
	return b.client
}

func (b *Base) Logger() *logrus.Entry {
	return b.logger
}

func (b *Base) Prefix() string {
	return b.prefix
}

// IndexName 本迁移为逻辑索引生成的新一代索引名
func (b *Base) IndexName(logical string) string {
	return indexname.Format(b.prefix, logical, b.id)
}

// ReindexTargets 计算逻辑索引的迁移来源与目标
//
// 来源为除本迁移之外标识最大的现有代，目标为 {prefix}{logical}-{id}。
// 找不到来源返回 ErrSourceNotFound，目标已存在返回 ErrDestinationExists。
func (b *Base) ReindexTargets(ctx context.Context, logical string) (source, destination string, err error) {
	if err := indexname.ValidLogicalName(logical); err != nil {
		return "", "", err
	}
	names, err := b.client.ListIndices(ctx, indexname.Pattern(b.prefix, logical))
	if err != nil {
		return "", "", fmt.Errorf("list %s generations: %w", logical, err)
	}

	bestID := int64(-1)
	for _, name := range names {
		l, id, ok := indexname.TryParse(b.prefix, name)
		// "user-*" 也会匹配 "user-tag-1"
		if !ok || l != logical || id == b.id {
			continue
		}
		if id > bestID {
			bestID = id
			source = name
		}
	}
	if source == "" {
		return "", "", fmt.Errorf("%w: %s%s", ErrSourceNotFound, b.prefix, logical)
	}

	destination = b.IndexName(logical)
	exists, err := b.client.IndexExists(ctx, destination)
	if err != nil {
		return "", "", fmt.Errorf("check %s: %w", destination, err)
	}
	if exists {
		return "", "", fmt.Errorf("%w: %s", ErrDestinationExists, destination)
	}

	b.logger.WithFields(logrus.Fields{
		"source":      source,
		"destination": destination,
	}).Info("resolved reindex targets")
	return source, destination, nil
}

// CreateIndex 创建索引并记录到 IndexesCreated
//
// 除 ErrIndexExists 外的错误（如超时）也会记录，服务端可能已经创建成功，
// 回滚时删除不存在的索引会被忽略。
func (b *Base) CreateIndex(ctx context.Context, name string, body []byte) error {
	err := b.client.CreateIndex(ctx, name, body)
	if errors.Is(err, search.ErrIndexExists) {
		return fmt.Errorf("%w: %s", ErrDestinationExists, name)
	}
	b.mu.Lock()
	b.created = append(b.created, name)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	b.logger.WithField("index", name).Info("index created")
	return nil
}

// Reindex 复制文档，script 为空时原样复制
func (b *Base) Reindex(ctx context.Context, source, destination, script string) (int64, error) {
	start := time.Now()
	copied, err := b.client.Reindex(ctx, source, destination, script)
	if err != nil {
		return copied, fmt.Errorf("reindex %s -> %s: %w", source, destination, err)
	}
	b.logger.WithFields(logrus.Fields{
		"source":      source,
		"destination": destination,
		"documents":   copied,
		"elapsed":     time.Since(start).String(),
	}).Info("reindex completed")
	return copied, nil
}

// Migrate 常见的单索引迁移：解析来源与目标，以 body 创建目标后复制文档
func (b *Base) Migrate(ctx context.Context, logical string, body []byte, script string) error {
	source, destination, err := b.ReindexTargets(ctx, logical)
	if err != nil {
		return err
	}
	if err := b.CreateIndex(ctx, destination, body); err != nil {
		return err
	}
	_, err = b.Reindex(ctx, source, destination, script)
	return err
}
