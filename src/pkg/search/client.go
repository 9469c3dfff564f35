// Package search 封装迁移引擎所需的搜索引擎索引操作
package search

import (
	"context"
	"errors"
)

var (
	// ErrIndexNotFound 索引不存在
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexExists 索引已存在
	ErrIndexExists = errors.New("index already exists")
)

// Client 迁移引擎与迁移单元使用的索引操作集合
type Client interface {
	// ListIndices 列出匹配通配模式（如 "nh-user-*"）的全部索引名
	ListIndices(ctx context.Context, pattern string) ([]string, error)
	// IndexExists 检查索引是否存在
	IndexExists(ctx context.Context, name string) (bool, error)
	// CreateIndex 以给定的 settings/mappings 请求体创建索引
	CreateIndex(ctx context.Context, name string, body []byte) error
	// DeleteIndex 删除索引，不存在时返回 ErrIndexNotFound
	DeleteIndex(ctx context.Context, name string) error
	// Reindex 将 source 的文档复制到 dest，script 非空时作为 painless 脚本逐文档执行。
	// 返回复制的文档数。
	Reindex(ctx context.Context, source, dest, script string) (int64, error)
}
