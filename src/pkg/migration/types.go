package migration

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/pkg/search"
	"github.com/bililive-go/docstore/src/pkg/writegate"
)

var (
	// ErrSourceNotFound 找不到可作为迁移来源的旧代索引
	ErrSourceNotFound = errors.New("source index not found")
	// ErrDestinationExists 目标索引已存在（上次失败的迁移未清理）
	ErrDestinationExists = errors.New("destination index already exists")
	// ErrDuplicateMigration 迁移标识重复注册
	ErrDuplicateMigration = errors.New("duplicate migration id")
	// ErrInvalidMigration 迁移单元不合法（工厂返回 nil、标识不一致等）
	ErrInvalidMigration = errors.New("invalid migration")
)

// Migration 一次性的索引迁移单元，每次运行构造一次
type Migration interface {
	// ID 迁移标识，构造时由声明名计算
	ID() int64
	// Name 声明名，如 Migration202009082258
	Name() string
	// Run 执行迁移
	Run(ctx context.Context) error
	// IndexesCreated 本次运行创建的索引，仅用于失败回滚
	IndexesCreated() []string
}

// Context 构造迁移单元时传入的依赖
type Context struct {
	Client search.Client
	Prefix string
	Name   string
	Logger *logrus.Entry
}

// Factory 迁移单元构造函数
type Factory func(Context) Migration

// Journal 迁移执行记录，写入失败只记录日志
type Journal interface {
	RecordApplied(ctx context.Context, id int64, name string, elapsed time.Duration) error
	RecordFailed(ctx context.Context, id int64, name string, cause error, elapsed time.Duration) error
	RecordFinalized(ctx context.Context, deleted, failed []string) error
}

// Failure 失败迁移的信息
type Failure struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Err  error  `json:"-"`
	// RolledBack 回滚时删除（或已不存在）的索引
	RolledBack []string `json:"rolled_back"`
	// RollbackFailed 回滚时删除失败的索引，需要人工处理
	RollbackFailed []string `json:"rollback_failed,omitempty"`
}

// Error 失败原因
func (f *Failure) Error() string {
	if f == nil || f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// RunResult Run 的结果
type RunResult struct {
	// Watermark 运行前的水位
	Watermark int64 `json:"watermark"`
	// Applied 本次成功应用的迁移标识（升序）
	Applied []int64 `json:"applied"`
	// Failed 导致本次运行停止的迁移，全部成功时为 nil
	Failed *Failure `json:"failed,omitempty"`
	// Remaining 因失败或中断而未尝试的迁移标识
	Remaining []int64 `json:"remaining,omitempty"`
}

// Count 本次成功应用的迁移数
func (r *RunResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Applied)
}

// FinalizeResult Finalize 的结果
type FinalizeResult struct {
	// Deleted 已删除的旧代索引
	Deleted []string `json:"deleted"`
	// Failed 删除失败的旧代索引
	Failed []string `json:"failed,omitempty"`
	// Retained 各逻辑索引保留的当前代
	Retained []string `json:"retained"`
	// CacheKeysDeleted 清理的缓存项数量
	CacheKeysDeleted int `json:"cache_keys_deleted"`
	// CacheError 缓存清理失败的原因
	CacheError string `json:"cache_error,omitempty"`
}

// MigrationStatus 单个已注册迁移的状态
type MigrationStatus struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

// Generation 一个版本化索引
type Generation struct {
	Index   string `json:"index"`
	Logical string `json:"logical"`
	ID      int64  `json:"id"`
	Current bool   `json:"current"`
}

// Status 当前迁移状态
type Status struct {
	Watermark   int64             `json:"watermark"`
	Migrations  []MigrationStatus `json:"migrations"`
	Pending     int               `json:"pending"`
	Generations []Generation      `json:"generations"`
	// Superseded 等待 Finalize 删除的旧代索引
	Superseded    []string         `json:"superseded"`
	WritesBlocked *writegate.State `json:"writes_blocked,omitempty"`
}
