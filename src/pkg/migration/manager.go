package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/metrics"
	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/fleetlock"
	"github.com/bililive-go/docstore/src/pkg/indexname"
	"github.com/bililive-go/docstore/src/pkg/search"
	"github.com/bililive-go/docstore/src/pkg/sentry"
	"github.com/bililive-go/docstore/src/pkg/writegate"
)

const (
	defaultLockTTL         = 30 * time.Second
	defaultRollbackTimeout = 2 * time.Minute

	blockReason = "index migrations in progress"
)

// Dependencies Manager 的协作者，Journal 与 Metrics 可选
type Dependencies struct {
	Registry *Registry
	Client   search.Client
	Locker   fleetlock.Locker
	Gate     writegate.Gate
	Cache    cache.Invalidator
	Journal  Journal
	Metrics  *metrics.Metrics
	Logger   *logrus.Entry
}

// Options Manager 配置
type Options struct {
	// Prefix 索引名前缀，如 "nh-"
	Prefix string
	// CachePrefix Finalize 删除旧代后清理的缓存前缀
	CachePrefix string
	// LockKey 集群锁，默认 LockKey
	LockKey string
	// LockTTL 锁的存活时间，持有期间自动续期
	LockTTL time.Duration
	// RollbackTimeout 回滚删除与释放锁的超时，不受调用方取消影响
	RollbackTimeout time.Duration
}

// Manager 迁移引擎
type Manager struct {
	registry *Registry
	client   search.Client
	locker   fleetlock.Locker
	gate     writegate.Gate
	cache    cache.Invalidator
	journal  Journal
	metrics  *metrics.Metrics
	logger   *logrus.Entry
	opts     Options
}

// NewManager 创建迁移引擎
func NewManager(deps Dependencies, opts Options) (*Manager, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("registry cannot be nil")
	case deps.Client == nil:
		return nil, errors.New("search client cannot be nil")
	case deps.Locker == nil:
		return nil, errors.New("locker cannot be nil")
	case deps.Gate == nil:
		return nil, errors.New("write gate cannot be nil")
	case deps.Cache != nil && opts.CachePrefix == "":
		// 空前缀会清空整个缓存
		return nil, errors.New("cache prefix cannot be empty when cache is configured")
	}
	if opts.LockKey == "" {
		opts.LockKey = LockKey
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.RollbackTimeout <= 0 {
		opts.RollbackTimeout = defaultRollbackTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.WithField("component", "migration")
	}
	return &Manager{
		registry: deps.Registry,
		client:   deps.Client,
		locker:   deps.Locker,
		gate:     deps.Gate,
		cache:    deps.Cache,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		logger:   logger.WithField("prefix", opts.Prefix),
		opts:     opts,
	}, nil
}

// Watermark 现有索引中最大的迁移标识，没有版本化索引时为 0
func (m *Manager) Watermark(ctx context.Context) (int64, error) {
	generations, err := m.generations(ctx)
	if err != nil {
		return 0, err
	}
	var watermark int64
	for _, g := range generations {
		if g.ID > watermark {
			watermark = g.ID
		}
	}
	return watermark, nil
}

// generations 列出前缀下所有可解析的版本化索引
func (m *Manager) generations(ctx context.Context) ([]Generation, error) {
	names, err := m.client.ListIndices(ctx, indexname.Pattern(m.opts.Prefix, ""))
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	generations := make([]Generation, 0, len(names))
	for _, name := range names {
		logical, id, ok := indexname.TryParse(m.opts.Prefix, name)
		if !ok {
			m.logger.WithField("index", name).Debug("skipping unversioned index")
			continue
		}
		generations = append(generations, Generation{Index: name, Logical: logical, ID: id})
	}
	return generations, nil
}

// Run 按标识升序应用所有大于水位的迁移
//
// 在集群锁内关闭写入后执行，任一迁移失败时回滚该迁移创建的索引并停止，
// 后续迁移不再尝试。运行结束后写入保持关闭，直到 Finalize。
// 迁移失败体现在 RunResult.Failed 中，返回的 error 只表示锁、门闸、
// 索引列表等基础设施错误或运行被中断，此时 RunResult 可能包含部分结果。
func (m *Manager) Run(ctx context.Context) (*RunResult, error) {
	var result *RunResult
	err := m.withLock(ctx, func(ctx context.Context) error {
		// 持锁后再关闭写入，避免与正在 Finalize 的实例交错
		if err := m.gate.Block(ctx, blockReason); err != nil {
			return fmt.Errorf("block writes: %w", err)
		}
		m.logger.Info("writes blocked")

		watermark, err := m.Watermark(ctx)
		if err != nil {
			return err
		}
		m.metrics.SetWatermark(watermark)
		result = &RunResult{Watermark: watermark}

		pending := m.registry.after(watermark)
		m.logger.WithFields(logrus.Fields{
			"watermark": watermark,
			"pending":   len(pending),
		}).Info("resolved outstanding migrations")

		for i, entry := range pending {
			if err := ctx.Err(); err != nil {
				result.Remaining = ids(pending[i:])
				return fmt.Errorf("migrations interrupted: %w", context.Cause(ctx))
			}
			if failure := m.apply(ctx, entry); failure != nil {
				result.Failed = failure
				result.Remaining = ids(pending[i+1:])
				break
			}
			result.Applied = append(result.Applied, entry.ID)
			m.metrics.SetWatermark(entry.ID)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migrations interrupted: %w", context.Cause(ctx))
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	fields := logrus.Fields{
		"watermark": result.Watermark,
		"applied":   len(result.Applied),
	}
	if result.Failed != nil {
		m.logger.WithFields(fields).WithFields(logrus.Fields{
			"failed":    result.Failed.Name,
			"remaining": len(result.Remaining),
		}).Error("migration run stopped, writes remain blocked")
	} else {
		m.logger.WithFields(fields).Warn("migration run completed, writes remain blocked until finalize")
	}
	return result, nil
}

// apply 构造并执行单个迁移，失败时回滚
func (m *Manager) apply(ctx context.Context, entry Entry) *Failure {
	logger := m.logger.WithFields(logrus.Fields{
		"migration_id": entry.ID,
		"migration":    entry.Name,
	})
	logger.Info("applying migration")

	start := time.Now()
	unit, err := m.runUnit(ctx, entry, logger)
	elapsed := time.Since(start)
	journalCtx := context.WithoutCancel(ctx)

	if err == nil {
		logger.WithField("elapsed", elapsed.String()).Info("migration applied")
		m.metrics.MigrationApplied(entry.Name, elapsed)
		if m.journal != nil {
			if err := m.journal.RecordApplied(journalCtx, entry.ID, entry.Name, elapsed); err != nil {
				logger.WithError(err).Warn("failed to record applied migration")
			}
		}
		return nil
	}

	logger.WithError(err).WithField("elapsed", elapsed.String()).Error("migration failed, rolling back")
	failure := &Failure{ID: entry.ID, Name: entry.Name, Err: err}
	if unit != nil {
		m.rollback(ctx, unit, failure, logger)
	}
	m.metrics.MigrationFailed(entry.Name, elapsed)
	if !errors.Is(err, context.Canceled) {
		sentry.CaptureException(err, map[string]string{
			"migration":    entry.Name,
			"migration_id": strconv.FormatInt(entry.ID, 10),
		})
	}
	if m.journal != nil {
		if err := m.journal.RecordFailed(journalCtx, entry.ID, entry.Name, err, elapsed); err != nil {
			logger.WithError(err).Warn("failed to record failed migration")
		}
	}
	return failure
}

// runUnit 构造迁移并执行 Run，panic 视为失败
func (m *Manager) runUnit(ctx context.Context, entry Entry, logger *logrus.Entry) (unit Migration, err error) {
	tags := map[string]string{"migration": entry.Name}
	defer func() {
		if v := recover(); v != nil {
			err = sentry.PanicError(v, tags)
		}
	}()

	unit = entry.Factory(Context{
		Client: m.client,
		Prefix: m.opts.Prefix,
		Name:   entry.Name,
		Logger: logger,
	})
	if unit == nil {
		return nil, fmt.Errorf("%w: factory of %s returned nil", ErrInvalidMigration, entry.Name)
	}
	if unit.ID() != entry.ID {
		return unit, fmt.Errorf("%w: %s reports id %d, registered as %d",
			ErrInvalidMigration, entry.Name, unit.ID(), entry.ID)
	}
	return unit, unit.Run(ctx)
}

// rollback 删除失败迁移创建的索引，删除失败只记录，不中断
func (m *Manager) rollback(ctx context.Context, unit Migration, failure *Failure, logger *logrus.Entry) {
	created := unit.IndexesCreated()
	if len(created) == 0 {
		logger.Info("nothing to roll back")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RollbackTimeout)
	defer cancel()

	for _, name := range created {
		err := m.client.DeleteIndex(ctx, name)
		if err != nil && !errors.Is(err, search.ErrIndexNotFound) {
			logger.WithError(err).WithField("index", name).Error("failed to delete index during rollback")
			failure.RollbackFailed = append(failure.RollbackFailed, name)
			m.metrics.RollbackDeletion(false)
			continue
		}
		logger.WithField("index", name).Info("rolled back index")
		failure.RolledBack = append(failure.RolledBack, name)
		m.metrics.RollbackDeletion(true)
	}
}

// Finalize 删除被取代的旧代索引并恢复写入
//
// 每个逻辑索引只保留标识最大的一代，名称无法解析或标识未注册的索引不处理。
// 删除失败只记录。有索引被删除时清理缓存前缀。
// 获得集群锁后无论删除结果如何都会恢复写入。
func (m *Manager) Finalize(ctx context.Context) (*FinalizeResult, error) {
	var result *FinalizeResult
	err := m.withLock(ctx, func(ctx context.Context) (err error) {
		defer func() {
			// 调用方取消时仍需恢复写入
			unblockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RollbackTimeout)
			defer cancel()
			if unblockErr := m.gate.Unblock(unblockCtx); unblockErr != nil {
				err = errors.Join(err, fmt.Errorf("unblock writes: %w", unblockErr))
				return
			}
			m.logger.Info("writes unblocked")
		}()

		result, err = m.collect(ctx)
		return err
	})
	return result, err
}

// collect 删除旧代并清理缓存
func (m *Manager) collect(ctx context.Context) (*FinalizeResult, error) {
	current, superseded, err := m.partition(ctx)
	if err != nil {
		return nil, err
	}
	result := &FinalizeResult{}
	for _, g := range current {
		result.Retained = append(result.Retained, g.Index)
	}

	for _, g := range superseded {
		logger := m.logger.WithFields(logrus.Fields{"index": g.Index, "logical": g.Logical})
		err := m.client.DeleteIndex(ctx, g.Index)
		if err != nil && !errors.Is(err, search.ErrIndexNotFound) {
			logger.WithError(err).Error("failed to delete superseded index")
			result.Failed = append(result.Failed, g.Index)
			m.metrics.FinalizeDeletion(false)
			continue
		}
		logger.Info("deleted superseded index")
		result.Deleted = append(result.Deleted, g.Index)
		m.metrics.FinalizeDeletion(true)
	}

	if len(result.Deleted) > 0 && m.cache != nil {
		pattern := m.opts.CachePrefix + "*"
		n, err := m.cache.ScanDelete(ctx, pattern)
		result.CacheKeysDeleted = n
		if err != nil {
			m.logger.WithError(err).WithField("pattern", pattern).Warn("failed to invalidate cache")
			result.CacheError = err.Error()
		} else {
			m.logger.WithFields(logrus.Fields{"pattern": pattern, "keys": n}).Info("cache invalidated")
		}
	}

	if m.journal != nil {
		if err := m.journal.RecordFinalized(context.WithoutCancel(ctx), result.Deleted, result.Failed); err != nil {
			m.logger.WithError(err).Warn("failed to record finalize")
		}
	}
	m.logger.WithFields(logrus.Fields{
		"deleted": len(result.Deleted),
		"failed":  len(result.Failed),
	}).Info("finalize completed")
	return result, nil
}

// partition 按逻辑名分组，返回各组的当前代与被取代的旧代（均按索引名排序）
func (m *Manager) partition(ctx context.Context) (current, superseded []Generation, err error) {
	generations, err := m.generations(ctx)
	if err != nil {
		return nil, nil, err
	}
	latest := make(map[string]Generation)
	var known []Generation
	for _, g := range generations {
		if !m.registry.Has(g.ID) {
			m.logger.WithField("index", g.Index).Debug("skipping index of unknown migration")
			continue
		}
		known = append(known, g)
		if cur, ok := latest[g.Logical]; !ok || g.ID > cur.ID {
			latest[g.Logical] = g
		}
	}
	for _, g := range known {
		if latest[g.Logical].ID == g.ID {
			g.Current = true
			current = append(current, g)
		} else {
			superseded = append(superseded, g)
		}
	}
	sortGenerations(current)
	sortGenerations(superseded)
	return current, superseded, nil
}

// Status 返回水位、各迁移是否已应用、现有索引代以及写门闸状态，不加锁
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	current, superseded, err := m.partition(ctx)
	if err != nil {
		return nil, err
	}
	watermark, err := m.Watermark(ctx)
	if err != nil {
		return nil, err
	}
	gateState, err := m.gate.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("read write gate: %w", err)
	}

	status := &Status{Watermark: watermark, WritesBlocked: gateState}
	for _, e := range m.registry.Entries() {
		applied := e.ID <= watermark
		if !applied {
			status.Pending++
		}
		status.Migrations = append(status.Migrations, MigrationStatus{ID: e.ID, Name: e.Name, Applied: applied})
	}
	status.Generations = append(append(status.Generations, current...), superseded...)
	sortGenerations(status.Generations)
	for _, g := range superseded {
		status.Superseded = append(status.Superseded, g.Index)
	}
	return status, nil
}

func sortGenerations(gs []Generation) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].Logical != gs[j].Logical {
			return gs[i].Logical < gs[j].Logical
		}
		return gs[i].ID < gs[j].ID
	})
}

func ids(entries []Entry) []int64 {
	if len(entries) == 0 {
		return nil
	}
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
