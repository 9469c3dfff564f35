// Package migration 提供搜索索引的结构迁移框架
//
// 每个迁移单元把某个逻辑索引从当前代迁移到以自身标识命名的新一代，
// 旧代在新版本确认稳定之前保持不变，因此仍在运行的旧实例不受影响。
// 主要特性：
//
// 1. 显式注册：迁移单元通过 Registry 在启动时按声明名注册，标识取自名称中的 yyyyMMddHHmm 后缀
// 2. 水位判断：以现有索引名中最大的迁移标识为水位，只执行大于水位的迁移
// 3. 集群互斥：Run 与 Finalize 都在 "maintenance:migrations" 锁内执行
// 4. 失败回滚：迁移失败（包括 panic 与取消）时删除该迁移创建的全部索引，并停止本次运行
// 5. 旧代回收：Finalize 删除被取代的旧代索引、清理缓存并恢复写入
//
// 基本使用示例：
//
//	registry := migration.NewRegistry()
//	registry.MustRegister("Migration202009082258", func(c migration.Context) migration.Migration {
//	    return &Migration202009082258{Base: migration.NewBase(c)}
//	})
//
//	manager, err := migration.NewManager(migration.Dependencies{
//	    Registry: registry,
//	    Client:   client,
//	    Locker:   locker,
//	    Gate:     gate,
//	    Cache:    invalidator,
//	}, migration.Options{Prefix: "nh-", CachePrefix: "nh:"})
//
//	result, err := manager.Run(ctx)      // 部署新版本时
//	final, err := manager.Finalize(ctx)  // 新版本确认稳定后
package migration

//go:generate go run go.uber.org/mock/mockgen -package migration -destination mock_collaborators_test.go github.com/bililive-go/docstore/src/pkg/fleetlock Locker,Handle
//go:generate go run go.uber.org/mock/mockgen -package migration -destination mock_gate_test.go github.com/bililive-go/docstore/src/pkg/writegate Gate
//go:generate go run go.uber.org/mock/mockgen -package migration -destination mock_cache_test.go github.com/bililive-go/docstore/src/pkg/cache Invalidator
