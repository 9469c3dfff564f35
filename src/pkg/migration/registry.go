package migration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bililive-go/docstore/src/pkg/indexname"
)

// Entry 已注册的迁移
type Entry struct {
	ID      int64
	Name    string
	Factory Factory
}

// Registry 迁移注册表，按标识升序保存
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[int64]string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{ids: make(map[int64]string)}
}

// Register 注册迁移，name 必须以 12 位 yyyyMMddHHmm 标识结尾
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidMigration, name)
	}
	id, err := indexname.ParseMigrationID(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ids[id]; ok {
		return fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateMigration, id, existing, name)
	}
	r.ids[id] = name
	r.entries = append(r.entries, Entry{ID: id, Name: name, Factory: factory})
	sort.Slice(r.entries, func(i, j int) bool {
		return r.entries[i].ID < r.entries[j].ID
	})
	return nil
}

// MustRegister 注册迁移，失败时 panic，用于启动时的静态注册
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Entries 返回全部迁移（升序）的副本
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Has 标识是否已注册
func (r *Registry) Has(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// Len 已注册的迁移数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Latest 最大的已注册标识，为空时返回 0
func (r *Registry) Latest() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return 0
	}
	return r.entries[len(r.entries)-1].ID
}

// after 返回标识大于 watermark 的迁移
func (r *Registry) after(watermark int64) []Entry {
	entries := r.Entries()
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].ID > watermark
	})
	return entries[i:]
}
