package search

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Memory 进程内的 Client 实现，用于测试和本地开发
type Memory struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
	faults  map[string]error
}

type memoryIndex struct {
	body []byte
	docs map[string]json.RawMessage
}

// NewMemory 创建空的内存索引集合，可预置若干空索引
func NewMemory(names ...string) *Memory {
	m := &Memory{
		indices: make(map[string]*memoryIndex),
		faults:  make(map[string]error),
	}
	for _, name := range names {
		m.indices[name] = &memoryIndex{docs: make(map[string]json.RawMessage)}
	}
	return m
}

// Fail 让之后对 name 的 op 操作（list/exists/create/delete/reindex）返回 err，err 为 nil 时清除
func (m *Memory) Fail(op, name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + name
	if err == nil {
		delete(m.faults, key)
		return
	}
	m.faults[key] = err
}

func (m *Memory) fault(op, name string) error {
	return m.faults[op+":"+name]
}

func (m *Memory) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault("list", pattern); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.indices))
	for name := range m.indices {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault("exists", name); err != nil {
		return false, err
	}
	_, ok := m.indices[name]
	return ok, nil
}

func (m *Memory) CreateIndex(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("create", name); err != nil {
		return err
	}
	if _, ok := m.indices[name]; ok {
		return fmt.Errorf("create index %s: %w", name, ErrIndexExists)
	}
	m.indices[name] = &memoryIndex{body: body, docs: make(map[string]json.RawMessage)}
	return nil
}

func (m *Memory) DeleteIndex(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("delete", name); err != nil {
		return err
	}
	if _, ok := m.indices[name]; !ok {
		return fmt.Errorf("delete index %s: %w", name, ErrIndexNotFound)
	}
	delete(m.indices, name)
	return nil
}

// Reindex 复制文档；内存实现不执行 script
func (m *Memory) Reindex(ctx context.Context, source, dest, _ string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("reindex", source); err != nil {
		return 0, err
	}
	src, ok := m.indices[source]
	if !ok {
		return 0, fmt.Errorf("reindex source %s: %w", source, ErrIndexNotFound)
	}
	dst, ok := m.indices[dest]
	if !ok {
		// 与 ES 一致：目标不存在时自动创建
		dst = &memoryIndex{docs: make(map[string]json.RawMessage)}
		m.indices[dest] = dst
	}
	for id, doc := range src.docs {
		dst.docs[id] = doc
	}
	return int64(len(src.docs)), nil
}

// Put 写入一个文档，索引不存在时自动创建
func (m *Memory) Put(index, id string, doc json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[index]
	if !ok {
		idx = &memoryIndex{docs: make(map[string]json.RawMessage)}
		m.indices[index] = idx
	}
	idx.docs[id] = doc
}

// Count 返回索引中的文档数，索引不存在时返回 -1
func (m *Memory) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[index]
	if !ok {
		return -1
	}
	return len(idx.docs)
}

// Body 返回创建索引时的请求体
func (m *Memory) Body(index string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx, ok := m.indices[index]; ok {
		return idx.body
	}
	return nil
}

// Names 返回全部索引名（已排序）
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.indices))
	for name := range m.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
