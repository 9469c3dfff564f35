package migration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/fleetlock"
	"github.com/bililive-go/docstore/src/pkg/search"
	"github.com/bililive-go/docstore/src/pkg/writegate"
)

func testName(id int64) string {
	return fmt.Sprintf("Migration%012d", id)
}

type runFunc func(ctx context.Context, u *testUnit) error

type testUnit struct {
	*Base
	run runFunc
}

func (u *testUnit) Run(ctx context.Context) error {
	return u.run(ctx, u)
}

// counted 包装 run，记录被调用次数
func counted(calls *atomic.Int32, run runFunc) runFunc {
	return func(ctx context.Context, u *testUnit) error {
		calls.Add(1)
		if run == nil {
			return nil
		}
		return run(ctx, u)
	}
}

func createIndex(logical string) runFunc {
	return func(ctx context.Context, u *testUnit) error {
		return u.CreateIndex(ctx, u.IndexName(logical), []byte(`{}`))
	}
}

func migrate(logical string) runFunc {
	return func(ctx context.Context, u *testUnit) error {
		return u.Migrate(ctx, logical, []byte(`{}`), "")
	}
}

func register(t *testing.T, r *Registry, id int64, run runFunc) {
	t.Helper()
	require.NoError(t, r.Register(testName(id), func(c Context) Migration {
		return &testUnit{Base: NewBase(c), run: run}
	}))
}

type fakeJournal struct {
	mu        sync.Mutex
	applied   []int64
	failed    []int64
	finalized [][]string
}

func (j *fakeJournal) RecordApplied(_ context.Context, id int64, _ string, _ time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.applied = append(j.applied, id)
	return nil
}

func (j *fakeJournal) RecordFailed(_ context.Context, id int64, _ string, _ error, _ time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failed = append(j.failed, id)
	return nil
}

func (j *fakeJournal) RecordFinalized(_ context.Context, deleted, _ []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finalized = append(j.finalized, deleted)
	return nil
}

type fixture struct {
	client   *search.Memory
	gate     *writegate.Memory
	locker   *fleetlock.Memory
	cache    *cache.Local
	registry *Registry
	journal  *fakeJournal
}

func newFixture(indices ...string) *fixture {
	return &fixture{
		client:   search.NewMemory(indices...),
		gate:     writegate.NewMemory(),
		locker:   fleetlock.NewMemory(),
		cache:    cache.NewLocal(64, time.Minute),
		registry: NewRegistry(),
		journal:  &fakeJournal{},
	}
}

func (f *fixture) manager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Dependencies{
		Registry: f.registry,
		Client:   f.client,
		Locker:   f.locker,
		Gate:     f.gate,
		Cache:    f.cache,
		Journal:  f.journal,
	}, Options{CachePrefix: "nh:", RollbackTimeout: time.Second})
	require.NoError(t, err)
	return m
}

func (f *fixture) blocked(t *testing.T) bool {
	t.Helper()
	st, err := f.gate.State(context.Background())
	require.NoError(t, err)
	return st != nil
}
