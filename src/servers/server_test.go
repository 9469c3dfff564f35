package servers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bililive-go/docstore/src/configs"
	"github.com/bililive-go/docstore/src/metrics"
	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/history"
	"github.com/bililive-go/docstore/src/pkg/migration"
)

type fakeMigrator struct {
	statusCalls atomic.Int32
	runResult   *migration.RunResult
	runErr      error
	finalErr    error
}

func (f *fakeMigrator) Status(context.Context) (*migration.Status, error) {
	f.statusCalls.Add(1)
	return &migration.Status{Watermark: 202009082258, Pending: 1}, nil
}

func (f *fakeMigrator) Run(context.Context) (*migration.RunResult, error) {
	return f.runResult, f.runErr
}

func (f *fakeMigrator) Finalize(context.Context) (*migration.FinalizeResult, error) {
	if f.finalErr != nil {
		return nil, f.finalErr
	}
	return &migration.FinalizeResult{Deleted: []string{"nh-user-1"}}, nil
}

type fakeHistory []history.Event

func (f fakeHistory) Recent(_ context.Context, limit int) ([]history.Event, error) {
	if limit > 0 && limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func newTestServer(t *testing.T, m *fakeMigrator, hist HistoryReader) *httptest.Server {
	t.Helper()
	s := NewServer(configs.RPC{Bind: "127.0.0.1:0"}, m, metrics.New(), hist, nil, "nh:")
	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestGetStatus_Cached(t *testing.T) {
	m := &fakeMigrator{runResult: &migration.RunResult{}}
	ts := newTestServer(t, m, nil)

	code, body := do(t, http.MethodGet, ts.URL+"/api/migrations")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), gjson.Get(body, "err_no").Int())
	assert.Equal(t, int64(202009082258), gjson.Get(body, "data.watermark").Int())

	do(t, http.MethodGet, ts.URL+"/api/migrations")
	assert.Equal(t, int32(1), m.statusCalls.Load())

	do(t, http.MethodGet, ts.URL+"/api/migrations?refresh=1")
	assert.Equal(t, int32(2), m.statusCalls.Load())

	// 执行后缓存失效
	do(t, http.MethodPost, ts.URL+"/api/migrations/run")
	do(t, http.MethodGet, ts.URL+"/api/migrations")
	assert.Equal(t, int32(3), m.statusCalls.Load())
}

func TestGetStatus_SharedCacheInvalidated(t *testing.T) {
	m := &fakeMigrator{runResult: &migration.RunResult{}}
	responses := cache.NewLocal(16, 0)
	s := NewServer(configs.RPC{Bind: "127.0.0.1:0"}, m, nil, nil, responses, "nh:")
	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)

	do(t, http.MethodGet, ts.URL+"/api/migrations")
	_, ok := responses.Get("nh:status")
	require.True(t, ok)

	// 迁移引擎的 Finalize 按前缀清理同一个缓存
	n, err := responses.ScanDelete(context.Background(), "nh:*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	do(t, http.MethodGet, ts.URL+"/api/migrations")
	assert.Equal(t, int32(2), m.statusCalls.Load())
}

func TestRun(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		ts := newTestServer(t, &fakeMigrator{runResult: &migration.RunResult{Applied: []int64{1, 2}}}, nil)
		code, body := do(t, http.MethodPost, ts.URL+"/api/migrations/run")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "[1,2]", gjson.Get(body, "data.applied").Raw)
	})

	t.Run("unit failed", func(t *testing.T) {
		ts := newTestServer(t, &fakeMigrator{runResult: &migration.RunResult{
			Failed: &migration.Failure{ID: 5, Name: "Migration000000000005", Err: errors.New("mapping rejected")},
		}}, nil)
		code, body := do(t, http.MethodPost, ts.URL+"/api/migrations/run")
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, int64(http.StatusConflict), gjson.Get(body, "err_no").Int())
		assert.True(t, strings.Contains(gjson.Get(body, "err_msg").String(), "mapping rejected"))
		assert.Equal(t, int64(5), gjson.Get(body, "data.failed.id").Int())
	})

	t.Run("infrastructure", func(t *testing.T) {
		ts := newTestServer(t, &fakeMigrator{runErr: errors.New("redis unavailable")}, nil)
		code, body := do(t, http.MethodPost, ts.URL+"/api/migrations/run")
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "redis unavailable", gjson.Get(body, "err_msg").String())
	})

	t.Run("method", func(t *testing.T) {
		ts := newTestServer(t, &fakeMigrator{}, nil)
		code, _ := do(t, http.MethodGet, ts.URL+"/api/migrations/run")
		assert.Equal(t, http.StatusMethodNotAllowed, code)
	})
}

func TestFinalize(t *testing.T) {
	ts := newTestServer(t, &fakeMigrator{}, nil)
	code, body := do(t, http.MethodPost, ts.URL+"/api/migrations/finalize")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "nh-user-1", gjson.Get(body, "data.deleted.0").String())

	ts = newTestServer(t, &fakeMigrator{finalErr: errors.New("gate unavailable")}, nil)
	code, _ = do(t, http.MethodPost, ts.URL+"/api/migrations/finalize")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestGetHistory(t *testing.T) {
	ts := newTestServer(t, &fakeMigrator{}, nil)
	_, body := do(t, http.MethodGet, ts.URL+"/api/migrations/history")
	assert.Equal(t, "[]", gjson.Get(body, "data").Raw)

	hist := fakeHistory{
		{ID: 2, Kind: history.KindFinalized, CreatedAt: time.Now()},
		{ID: 1, Kind: history.KindApplied, MigrationID: 202009082258, CreatedAt: time.Now()},
	}
	ts = newTestServer(t, &fakeMigrator{}, hist)
	_, body = do(t, http.MethodGet, ts.URL+"/api/migrations/history?limit=1")
	assert.Equal(t, int64(1), gjson.Get(body, "data.#").Int())
	assert.Equal(t, "finalized", gjson.Get(body, "data.0.kind").String())
}

func TestMetricsAndInfo(t *testing.T) {
	ts := newTestServer(t, &fakeMigrator{}, nil)
	code, body := do(t, http.MethodGet, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "docstore_migration_watermark")

	code, body = do(t, http.MethodGet, ts.URL+"/api/info")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "docstore-migrate", gjson.Get(body, "data.app_name").String())
}

func TestServer_StartClose(t *testing.T) {
	s := NewServer(configs.RPC{Enable: true, Bind: "127.0.0.1:0"}, &fakeMigrator{}, nil, nil, nil, "")
	require.NoError(t, s.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Close(ctx))
}
