package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElastic 模拟 Elasticsearch 的索引管理接口
type fakeElastic struct {
	mu          sync.Mutex
	indices     map[string]string
	lastReindex map[string]any
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasPrefix(r.URL.Path, "/_cat/indices/"):
		pattern := strings.TrimPrefix(r.URL.Path, "/_cat/indices/")
		rows := []map[string]string{}
		for name := range f.indices {
			if ok, _ := path.Match(pattern, name); ok {
				rows = append(rows, map[string]string{"index": name})
			}
		}
		_ = json.NewEncoder(w).Encode(rows)
	case r.URL.Path == "/_reindex":
		body, _ := io.ReadAll(r.Body)
		f.lastReindex = map[string]any{}
		_ = json.Unmarshal(body, &f.lastReindex)
		_, _ = w.Write([]byte(`{"took":3,"total":42,"created":42,"failures":[]}`))
	default:
		name := strings.TrimPrefix(r.URL.Path, "/")
		_, exists := f.indices[name]
		switch r.Method {
		case http.MethodHead:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			if exists {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"type":"resource_already_exists_exception","reason":"index [` + name + `] already exists"},"status":400}`))
				return
			}
			body, _ := io.ReadAll(r.Body)
			f.indices[name] = string(body)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case http.MethodDelete:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
				return
			}
			delete(f.indices, name)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func newTestElastic(t *testing.T, names ...string) (*Elastic, *fakeElastic) {
	t.Helper()
	fake := &fakeElastic{indices: map[string]string{}}
	for _, n := range names {
		fake.indices[n] = ""
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewElastic(ElasticConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, fake
}

func TestElastic_ListIndices(t *testing.T) {
	client, _ := newTestElastic(t, "nh-user-2", "nh-user-1", "nh-book-1", "other-1")

	names, err := client.ListIndices(context.Background(), "nh-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"nh-book-1", "nh-user-1", "nh-user-2"}, names)

	names, err = client.ListIndices(context.Background(), "nh-user-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"nh-user-1", "nh-user-2"}, names)

	names, err = client.ListIndices(context.Background(), "none-*")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestElastic_CreateExistsDelete(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestElastic(t)

	ok, err := client.IndexExists(ctx, "nh-user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.CreateIndex(ctx, "nh-user-1", []byte(`{"mappings":{}}`)))
	assert.Equal(t, `{"mappings":{}}`, fake.indices["nh-user-1"])

	ok, err = client.IndexExists(ctx, "nh-user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = client.CreateIndex(ctx, "nh-user-1", nil)
	assert.ErrorIs(t, err, ErrIndexExists)

	require.NoError(t, client.DeleteIndex(ctx, "nh-user-1"))
	err = client.DeleteIndex(ctx, "nh-user-1")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestElastic_Reindex(t *testing.T) {
	client, fake := newTestElastic(t, "nh-user-1")

	total, err := client.Reindex(context.Background(), "nh-user-1", "nh-user-2", "ctx._source.x = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)

	src := fake.lastReindex["source"].(map[string]any)
	dst := fake.lastReindex["dest"].(map[string]any)
	script := fake.lastReindex["script"].(map[string]any)
	assert.Equal(t, "nh-user-1", src["index"])
	assert.Equal(t, "nh-user-2", dst["index"])
	assert.Equal(t, "painless", script["lang"])
}

func TestResponseError(t *testing.T) {
	err := responseError("op", 500, []byte(`{"error":{"type":"x","reason":"boom"}}`))
	assert.EqualError(t, err, "op: status 500: x: boom")

	err = responseError("op", 502, []byte(`<html>`))
	assert.EqualError(t, err, "op: status 502")
}
