package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"
)

// ElasticConfig Elasticsearch 连接配置
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Transport http.RoundTripper
}

// Elastic 基于 go-elasticsearch 的 Client 实现
type Elastic struct {
	es *elasticsearch.Client
}

// NewElastic 创建 Elasticsearch 客户端
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Elastic{es: es}, nil
}

// NewElasticWithClient 使用已构建的 go-elasticsearch 客户端
func NewElasticWithClient(es *elasticsearch.Client) *Elastic {
	return &Elastic{es: es}
}

func (e *Elastic) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := e.es.Cat.Indices(
		e.es.Cat.Indices.WithContext(ctx),
		e.es.Cat.Indices.WithIndex(pattern),
		e.es.Cat.Indices.WithFormat("json"),
		e.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("cat indices %s: %w", pattern, err)
	}
	body, err := readBody(res)
	if err != nil {
		return nil, err
	}
	// 通配模式无匹配时 ES 返回 200 和空数组；精确名不存在时返回 404
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("cat indices "+pattern, res.StatusCode, body)
	}

	var names []string
	for _, v := range gjson.GetBytes(body, "#.index").Array() {
		names = append(names, v.String())
	}
	sort.Strings(names)
	return names, nil
}

func (e *Elastic) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.es.Indices.Exists([]string{name}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", name, err)
	}
	body, err := readBody(res)
	if err != nil {
		return false, err
	}
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError("index exists "+name, res.StatusCode, body)
	}
}

func (e *Elastic) CreateIndex(ctx context.Context, name string, body []byte) error {
	opts := []func(*esapi.IndicesCreateRequest){e.es.Indices.Create.WithContext(ctx)}
	if len(body) > 0 {
		opts = append(opts, e.es.Indices.Create.WithBody(bytes.NewReader(body)))
	}
	res, err := e.es.Indices.Create(name, opts...)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	b, err := readBody(res)
	if err != nil {
		return err
	}
	if res.IsError() {
		if gjson.GetBytes(b, "error.type").String() == "resource_already_exists_exception" {
			return fmt.Errorf("create index %s: %w", name, ErrIndexExists)
		}
		return responseError("create index "+name, res.StatusCode, b)
	}
	return nil
}

func (e *Elastic) DeleteIndex(ctx context.Context, name string) error {
	res, err := e.es.Indices.Delete([]string{name}, e.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	body, err := readBody(res)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete index %s: %w", name, ErrIndexNotFound)
	}
	if res.IsError() {
		return responseError("delete index "+name, res.StatusCode, body)
	}
	return nil
}

type reindexRequest struct {
	Source reindexIndex   `json:"source"`
	Dest   reindexIndex   `json:"dest"`
	Script *reindexScript `json:"script,omitempty"`
}

type reindexIndex struct {
	Index string `json:"index"`
}

type reindexScript struct {
	Lang   string `json:"lang"`
	Source string `json:"source"`
}

func (e *Elastic) Reindex(ctx context.Context, source, dest, script string) (int64, error) {
	req := reindexRequest{
		Source: reindexIndex{Index: source},
		Dest:   reindexIndex{Index: dest},
	}
	if script != "" {
		req.Script = &reindexScript{Lang: "painless", Source: script}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reindex request: %w", err)
	}

	res, err := e.es.Reindex(bytes.NewReader(payload),
		e.es.Reindex.WithContext(ctx),
		e.es.Reindex.WithWaitForCompletion(true),
		e.es.Reindex.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("reindex %s -> %s: %w", source, dest, err)
	}
	body, err := readBody(res)
	if err != nil {
		return 0, err
	}
	if res.IsError() {
		return 0, responseError(fmt.Sprintf("reindex %s -> %s", source, dest), res.StatusCode, body)
	}
	// 单个文档失败不会让请求返回非 2xx，需要检查 failures
	if failures := gjson.GetBytes(body, "failures"); failures.IsArray() && len(failures.Array()) > 0 {
		first := failures.Array()[0]
		return 0, fmt.Errorf("reindex %s -> %s: %d failures, first: %s",
			source, dest, len(failures.Array()), first.Get("cause.reason").String())
	}
	return gjson.GetBytes(body, "total").Int(), nil
}

func readBody(res *esapi.Response) ([]byte, error) {
	if res.Body == nil {
		return nil, nil
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read elasticsearch response: %w", err)
	}
	return b, nil
}

func responseError(op string, status int, body []byte) error {
	typ := gjson.GetBytes(body, "error.type").String()
	reason := gjson.GetBytes(body, "error.reason").String()
	if typ == "" {
		return fmt.Errorf("%s: status %d", op, status)
	}
	return fmt.Errorf("%s: status %d: %s: %s", op, status, typ, reason)
}
