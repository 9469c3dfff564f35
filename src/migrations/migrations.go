// Package migrations 存放全部索引迁移，新增迁移后需要在 Register 中登记
package migrations

import (
	"embed"
	"fmt"

	"github.com/bililive-go/docstore/src/pkg/migration"
)

//go:embed mappings/*.json
var mappingsFS embed.FS

const (
	userIndex = "user"
	bookIndex = "book"
)

// Register 按声明名登记全部迁移
func Register(r *migration.Registry) error {
	units := []struct {
		name    string
		factory migration.Factory
	}{
		{"Migration202009082258", func(c migration.Context) migration.Migration {
			return &Migration202009082258{Base: migration.NewBase(c)}
		}},
		{"Migration202010041530", func(c migration.Context) migration.Migration {
			return &Migration202010041530{Base: migration.NewBase(c)}
		}},
		{"Migration202011210945", func(c migration.Context) migration.Migration {
			return &Migration202011210945{Base: migration.NewBase(c)}
		}},
	}
	for _, u := range units {
		if err := r.Register(u.name, u.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry 返回已登记全部迁移的注册表
func NewRegistry() (*migration.Registry, error) {
	r := migration.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// mapping 读取 mappings/{logical}_{id}.json
func mapping(logical string, id int64) ([]byte, error) {
	b, err := mappingsFS.ReadFile(fmt.Sprintf("mappings/%s_%d.json", logical, id))
	if err != nil {
		return nil, fmt.Errorf("mapping of %s for %d: %w", logical, id, err)
	}
	return b, nil
}
