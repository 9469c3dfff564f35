package migrations

import (
	"context"

	"github.com/bililive-go/docstore/src/pkg/migration"
)

// Migration202009082258 创建 user、book 的第一代索引
type Migration202009082258 struct {
	*migration.Base
}

func (m *Migration202009082258) Run(ctx context.Context) error {
	for _, logical := range []string{userIndex, bookIndex} {
		body, err := mapping(logical, m.ID())
		if err != nil {
			return err
		}
		if err := m.CreateIndex(ctx, m.IndexName(logical), body); err != nil {
			return err
		}
	}
	return nil
}
