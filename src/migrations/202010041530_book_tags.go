package migrations

import (
	"context"

	"github.com/bililive-go/docstore/src/pkg/migration"
)

// Migration202010041530 book 增加 tags 字段
type Migration202010041530 struct {
	*migration.Base
}

func (m *Migration202010041530) Run(ctx context.Context) error {
	body, err := mapping(bookIndex, m.ID())
	if err != nil {
		return err
	}
	return m.Migrate(ctx, bookIndex, body, "")
}
