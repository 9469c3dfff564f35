package migrations

import (
	"context"

	"github.com/bililive-go/docstore/src/pkg/migration"
)

const lowercaseUsername = `if (ctx._source.username != null) { ctx._source.username = ctx._source.username.toLowerCase(); }`

// Migration202011210945 username 统一为小写，新 mapping 使用 lowercase normalizer
type Migration202011210945 struct {
	*migration.Base
}

func (m *Migration202011210945) Run(ctx context.Context) error {
	body, err := mapping(userIndex, m.ID())
	if err != nil {
		return err
	}
	return m.Migrate(ctx, userIndex, body, lowercaseUsername)
}
