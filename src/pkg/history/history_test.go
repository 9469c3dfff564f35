package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "db", "history.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordApplied(ctx, 202009082258, "Migration202009082258", 1500*time.Millisecond))
	require.NoError(t, s.RecordFailed(ctx, 202010041530, "Migration202010041530", errors.New("boom"), time.Second))
	require.NoError(t, s.RecordFinalized(ctx, []string{"nh-user-1"}, []string{"nh-book-1"}))

	events, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindFinalized, events[0].Kind)
	assert.Equal(t, "deleted=nh-user-1 failed=nh-book-1", events[0].Detail)

	assert.Equal(t, KindFailed, events[1].Kind)
	assert.Equal(t, int64(202010041530), events[1].MigrationID)
	assert.Equal(t, "boom", events[1].Detail)

	assert.Equal(t, KindApplied, events[2].Kind)
	assert.Equal(t, 1500*time.Millisecond, events[2].Duration)
	assert.False(t, events[2].CreatedAt.IsZero())
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.RecordApplied(ctx, 1, "Migration000000000001", 0))
	require.NoError(t, s.Close())

	// 第二次打开时表结构已是最新，不应报错
	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
