package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bililive-go/docstore/src/pkg/indexname"
)

func noop(c Context) Migration {
	return &testUnit{Base: NewBase(c)}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Migration202010041530", noop))
	require.NoError(t, r.Register("Migration202009082258", noop))
	require.NoError(t, r.Register("Migration202011210945", noop))

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(202009082258), entries[0].ID)
	assert.Equal(t, "Migration202009082258", entries[0].Name)
	assert.Equal(t, int64(202010041530), entries[1].ID)
	assert.Equal(t, int64(202011210945), entries[2].ID)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, int64(202011210945), r.Latest())
	assert.True(t, r.Has(202010041530))
	assert.False(t, r.Has(202010041531))
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Migration202009082258", noop))

	err := r.Register("AddTags202009082258", noop)
	assert.ErrorIs(t, err, ErrDuplicateMigration)

	err = r.Register("MigrationInitial", noop)
	assert.ErrorIs(t, err, indexname.ErrInvalidMigrationName)

	err = r.Register("Migration202101010000", nil)
	assert.ErrorIs(t, err, ErrInvalidMigration)

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("Migration202009082258", noop)
	assert.Panics(t, func() {
		r.MustRegister("Migration202009082258", noop)
	})
}

func TestRegistry_After(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int64{3, 1, 2} {
		register(t, r, id, nil)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids(r.after(0)))
	assert.Equal(t, []int64{3}, ids(r.after(2)))
	assert.Nil(t, ids(r.after(3)))
	assert.Equal(t, int64(0), NewRegistry().Latest())
}

func TestRegistry_EntriesIsCopy(t *testing.T) {
	r := NewRegistry()
	register(t, r, 1, nil)
	entries := r.Entries()
	entries[0].Name = "changed"
	assert.Equal(t, testName(1), r.Entries()[0].Name)
}
