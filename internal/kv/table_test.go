package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tables(t *testing.T) map[string]Table {
	dir := t.TempDir()
	ldb, err := OpenLevelDB(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	sqlite, err := OpenSQLite(filepath.Join(dir, "meta.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() {
		ldb.Close()
		sqlite.Close()
	})
	return map[string]Table{
		"leveldb": ldb,
		"sqlite":  sqlite,
		"memory":  NewMemory(),
	}
}

func TestTableContract(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	for name, table := range tables(t) {
		t.Run(name, func(t *testing.T) {
			_, err := table.Get(ctx, "TUSFILE_a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, table.Set(ctx, "TUSFILE_a", []byte(`{"id":"a"}`), now.Add(time.Hour)))
			value, err := table.Get(ctx, "TUSFILE_a")
			require.NoError(t, err)
			assert.Equal(t, `{"id":"a"}`, string(value))

			require.NoError(t, table.Set(ctx, "TUSFILE_a", []byte(`{"id":"a","v":2}`), now.Add(2*time.Hour)))
			value, err = table.Get(ctx, "TUSFILE_a")
			require.NoError(t, err)
			assert.Equal(t, `{"id":"a","v":2}`, string(value))

			count, err := table.Count(ctx, "TUSFILE_")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			require.NoError(t, table.Delete(ctx, "TUSFILE_a"))
			require.NoError(t, table.Delete(ctx, "TUSFILE_a"))
			_, err = table.Get(ctx, "TUSFILE_a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestScanExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	for name, table := range tables(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, table.Set(ctx, "TUSFILE_old", []byte("1"), now.Add(-time.Hour)))
			require.NoError(t, table.Set(ctx, "TUSFILE_now", []byte("2"), now))
			require.NoError(t, table.Set(ctx, "TUSFILE_new", []byte("3"), now.Add(time.Hour)))
			require.NoError(t, table.Set(ctx, "ASSET_forever", []byte("4"), time.Time{}))
			// moved into the future, the old index entry must not match
			require.NoError(t, table.Set(ctx, "TUSFILE_moved", []byte("5"), now.Add(-time.Minute)))
			require.NoError(t, table.Set(ctx, "TUSFILE_moved", []byte("5"), now.Add(time.Minute)))

			var keys []string
			err := table.ScanExpired(ctx, now, func(key string, value []byte) error {
				keys = append(keys, key)
				return table.Delete(ctx, key)
			})
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"TUSFILE_now", "TUSFILE_old"}, keys)

			keys = nil
			require.NoError(t, table.ScanExpired(ctx, now, func(key string, value []byte) error {
				keys = append(keys, key)
				return nil
			}))
			assert.Empty(t, keys)

			_, err = table.Get(ctx, "TUSFILE_new")
			assert.NoError(t, err)
			_, err = table.Get(ctx, "ASSET_forever")
			assert.NoError(t, err)
		})
	}
}

func TestLevelDBReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meta.db")
	ldb, err := OpenLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, ldb.Set(ctx, "TUSFILE_x", []byte("x"), time.Now().Add(-time.Second)))
	require.NoError(t, ldb.Close())

	ldb, err = OpenLevelDB(path)
	require.NoError(t, err)
	defer ldb.Close()
	var keys []string
	require.NoError(t, ldb.ScanExpired(ctx, time.Now(), func(key string, value []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"TUSFILE_x"}, keys)
}
