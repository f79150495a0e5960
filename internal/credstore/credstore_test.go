package credstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/domain"
)

// exerciseStore runs the contract every driver must satisfy
func exerciseStore(t *testing.T, store domain.CredentialStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	require.NoError(t, store.Save(ctx, "tok-1"))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	require.NoError(t, store.Save(ctx, "tok-2"))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got, "save replaces")

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	assert.NoError(t, store.Clear(ctx), "clearing twice is fine")
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "kilimo.db"), "token")
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kilimo.db")
	ctx := context.Background()

	store, err := OpenSQLite(path, "token")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path, "token")
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
	assert.Equal(t, path, reopened.Path())

	other, err := OpenSQLite(path, "other")
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound, "keys are isolated")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "token")
	defer store.Close()

	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), "tok-3"))
	got, err := mr.Get("kilimo:credential:token")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", got)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), addr, "", 0, "token")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.StorageConfig{Driver: config.StorageMemory, CredentialKey: "token"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, config.StorageConfig{
		Driver:        config.StorageSQLite,
		Path:          filepath.Join(t.TempDir(), "k.db"),
		CredentialKey: "token",
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	mr := miniredis.RunT(t)
	store, err = Open(ctx, config.StorageConfig{Driver: config.StorageRedis, RedisAddr: mr.Addr(), CredentialKey: "token"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.StorageConfig{Driver: "etcd"})
	assert.Error(t, err)
}
