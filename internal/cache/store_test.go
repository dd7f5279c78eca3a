package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/verbatim/internal/config"
	"github.com/spherical/verbatim/internal/domain"
)

// testUnitCacheContract exercises the behavior every driver must share.
func testUnitCacheContract(t *testing.T, store domain.UnitCache) {
	t.Helper()
	ctx := context.Background()
	key := domain.UnitKey{ArtifactID: "scan-1942", Kind: domain.UnitPage, UnitID: "001"}

	t.Run("miss", func(t *testing.T) {
		text, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, text)
	})

	t.Run("empty write is rejected", func(t *testing.T) {
		err := store.Put(ctx, key, " \n\t ")
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeEmptyWrite))

		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "a rejected write must not create an entry")
	})

	t.Run("put stores trimmed text", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, key, "\n  Chapter one\nline two  \n"))

		text, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Chapter one\nline two", text)
	})

	t.Run("second put conflicts", func(t *testing.T) {
		err := store.Put(ctx, key, "different")
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeCacheConflict))

		text, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Chapter one\nline two", text, "entries are never mutated")
	})

	t.Run("keys are independent", func(t *testing.T) {
		other := domain.UnitKey{ArtifactID: "scan-1942", Kind: domain.UnitTrack, UnitID: "001"}
		_, ok, err := store.Get(ctx, other)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Put(ctx, other, "audio"))
		text, ok, err := store.Get(ctx, other)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "audio", text)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, _, err := store.Get(ctx, domain.UnitKey{ArtifactID: "../escape", Kind: domain.UnitPage, UnitID: "001"})
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	})
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	testUnitCacheContract(t, store)

	data, err := os.ReadFile(filepath.Join(dir, "scan-1942", "page_001.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Chapter one\nline two", string(data))
}

func TestFileStore_ZeroLengthFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	key := domain.UnitKey{ArtifactID: "a", Kind: domain.UnitPage, UnitID: "002"}
	require.NoError(t, os.MkdirAll(store.Layout().ArtifactDir("a"), 0o755))
	require.NoError(t, os.WriteFile(store.Layout().Path(key), nil, 0o644))

	_, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(context.Background(), key, "recovered"))
	text, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "recovered", text)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "units.db"))
	require.NoError(t, err)
	defer store.Close()

	testUnitCacheContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.db")
	key := domain.UnitKey{ArtifactID: "a", Kind: domain.UnitPage, UnitID: "001"}

	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), key, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close()

	text, ok, err := reopened.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", text)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer store.Close()

	testUnitCacheContract(t, store)

	val, err := mr.Get("test:scan-1942:page:001")
	require.NoError(t, err)
	assert.Equal(t, "Chapter one\nline two", val)
	assert.Zero(t, mr.TTL("test:scan-1942:page:001"), "entries never expire")
}

func TestSQLStore_RebindForPostgres(t *testing.T) {
	s := &SQLStore{driver: "postgres"}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	s.driver = "sqlite3"
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/out"}
	key := domain.UnitKey{ArtifactID: "book", Kind: domain.UnitPage, UnitID: "012"}

	assert.Equal(t, filepath.Join("/out", "book", "page_012.txt"), l.Path(key))
	assert.Equal(t, "verbatim:book:page:012", RedisKey("verbatim:", key))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.CacheConfig{Driver: "memcached"}, t.TempDir())
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestOpen_DefaultsToFileStore(t *testing.T) {
	store, err := Open(context.Background(), config.CacheConfig{}, t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &FileStore{}, store)
}
