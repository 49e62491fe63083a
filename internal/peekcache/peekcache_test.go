package peekcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_PutThenGet(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "peek.db"))
	require.NoError(t, err)
	defer c.Close()

	key := Key("run.sh", 4096, "abc123")
	require.NoError(t, c.Put(key, "echo hi\n"))

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "echo hi\n", got)
}

func TestCache_GetMissingKeyIsNotFound(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "peek.db"))
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(Key("missing.sh", 4096, ""))
	require.False(t, ok, "expected miss for unpopulated key")
}

func TestKey_DistinguishesWindowSize(t *testing.T) {
	require.NotEqual(t, Key("a.sh", 4096, "h"), Key("a.sh", 8192, "h"))
}
