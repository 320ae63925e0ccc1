package jsonutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWriteBytesCreatesDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteBytes(fs, "/a/b/c.lua", []byte("addappid(570)")))

	data, err := afero.ReadFile(fs, "/a/b/c.lua")
	require.NoError(t, err)
	require.Equal(t, "addappid(570)", string(data))
}

func TestWriteThenReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/cache/search_cache.json"

	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, WriteFile(fs, path, in))

	exists, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	require.False(t, exists)

	var out map[string]int
	require.NoError(t, ReadFile(fs, path, &out))
	require.Equal(t, in, out)
}

func TestReadFileInvalidJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("{nope"), 0o644))

	var out map[string]any
	require.ErrorContains(t, ReadFile(fs, "/bad.json", &out), "decoding /bad.json")
}
