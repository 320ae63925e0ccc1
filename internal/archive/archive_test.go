package archive

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractZip(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/game.zip", zipBytes(t, map[string]string{
		"440.lua":             "addappid(440)",
		"depots/441.manifest": "manifest",
	}), 0o644))

	require.True(t, IsZip(fs, "/in/game.zip"))

	files, err := ExtractZip(fs, "/in/game.zip", "/out")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"440.lua", "depots/441.manifest"}, files)

	data, err := afero.ReadFile(fs, "/out/depots/441.manifest")
	require.NoError(t, err)
	require.Equal(t, "manifest", string(data))
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.lua", "a/../../evil.lua", "/abs.lua", `..\win.lua`, "C:/x.lua"} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/in/bad.zip", zipBytes(t, map[string]string{
				"ok.lua": "x",
				name:     "y",
			}), 0o644))

			_, err := ExtractZip(fs, "/in/bad.zip", "/out/x")
			require.ErrorIs(t, err, ErrPathTraversal)

			exists, _ := afero.Exists(fs, "/out/x/ok.lua")
			require.False(t, exists)
		})
	}
}

func TestIsZipRejectsOtherData(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/page.zip", []byte("<html>not found</html>"), 0o644))
	require.False(t, IsZip(fs, "/in/page.zip"))
	require.False(t, IsZip(fs, "/in/missing.zip"))
}
