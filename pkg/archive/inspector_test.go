package archive_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/acme-corp/module-registry-api/pkg/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLocateManifest_RootLevel(t *testing.T) {
	data := buildZip(t, map[string]string{
		"package.json": `{"name":"left-pad","version":"1.3.0","homepage":"https://github.com/left-pad/left-pad"}`,
		"index.js":     "module.exports = {}",
	})

	m, err := archive.LocateManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "left-pad", m.Name)
	assert.Equal(t, "1.3.0", m.Version)
	assert.Equal(t, "https://github.com/left-pad/left-pad", m.Homepage)
}

func TestLocateManifest_ShallowestWins(t *testing.T) {
	data := buildZip(t, map[string]string{
		"repo-master/node_modules/dep/package.json": `{"name":"dep","version":"9.9.9"}`,
		"repo-master/package.json":                  `{"name":"outer","version":"2.0.0"}`,
	})

	m, err := archive.LocateManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "outer", m.Name)
	assert.Equal(t, "2.0.0", m.Version)
}

func TestLocateManifest_MissingFields(t *testing.T) {
	data := buildZip(t, map[string]string{
		"package.json": `{"description":"nothing declared"}`,
	})

	m, err := archive.LocateManifest(data)
	require.NoError(t, err)
	assert.Empty(t, m.Name)
	assert.Empty(t, m.Version)
}

func TestLocateManifest_NoManifest(t *testing.T) {
	data := buildZip(t, map[string]string{
		"readme.md": "no manifest here",
	})

	_, err := archive.LocateManifest(data)
	assert.ErrorIs(t, err, archive.ErrManifestNotFound)
}

func TestLocateManifest_UnparseableManifest(t *testing.T) {
	data := buildZip(t, map[string]string{
		"package.json": `{"name": not-json`,
	})

	_, err := archive.LocateManifest(data)
	assert.ErrorIs(t, err, archive.ErrManifestNotFound)
}

func TestLocateManifest_NotAZip(t *testing.T) {
	_, err := archive.LocateManifest([]byte("plain text, not an archive"))
	assert.ErrorIs(t, err, archive.ErrMalformedArchive)
}
