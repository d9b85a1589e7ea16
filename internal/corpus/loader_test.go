package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir_LoadsMarkdownAndText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha document")
	writeFile(t, dir, "sub/b.md", "# beta\nbody")
	writeFile(t, dir, "ignored.json", `{"not": "loaded"}`)

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "a.txt", docs[0].ID)
	assert.Equal(t, "alpha document", docs[0].Text)
	assert.Equal(t, "txt", docs[0].Metadata["ext"])
	assert.Equal(t, "sub/b.md", docs[1].ID)
}

func TestLoadDir_SkipsEmptyAndHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   \n  ")
	writeFile(t, dir, ".hidden/secret.md", "hidden")
	writeFile(t, dir, "real.md", "content")

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "real.md", docs[0].ID)
}

func TestLoadDir_EmptyDirectory(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, sferrors.ErrEmptyCorpus)
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
