package utilities

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrependFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "gh1", "gh1_temp.log")

	require.NoError(t, PrependFile(dest, []byte("first\n")))
	require.NoError(t, PrependFile(dest, []byte("second\n")))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "second\nfirst\n", string(content))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestWithinRoot(t *testing.T) {
	root := t.TempDir()
	assert.True(t, WithinRoot(root, filepath.Join(root, "a", "b.log")))
	assert.False(t, WithinRoot(root, filepath.Join(root, "..", "escape.log")))
	assert.False(t, WithinRoot(root, root+"-other"))
}

func TestListFilesWithExt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.log"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "c.LOG"), nil, 0o644))

	flat, err := ListFilesWithExt(root, "log", false)
	require.NoError(t, err)
	assert.Len(t, flat, 1)

	all, err := ListFilesWithExt(root, ".log", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = ListFilesWithExt("", ".log", true)
	assert.Error(t, err)
}
