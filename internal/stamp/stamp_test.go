package stamp

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pyprovision/internal/fault"
)

func TestWrite_CreatesParentsAndContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "dist.version-stamp")

	require.NoError(t, Write(path, "cpython-3.10.16+20241219-x86_64-pc-windows-msvc"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cpython-3.10.16+20241219-x86_64-pc-windows-msvc", string(data))
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stamp")
	require.NoError(t, Write(path, "a much longer previous identity"))
	require.NoError(t, Write(path, "short"))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "short", got)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, fault.ErrFilesystem)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWrite_ParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := Write(filepath.Join(blocker, "stamp"), "x")
	assert.ErrorIs(t, err, fault.ErrFilesystem)
}
