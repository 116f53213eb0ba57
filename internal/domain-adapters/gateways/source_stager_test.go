package gateways

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStager_Stage(t *testing.T) {
	pristine := t.TempDir()
	writeTree(t, pristine, map[string]string{
		"src/config.h":          "#define A 1\n",
		"src/gperftools.sln":    "sln",
		"src/vsprojects/a.proj": "proj",
	})
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("config.h", filepath.Join(pristine, "src", "alias.h")))
	}

	dest := filepath.Join(t.TempDir(), "work")
	require.NoError(t, NewSourceStager(nil).Stage(context.Background(), pristine, dest))

	assert.Equal(t, "#define A 1\n", readFile(t, filepath.Join(dest, "src", "config.h")))
	assert.Equal(t, "proj", readFile(t, filepath.Join(dest, "src", "vsprojects", "a.proj")))
	if runtime.GOOS != "windows" {
		link, err := os.Readlink(filepath.Join(dest, "src", "alias.h"))
		require.NoError(t, err)
		assert.Equal(t, "config.h", link)
	}

	// writes to the working tree leave the pristine tree alone
	require.NoError(t, os.WriteFile(filepath.Join(dest, "src", "config.h"), []byte("patched"), 0600))
	assert.Equal(t, "#define A 1\n", readFile(t, filepath.Join(pristine, "src", "config.h")))
}

func TestSourceStager_Errors(t *testing.T) {
	stager := NewSourceStager(nil)

	err := stager.Stage(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.Error(t, err)

	pristine := t.TempDir()
	writeTree(t, pristine, map[string]string{"a.txt": "a"})
	dest := t.TempDir()
	writeTree(t, dest, map[string]string{"stale.txt": "x"})
	err = stager.Stage(context.Background(), pristine, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, stager.Stage(ctx, pristine, filepath.Join(t.TempDir(), "work")))
}
