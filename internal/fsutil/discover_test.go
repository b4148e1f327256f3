package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOSFS(t *testing.T, path string) billy.Filesystem {
	t.Helper()
	return osfs.New(path)
}

func TestDiscoverPlainGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	dot, wt, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".git"), dot.Root())
	assert.Equal(t, root, wt.Root())
}

func TestDiscoverWalksUpParents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	dot, wt, err := Discover(nested, DiscoverOptions{Detect: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".git"), dot.Root())
	assert.Equal(t, root, wt.Root())
}

func TestDiscoverNoDetectFailsInChild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, _, err := Discover(nested, DiscoverOptions{Detect: false})
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestDiscoverRespectsCeiling(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, _, err := Discover(nested, DiscoverOptions{Detect: true, Ceilings: []string{filepath.Join(root, "a")}})
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestDiscoverDotGitFileRedirect(t *testing.T) {
	root := t.TempDir()
	realGitDir := filepath.Join(root, "..", "actual.git")
	realGitDir, err := filepath.Abs(realGitDir)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(realGitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte("gitdir: "+realGitDir+"\n"), 0o644))

	dot, wt, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, realGitDir, dot.Root())
	assert.Equal(t, root, wt.Root())
}

func TestDiscoverNotARepository(t *testing.T) {
	root := t.TempDir()
	_, _, err := Discover(root, DiscoverOptions{})
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestCommonDirectoryAbsent(t *testing.T) {
	root := t.TempDir()
	fs := mustOSFS(t, root)
	common, err := CommonDirectory(fs)
	require.NoError(t, err)
	assert.Nil(t, common)
}

func TestCommonDirectoryPresent(t *testing.T) {
	mainGitDir := t.TempDir()
	worktreeGitDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(worktreeGitDir, "commondir"), []byte(mainGitDir+"\n"), 0o644))

	fs := mustOSFS(t, worktreeGitDir)
	common, err := CommonDirectory(fs)
	require.NoError(t, err)
	require.NotNil(t, common)
	assert.Equal(t, mainGitDir, common.Root())
}

func TestCommonDirectoryMissingTarget(t *testing.T) {
	worktreeGitDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(worktreeGitDir, "commondir"), []byte("/no/such/dir\n"), 0o644))

	fs := mustOSFS(t, worktreeGitDir)
	_, err := CommonDirectory(fs)
	assert.ErrorIs(t, err, ErrCommonDirNotFound)
}
