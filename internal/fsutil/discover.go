// Package fsutil implements repository discovery (spec.md §6): walking
// up from a starting directory to find a `.git` file or directory,
// resolving a `.git` file's `gitdir:` redirect, and following a linked
// worktree's `commondir` to its common git directory.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/basincore/gitkernel/internal/ioutil"
)

// ErrCommonDirNotFound is returned when a linked worktree's commondir
// file names a path that does not exist.
var ErrCommonDirNotFound = errors.New("fsutil: commondir not found")

// ErrNotARepository is returned when discovery reaches the filesystem
// root or a ceiling directory without finding a `.git` entry. Mount
// boundaries are not detected; the upward walk continues across them.
var ErrNotARepository = errors.New("fsutil: not a git repository (or any parent up to a ceiling)")

// DiscoverOptions configures repository discovery.
type DiscoverOptions struct {
	// Detect, when true, walks up parent directories looking for `.git`
	// instead of requiring it directly under the starting path.
	Detect bool
	// Ceilings stops the upward walk at (and excluding) any of these
	// absolute directories, per GIT_CEILING_DIRECTORIES.
	Ceilings []string
}

// Discover finds the git directory and working-tree filesystem starting
// from path. It returns the git directory's filesystem (rooted at the
// resolved `.git` directory, or its `gitdir:` redirect target) and, when
// a working tree is present, its filesystem too.
func Discover(path string, opts DiscoverOptions) (gitDir, workTree billy.Filesystem, err error) {
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	for {
		fs := osfs.New(path)

		if hitCeiling(path, opts.Ceilings) {
			return nil, nil, ErrNotARepository
		}

		fi, statErr := fs.Stat(".git")
		if statErr == nil {
			if fi.IsDir() {
				dot, err := fs.Chroot(".git")
				return dot, fs, err
			}
			dot, err := resolveDotGitFile(path, fs)
			return dot, fs, err
		}
		if !os.IsNotExist(statErr) {
			return nil, nil, statErr
		}

		if !opts.Detect {
			return nil, nil, ErrNotARepository
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, nil, ErrNotARepository
		}
		path = parent
	}
}

func hitCeiling(path string, ceilings []string) bool {
	for _, c := range ceilings {
		if filepath.Clean(c) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

// resolveDotGitFile reads a `.git` file's `gitdir: <path>` redirect
// (used by submodules and `git worktree add`) and returns a filesystem
// rooted at the target.
func resolveDotGitFile(path string, fs billy.Filesystem) (bfs billy.Filesystem, err error) {
	f, err := fs.Open(".git")
	if err != nil {
		return nil, err
	}
	defer ioutil.CheckClose(f, &err)

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	const prefix = "gitdir: "
	line := string(b)
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("fsutil: .git file has no %q prefix", prefix)
	}
	gitdir := strings.TrimSpace(strings.SplitN(line[len(prefix):], "\n", 2)[0])
	if filepath.IsAbs(gitdir) {
		return osfs.New(gitdir), nil
	}
	return osfs.New(fs.Join(path, gitdir)), nil
}

// CommonDirectory reads a linked worktree's `commondir` file (present
// under its private git directory) and returns a filesystem rooted at
// the shared common git directory, or nil if this is not a linked
// worktree (no commondir file present).
func CommonDirectory(fs billy.Filesystem) (common billy.Filesystem, err error) {
	f, err := fs.Open("commondir")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer ioutil.CheckClose(f, &err)

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(string(b))
	if path == "" {
		return nil, nil
	}

	if filepath.IsAbs(path) {
		common = osfs.New(path)
	} else {
		common = osfs.New(filepath.Join(fs.Root(), path))
	}
	if _, err := common.Stat(""); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCommonDirNotFound
		}
		return nil, err
	}
	return common, nil
}
