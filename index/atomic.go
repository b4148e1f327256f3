package index

import (
	"bytes"

	"github.com/go-git/go-billy/v5"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/internal/lockfile"
)

// WriteFile builds idx's full byte image in memory and commits it to
// path via the index.lock protocol: acquire path+".lock", write the
// image, rename over path (spec.md §4.6 "Atomic write"). Only one
// writer may hold the lock at a time; a concurrent writer observes
// lockfile.ErrLocked.
func WriteFile(fs billy.Filesystem, path string, idx *Index, algo hash.Algorithm) error {
	var buf bytes.Buffer
	if err := Encode(&buf, idx, algo); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(fs, path)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	if _, err := lock.Write(buf.Bytes()); err != nil {
		return err
	}
	return lock.Commit()
}

// ReadFile opens path and decodes it as an index. A missing file is not
// an error at this layer; callers that want "no index yet" to mean "an
// empty index" should check os.IsNotExist themselves and substitute
// &Index{Version: 2}.
func ReadFile(fs billy.Filesystem, path string, algo hash.Algorithm) (*Index, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, algo)
}
