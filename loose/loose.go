// Package loose implements git's loose-object store: one zlib-deflated
// file per object, named by its OID and bucketed into 256 two-hex-digit
// fan-out directories under objects/.
package loose

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-git/go-billy/v5"

	"github.com/basincore/gitkernel/hash"
)

// ErrNotFound is returned when an OID has no loose object on disk.
var ErrNotFound = errors.New("loose: object not found")

// ErrCorrupt is returned when a loose object's on-disk bytes cannot be
// parsed as a valid "<type> <size>\0<content>" stream, or fail hash
// verification.
var ErrCorrupt = errors.New("loose: corrupt object")

// chmodFS is satisfied by billy filesystems (e.g. osfs) that support
// permission changes. Not every billy.Filesystem does (in-memory test
// filesystems typically don't), so callers that care detect it with a
// type assertion rather than requiring it.
type chmodFS interface {
	Chmod(name string, mode os.FileMode) error
}

// Store is a loose-object store rooted at a git objects/ directory.
type Store struct {
	fs  billy.Filesystem
	dir string
}

// NewStore returns a Store that reads and writes loose objects under
// dir (conventionally "objects") within fs.
func NewStore(fs billy.Filesystem, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path(oid hash.OID) string {
	return s.fs.Join(s.dir, oid.LoosePath())
}

// Has reports whether oid has a loose object on disk.
func (s *Store) Has(oid hash.OID) bool {
	_, err := s.fs.Stat(s.path(oid))
	return err == nil
}

// ReadHeader decompresses only as much of oid's object as needed to
// parse its "<type> <size>\0" header, without inflating the full body.
func (s *Store) ReadHeader(oid hash.OID) (objType string, size int64, err error) {
	f, err := s.fs.Open(s.path(oid))
	if err != nil {
		return "", 0, wrapNotFound(err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	return readHeader(zr)
}

// readHeader reads a "<type> <size>\0" header from r, byte by byte so
// as not to overread into the content that follows.
func readHeader(r io.Reader) (objType string, size int64, err error) {
	var hdr []byte
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return "", 0, fmt.Errorf("%w: truncated header: %v", ErrCorrupt, err)
		}
		if one[0] == 0 {
			break
		}
		hdr = append(hdr, one[0])
		if len(hdr) > 64 {
			return "", 0, fmt.Errorf("%w: header too long", ErrCorrupt)
		}
	}
	sp := bytes.IndexByte(hdr, ' ')
	if sp < 0 {
		return "", 0, fmt.Errorf("%w: header missing space: %q", ErrCorrupt, hdr)
	}
	objType = string(hdr[:sp])
	size, err = strconv.ParseInt(string(hdr[sp+1:]), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad size in header %q: %v", ErrCorrupt, hdr, err)
	}
	return objType, size, nil
}

// Read fully decompresses and returns oid's type and content.
func (s *Store) Read(oid hash.OID) (objType string, content []byte, err error) {
	f, err := s.fs.Open(s.path(oid))
	if err != nil {
		return "", nil, wrapNotFound(err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	objType, size, err := readHeader(zr)
	if err != nil {
		return "", nil, err
	}
	content = make([]byte, size)
	if _, err := io.ReadFull(zr, content); err != nil {
		return "", nil, fmt.Errorf("%w: short content: %v", ErrCorrupt, err)
	}
	return objType, content, nil
}

// ReadVerified is Read, but additionally recomputes oid's hash over the
// decompressed content and fails with ErrCorrupt on mismatch.
func (s *Store) ReadVerified(algo hash.Algorithm, oid hash.OID) (objType string, content []byte, err error) {
	objType, content, err = s.Read(oid)
	if err != nil {
		return "", nil, err
	}
	got, err := hash.HashObject(algo, objType, content)
	if err != nil {
		return "", nil, err
	}
	if !got.Equal(oid) {
		return "", nil, fmt.Errorf("%w: %s does not match computed %s", ErrCorrupt, oid, got)
	}
	return objType, content, nil
}

// ReadStream opens a streaming decompressed reader over oid's content,
// positioned just past the header, with the declared size. Used to avoid
// buffering large blobs entirely in memory.
func (s *Store) ReadStream(oid hash.OID) (objType string, size int64, r io.ReadCloser, err error) {
	f, err := s.fs.Open(s.path(oid))
	if err != nil {
		return "", 0, nil, wrapNotFound(err)
	}
	zr, err := zlib.NewReader(f)
	if err != nil {
		f.Close()
		return "", 0, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	objType, size, err = readHeader(zr)
	if err != nil {
		zr.Close()
		f.Close()
		return "", 0, nil, err
	}
	return objType, size, &streamCloser{Reader: io.LimitReader(zr, size), zr: zr, f: f}, nil
}

type streamCloser struct {
	io.Reader
	zr io.Closer
	f  io.Closer
}

func (s *streamCloser) Close() error {
	err1 := s.zr.Close()
	err2 := s.f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Write stores content as a loose object of the given type, computing
// and returning its OID. Writing is idempotent: if an object with the
// resulting OID already exists, its bytes are trusted and no write
// occurs.
func (s *Store) Write(algo hash.Algorithm, objType string, content []byte) (hash.OID, error) {
	return s.WriteStream(algo, objType, int64(len(content)), bytes.NewReader(content))
}

// WriteStream is Write, streaming content from r instead of requiring
// it already be in memory. size must be the exact byte count r will
// yield.
func (s *Store) WriteStream(algo hash.Algorithm, objType string, size int64, r io.Reader) (hash.OID, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return hash.OID{}, err
	}

	tmp, err := s.fs.TempFile(s.dir, "tmp_obj_")
	if err != nil {
		return hash.OID{}, err
	}
	tmpName := tmp.Name()
	abort := func() {
		tmp.Close()
		s.fs.Remove(tmpName)
	}

	zw := zlib.NewWriter(tmp)
	header := []byte(fmt.Sprintf("%s %d\x00", objType, size))
	if _, err := zw.Write(header); err != nil {
		abort()
		return hash.OID{}, err
	}

	hasher, err := hash.NewHasher(algo, objType, size)
	if err != nil {
		abort()
		return hash.OID{}, err
	}

	if _, err := io.Copy(io.MultiWriter(zw, hasher), io.LimitReader(r, size)); err != nil {
		abort()
		return hash.OID{}, err
	}
	if err := zw.Close(); err != nil {
		abort()
		return hash.OID{}, err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return hash.OID{}, err
	}

	oid, err := hasher.Sum()
	if err != nil && !errors.Is(err, hash.ErrCollisionDetected) {
		s.fs.Remove(tmpName)
		return hash.OID{}, err
	}
	collision := errors.Is(err, hash.ErrCollisionDetected)

	if s.Has(oid) {
		s.fs.Remove(tmpName)
		if collision {
			return oid, hash.ErrCollisionDetected
		}
		return oid, nil
	}

	dir := s.fs.Join(s.dir, oid.String()[:2])
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		s.fs.Remove(tmpName)
		return hash.OID{}, err
	}
	if err := s.fs.Rename(tmpName, s.path(oid)); err != nil {
		s.fs.Remove(tmpName)
		return hash.OID{}, err
	}
	if cfs, ok := s.fs.(chmodFS); ok {
		_ = cfs.Chmod(s.path(oid), 0o444)
	}

	if collision {
		return oid, hash.ErrCollisionDetected
	}
	return oid, nil
}

// Enumerate calls fn once for every loose object present, in no
// particular order. Non-hex entries under the fan-out directories
// (stray temp files from an interrupted write, editor swap files) are
// skipped rather than treated as errors.
func (s *Store) Enumerate(fn func(hash.OID) error) error {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 || !isHex(e.Name()) {
			continue
		}
		sub, err := s.fs.ReadDir(s.fs.Join(s.dir, e.Name()))
		if err != nil {
			return err
		}
		for _, f := range sub {
			if f.IsDir() || !isHex(f.Name()) {
				continue
			}
			oid, err := hash.FromHex(e.Name() + f.Name())
			if err != nil {
				continue
			}
			if err := fn(oid); err != nil {
				return err
			}
		}
	}
	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

func wrapNotFound(err error) error {
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
