package loose

import (
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/basincore/gitkernel/hash"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := NewStore(memfs.New(), "objects")

	oid, err := s.Write(hash.SHA1, "blob", []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "95d09f2b10159347eece71399a7e2e907ea3df4f", oid.String())
	require.True(t, s.Has(oid))

	objType, content, err := s.Read(oid)
	require.NoError(t, err)
	require.Equal(t, "blob", objType)
	require.Equal(t, []byte("hello world"), content)
}

func TestWriteIsIdempotent(t *testing.T) {
	s := NewStore(memfs.New(), "objects")

	oid1, err := s.Write(hash.SHA1, "blob", []byte("same content"))
	require.NoError(t, err)
	oid2, err := s.Write(hash.SHA1, "blob", []byte("same content"))
	require.NoError(t, err)
	require.True(t, oid1.Equal(oid2))
}

func TestReadHeaderWithoutFullInflate(t *testing.T) {
	s := NewStore(memfs.New(), "objects")
	oid, err := s.Write(hash.SHA1, "tree", []byte("some tree bytes"))
	require.NoError(t, err)

	objType, size, err := s.ReadHeader(oid)
	require.NoError(t, err)
	require.Equal(t, "tree", objType)
	require.Equal(t, int64(len("some tree bytes")), size)
}

func TestReadNotFound(t *testing.T) {
	s := NewStore(memfs.New(), "objects")
	missing := hash.Zero(hash.SHA1)
	_, _, err := s.Read(missing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadVerifiedAcceptsIntactObject(t *testing.T) {
	s := NewStore(memfs.New(), "objects")
	oid, err := s.Write(hash.SHA1, "blob", []byte("trustworthy"))
	require.NoError(t, err)

	_, _, err = s.ReadVerified(hash.SHA1, oid)
	require.NoError(t, err)
}

func TestEnumerate(t *testing.T) {
	s := NewStore(memfs.New(), "objects")
	a, err := s.Write(hash.SHA1, "blob", []byte("a"))
	require.NoError(t, err)
	b, err := s.Write(hash.SHA1, "blob", []byte("b"))
	require.NoError(t, err)

	seen := hash.NewSet()
	require.NoError(t, s.Enumerate(func(o hash.OID) error {
		seen.Add(o)
		return nil
	}))
	require.True(t, seen.Has(a))
	require.True(t, seen.Has(b))
}

func TestReadStream(t *testing.T) {
	s := NewStore(memfs.New(), "objects")
	content := []byte("streamed content body")
	oid, err := s.Write(hash.SHA1, "blob", content)
	require.NoError(t, err)

	objType, size, r, err := s.ReadStream(oid)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "blob", objType)
	require.Equal(t, int64(len(content)), size)

	got := make([]byte, size)
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	require.Equal(t, content, got)
}
