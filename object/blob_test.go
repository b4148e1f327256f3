package object

import (
	"testing"

	"github.com/basincore/gitkernel/hash"
	"github.com/stretchr/testify/require"
)

func TestBlobHashRoundTrip(t *testing.T) {
	b := NewBlob([]byte("hello world"))
	oid, err := HashStream(hash.SHA1, b)
	require.NoError(t, err)
	require.Equal(t, "95d09f2b10159347eece71399a7e2e907ea3df4f", oid.String())
}

func TestBlobEmpty(t *testing.T) {
	b := NewBlob(nil)
	oid, err := HashStream(hash.SHA1, b)
	require.NoError(t, err)
	require.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", oid.String())
}

func TestBlobBytesRoundTrip(t *testing.T) {
	content := []byte("some file content\n")
	b := DecodeBlob(content)
	got, err := b.Bytes()
	require.NoError(t, err)
	require.Equal(t, content, got)
}
