package object

import (
	"testing"

	"github.com/basincore/gitkernel/hash"
	"github.com/stretchr/testify/require"
)

func TestCachePeekDoesNotPromote(t *testing.T) {
	c := NewCache(2)
	a := oidN(1)
	b := oidN(2)
	c.Add(a, NewBlob([]byte("a")))
	c.Add(b, NewBlob([]byte("b")))

	// a is now least-recently-used. Peeking it must not change that.
	_, ok := c.Peek(a)
	require.True(t, ok)

	c.Add(oidN(3), NewBlob([]byte("x")))
	_, ok = c.Get(a)
	require.False(t, ok, "Peek must not have promoted a, so it should have been evicted")
}

func TestCacheGetPromotes(t *testing.T) {
	c := NewCache(2)
	a := oidN(1)
	b := oidN(2)
	c.Add(a, NewBlob([]byte("a")))
	c.Add(b, NewBlob([]byte("b")))

	_, ok := c.Get(a)
	require.True(t, ok)

	c.Add(oidN(3), NewBlob([]byte("x")))
	_, ok = c.Get(b)
	require.False(t, ok, "b should have been evicted since a was promoted")
	_, ok = c.Get(a)
	require.True(t, ok)
}

func TestCacheDefaultSize(t *testing.T) {
	c := NewCache(0)
	require.Equal(t, DefaultCacheSize, c.capacity)
}

func oidN(n byte) hash.OID {
	var b [20]byte
	b[19] = n
	o, _ := hash.FromBytes(hash.SHA1, b[:])
	return o
}
