package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HashSuite struct {
	suite.Suite
}

func TestHashSuite(t *testing.T) {
	suite.Run(t, new(HashSuite))
}

func (s *HashSuite) TestEmptyBlob() {
	oid, err := HashObject(SHA1, "blob", nil)
	s.NoError(err)
	s.Equal("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", oid.String())
}

func (s *HashSuite) TestHelloWorldBlob() {
	oid, err := HashObject(SHA1, "blob", []byte("hello world"))
	s.NoError(err)
	s.Equal("95d09f2b10159347eece71399a7e2e907ea3df4f", oid.String())
}

func (s *HashSuite) TestHelloWorldBang() {
	oid, err := HashObject(SHA1, "blob", []byte("Hello, World!\n"))
	s.NoError(err)
	s.Equal("8ab686eafeb1f44702738c8b0f24f2567c36da6d", oid.String())
}

func (s *HashSuite) TestDeterminism() {
	a, err := HashObject(SHA1, "blob", []byte("some content"))
	s.NoError(err)
	b, err := HashObject(SHA1, "blob", []byte("some content"))
	s.NoError(err)
	s.True(a.Equal(b))
}

func (s *HashSuite) TestHexRoundTrip() {
	oid, err := HashObject(SHA1, "blob", []byte("round trip"))
	s.NoError(err)
	parsed, err := FromHex(oid.String())
	s.NoError(err)
	s.True(oid.Equal(parsed))
	s.Equal(strings.ToLower(oid.String()), oid.String()) // lowercase stable
}

func (s *HashSuite) TestFromHexCaseInsensitive() {
	oid, err := FromHex("8AB686EAFEB1F44702738C8B0F24F2567C36DA6D")
	s.NoError(err)
	s.Equal("8ab686eafeb1f44702738c8b0f24f2567c36da6d", oid.String())
}

func (s *HashSuite) TestFromHexOddLength() {
	_, err := FromHex("abc")
	s.Error(err)
}

func (s *HashSuite) TestFromHexBadByte() {
	_, err := FromHex("8ab686eafeb1f44702738c8b0f24f2567c36da6z")
	s.Error(err)
}

func (s *HashSuite) TestSHA256() {
	oid, err := HashObject(SHA256, "blob", []byte("hello world"))
	s.NoError(err)
	s.Equal(64, len(oid.String()))
	s.Equal(SHA256, oid.Algorithm())
}

func (s *HashSuite) TestZero() {
	z := Zero(SHA1)
	s.True(z.IsZero())
	s.Equal("0000000000000000000000000000000000000000", z.String())
}

func (s *HashSuite) TestLoosePath() {
	oid := MustFromHex("8ab686eafeb1f44702738c8b0f24f2567c36da6d")
	s.Equal("8a/b686eafeb1f44702738c8b0f24f2567c36da6d", oid.LoosePath())
}

func MustFromHex(s string) OID {
	o, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return o
}

func TestBuildFanoutRange(t *testing.T) {
	firstBytes := []byte{0x00, 0x00, 0x05, 0x05, 0xff}
	f := BuildFanout(firstBytes)
	start, end := f.Range(0x05)
	require.Equal(t, uint32(2), start)
	require.Equal(t, uint32(4), end)
	require.Equal(t, uint32(5), f.Total())
}

func TestSortedOIDsPrefixSearch(t *testing.T) {
	a := MustFromHex("1111111111111111111111111111111111111111")
	b := MustFromHex("1111111111111111111111111111111111111112")
	c := MustFromHex("2222222222222222222222222222222222222222")
	s := NewSortedOIDs([]OID{c, b, a})

	matches := s.PrefixSearch([]byte{0x11, 0x11})
	assert.Len(t, matches, 2)
	for _, m := range matches {
		assert.True(t, m.HasPrefix([]byte{0x11, 0x11}))
	}

	none := s.PrefixSearch([]byte{0x99})
	assert.Len(t, none, 0)
}

func TestSetAndSort(t *testing.T) {
	a := MustFromHex("1111111111111111111111111111111111111111")
	b := MustFromHex("0000000000000000000000000000000000000000")
	oids := []OID{a, b}
	Sort(oids)
	assert.True(t, oids[0].Equal(b))

	set := NewSet(a)
	assert.True(t, set.Has(a))
	assert.False(t, set.Has(b))
	set.Add(b)
	assert.True(t, set.Has(b))
	set.Remove(b)
	assert.False(t, set.Has(b))
}
