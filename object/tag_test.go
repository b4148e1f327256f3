package object

import (
	"testing"
	"time"

	"github.com/basincore/gitkernel/hash"
	"github.com/stretchr/testify/require"
)

func TestTagEncodeDecodeRoundTrip(t *testing.T) {
	target, err := hash.FromHex("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	require.NoError(t, err)
	tagger := Signature{Name: "Ada", Email: "ada@example.com", When: time.Unix(2000, 0).UTC()}

	tag := NewTag(target, CommitType, "v1.0.0", tagger, "release\n")
	content, err := Serialize(tag)
	require.NoError(t, err)

	decoded, err := DecodeTag(content)
	require.NoError(t, err)

	got, err := decoded.TargetOID(hash.SHA1)
	require.NoError(t, err)
	require.True(t, got.Equal(target))

	typ, err := decoded.TargetType()
	require.NoError(t, err)
	require.Equal(t, CommitType, typ)

	name, err := decoded.Name()
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", name)

	reencoded, err := Serialize(decoded)
	require.NoError(t, err)
	require.Equal(t, content, reencoded)
}
