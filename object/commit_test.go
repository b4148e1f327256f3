package object

import (
	"testing"
	"time"

	"github.com/basincore/gitkernel/hash"
	"github.com/stretchr/testify/require"
)

func treeOID(t *testing.T) hash.OID {
	t.Helper()
	oid, err := hash.FromHex("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	require.NoError(t, err)
	return oid
}

func TestCommitEncodeDecodeRoundTrip(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", -5*3600))
	author := Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: when}
	c := NewCommit(treeOID(t), nil, author, author, "initial commit\n")

	content, err := Serialize(c)
	require.NoError(t, err)

	decoded, err := DecodeCommit(content)
	require.NoError(t, err)
	require.Equal(t, "initial commit\n", decoded.Message)

	tree, err := decoded.TreeOID(hash.SHA1)
	require.NoError(t, err)
	require.True(t, tree.Equal(treeOID(t)))

	got, err := decoded.Author()
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", got.Name)
	require.Equal(t, "ada@example.com", got.Email)
	require.Equal(t, when.Unix(), got.When.Unix())

	reencoded, err := Serialize(decoded)
	require.NoError(t, err)
	require.Equal(t, content, reencoded)
}

func TestCommitParents(t *testing.T) {
	p1 := treeOID(t)
	p2, err := hash.FromHex("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	require.NoError(t, err)

	sig := Signature{Name: "A", Email: "a@example.com", When: time.Unix(1000, 0).UTC()}
	c := NewCommit(treeOID(t), []hash.OID{p1, p2}, sig, sig, "merge\n")

	parents, err := c.ParentOIDs(hash.SHA1)
	require.NoError(t, err)
	require.Len(t, parents, 2)
	require.True(t, parents[0].Equal(p1))
	require.True(t, parents[1].Equal(p2))
}

func TestCommitGPGSignatureRoundTrip(t *testing.T) {
	sig := Signature{Name: "A", Email: "a@example.com", When: time.Unix(1000, 0).UTC()}
	c := NewCommit(treeOID(t), nil, sig, sig, "signed\n")
	c.SetHeader("gpgsig", "-----BEGIN PGP SIGNATURE-----\nline one\nline two\n-----END PGP SIGNATURE-----")

	content, err := Serialize(c)
	require.NoError(t, err)

	decoded, err := DecodeCommit(content)
	require.NoError(t, err)
	gpg, ok := decoded.GPGSignature()
	require.True(t, ok)
	require.Contains(t, gpg, "line one")
	require.Contains(t, gpg, "line two")

	unsigned := new(bufWriter)
	require.NoError(t, decoded.EncodeWithoutSignature(unsigned))
	require.NotContains(t, string(unsigned.b), "PGP SIGNATURE")
}

func TestCommitMalformedMissingBlankLine(t *testing.T) {
	_, err := DecodeCommit([]byte("tree " + treeOID(t).String()))
	require.Error(t, err)
}
