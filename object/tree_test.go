package object

import (
	"testing"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
	"github.com/stretchr/testify/require"
)

func oidFor(t *testing.T, n byte) hash.OID {
	t.Helper()
	var b [20]byte
	b[19] = n
	o, err := hash.FromBytes(hash.SHA1, b[:])
	require.NoError(t, err)
	return o
}

func TestTreeSortCanonicalCornerCase(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Name: "foo0", Mode: filemode.Regular, OID: oidFor(t, 1)},
		{Name: "foo", Mode: filemode.Dir, OID: oidFor(t, 2)},
		{Name: "foo.c", Mode: filemode.Regular, OID: oidFor(t, 3)},
		{Name: "foo-bar", Mode: filemode.Regular, OID: oidFor(t, 4)},
	}}
	tr.Sort()

	var names []string
	for _, e := range tr.Entries {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"foo-bar", "foo.c", "foo", "foo0"}, names)
}

func TestTreeSortDirectoryVsFile(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Name: "foo", Mode: filemode.Dir, OID: oidFor(t, 1)},
		{Name: "foo.c", Mode: filemode.Regular, OID: oidFor(t, 2)},
	}}
	tr.Sort()
	require.Equal(t, "foo.c", tr.Entries[0].Name)
	require.Equal(t, "foo", tr.Entries[1].Name)
}

func TestTreeEncodeDecodeRoundTrip(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, OID: oidFor(t, 1)},
		{Name: "b", Mode: filemode.Dir, OID: oidFor(t, 2)},
		{Name: "c.txt", Mode: filemode.Executable, OID: oidFor(t, 3)},
	}}
	require.True(t, tr.IsSorted())

	content, err := Serialize(tr)
	require.NoError(t, err)

	decoded, err := DecodeTree(hash.SHA1, content)
	require.NoError(t, err)
	require.Equal(t, tr.Entries, decoded.Entries)

	reencoded, err := Serialize(decoded)
	require.NoError(t, err)
	require.Equal(t, content, reencoded)
}

func TestTreeEncodeRejectsUnsorted(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Name: "b", Mode: filemode.Regular, OID: oidFor(t, 1)},
		{Name: "a", Mode: filemode.Regular, OID: oidFor(t, 2)},
	}}
	_, err := Serialize(tr)
	require.Error(t, err)
}

func TestTreeFind(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Name: "x", Mode: filemode.Regular, OID: oidFor(t, 9)},
	}}
	e, ok := tr.Find("x")
	require.True(t, ok)
	require.Equal(t, byte(9), e.OID.Bytes()[19])

	_, ok = tr.Find("missing")
	require.False(t, ok)
}
