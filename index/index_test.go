package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
)

func mustOID(t *testing.T, s string) hash.OID {
	oid, err := hash.FromHex(s)
	require.NoError(t, err)
	return oid
}

func sampleIndex(t *testing.T) *Index {
	return &Index{
		Version: 2,
		Entries: []*Entry{
			{
				Path: "a.txt",
				OID:  mustOID(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"),
				Mode: filemode.Regular,
				Size: 0,
			},
			{
				Path: "dir/b.txt",
				OID:  mustOID(t, "95d09f2b10159347eece71399a7e2e907ea3df4f"),
				Mode: filemode.Executable,
				Size: 11,
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	idx := sampleIndex(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx, hash.SHA1))

	got, err := Decode(bytes.NewReader(buf.Bytes()), hash.SHA1)
	require.NoError(t, err)

	require.Len(t, got.Entries, 2)
	assert.Equal(t, "a.txt", got.Entries[0].Path)
	assert.Equal(t, "dir/b.txt", got.Entries[1].Path)
	assert.Equal(t, idx.Entries[0].OID, got.Entries[0].OID)
	assert.Equal(t, filemode.Executable, got.Entries[1].Mode)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("XXXX\x00\x00\x00\x02\x00\x00\x00\x00")), hash.SHA1)
	assert.Error(t, err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(indexSignature[:])
	require.NoError(t, writeUint32(&buf, 5))
	require.NoError(t, writeUint32(&buf, 0))
	_, err := Decode(&buf, hash.SHA1)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEntryLookupAndOrdering(t *testing.T) {
	idx := sampleIndex(t)
	idx.Sort()

	e, err := idx.Entry("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Path)

	_, err = idx.Entry("missing.txt")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestConflictResolution(t *testing.T) {
	idx := &Index{Version: 2}
	base := mustOID(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	ours := mustOID(t, "95d09f2b10159347eece71399a7e2e907ea3df4f")
	theirs := mustOID(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d")

	idx.Add(&Entry{Path: "c.txt", Stage: Ancestor, OID: base, Mode: filemode.Regular})
	idx.Add(&Entry{Path: "c.txt", Stage: Ours, OID: ours, Mode: filemode.Regular})
	idx.Add(&Entry{Path: "c.txt", Stage: Theirs, OID: theirs, Mode: filemode.Regular})

	assert.True(t, idx.Conflicted("c.txt"))
	assert.Equal(t, []string{"c.txt"}, idx.ConflictedPaths())

	idx.Resolve("c.txt", &Entry{Path: "c.txt", OID: ours, Mode: filemode.Regular})

	assert.False(t, idx.Conflicted("c.txt"))
	resolved, err := idx.Entry("c.txt")
	require.NoError(t, err)
	assert.Equal(t, Merged, resolved.Stage)
	assert.Equal(t, ours, resolved.OID)

	require.NotNil(t, idx.ResolveUndo)
	require.Len(t, idx.ResolveUndo.Entries, 1)
	assert.Equal(t, base, idx.ResolveUndo.Entries[0].Stages[Ancestor].OID)
}

func TestTreeCacheInvalidate(t *testing.T) {
	idx := &Index{
		Version: 2,
		Cache: &TreeCache{Entries: []TreeCacheEntry{
			{Path: "", EntryCount: 2, SubtreeCount: 1},
			{Path: "dir", EntryCount: 1, SubtreeCount: 0},
		}},
	}
	idx.Invalidate("dir/b.txt")
	assert.Equal(t, -1, idx.Cache.Entries[0].EntryCount)
	assert.Equal(t, -1, idx.Cache.Entries[1].EntryCount)
}

func TestTreeCacheExtensionRoundTrip(t *testing.T) {
	idx := sampleIndex(t)
	idx.Cache = &TreeCache{Entries: []TreeCacheEntry{
		{Path: "", EntryCount: 2, SubtreeCount: 0, OID: mustOID(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d")},
	}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx, hash.SHA1))

	got, err := Decode(bytes.NewReader(buf.Bytes()), hash.SHA1)
	require.NoError(t, err)
	require.NotNil(t, got.Cache)
	require.Len(t, got.Cache.Entries, 1)
	assert.Equal(t, 2, got.Cache.Entries[0].EntryCount)
	assert.Equal(t, idx.Cache.Entries[0].OID, got.Cache.Entries[0].OID)
}
