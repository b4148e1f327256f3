package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

func TestEntryHeaderRoundTrip(t *testing.T) {
	cases := []EntryHeader{
		{Type: EntryBlob, Size: 14},
		{Type: EntryCommit, Size: 0},
		{Type: EntryTree, Size: 1 << 20},
		{Type: EntryOFSDelta, Size: 42, BaseOffset: 5000},
	}
	for _, h := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteEntryHeader(&buf, h))
		cr := newCountingReader(&buf)
		got, err := ReadEntryHeader(cr, hash.SHA1, 100000)
		require.NoError(t, err)
		assert.Equal(t, h.Type, got.Type)
		assert.Equal(t, h.Size, got.Size)
		if h.Type == EntryOFSDelta {
			// WriteEntryHeader's BaseOffset input is the encoded distance;
			// ReadEntryHeader resolves it against the entry's own offset
			// into the base's absolute offset, per EntryHeader's doc.
			assert.Equal(t, int64(100000)-h.BaseOffset, got.BaseOffset)
		}
	}
}

func TestEntryHeaderRefDeltaRoundTrip(t *testing.T) {
	base, err := hash.HashObject(hash.SHA1, "blob", []byte("base content"))
	require.NoError(t, err)
	h := EntryHeader{Type: EntryREFDelta, Size: 10, BaseOID: base}

	var buf bytes.Buffer
	require.NoError(t, WriteEntryHeader(&buf, h))
	cr := newCountingReader(&buf)
	got, err := ReadEntryHeader(cr, hash.SHA1, 0)
	require.NoError(t, err)
	assert.True(t, base.Equal(got.BaseOID))
}

func TestDeltaRoundTrip(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog, repeatedly, many times over")
	target := []byte("the quick brown FOX jumps over the lazy dog, repeatedly, many more times over and over")

	delta := EncodeDelta(base, target)
	got, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestDeltaEmptyTarget(t *testing.T) {
	base := []byte("hello")
	delta := EncodeDelta(base, nil)
	got, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndexV2RoundTrip(t *testing.T) {
	oid1, _ := hash.HashObject(hash.SHA1, "blob", []byte("one"))
	oid2, _ := hash.HashObject(hash.SHA1, "blob", []byte("two"))
	oid3, _ := hash.HashObject(hash.SHA1, "blob", []byte("three"))
	packSum, _ := hash.HashObject(hash.SHA1, "blob", []byte("pack checksum stand-in"))

	entries := []IndexEntry{
		{OID: oid1, CRC32: 111, Offset: 12},
		{OID: oid2, CRC32: 222, Offset: 5_000_000_000},
		{OID: oid3, CRC32: 333, Offset: 999},
	}
	idx := BuildIndex(hash.SHA1, entries, packSum)

	var buf bytes.Buffer
	_, err := WriteIndex(&buf, idx)
	require.NoError(t, err)

	got, err := ReadIndex(bytes.NewReader(buf.Bytes()), hash.SHA1)
	require.NoError(t, err)
	require.Len(t, got.Entries, 3)

	for _, e := range entries {
		found, ok := got.Find(e.OID)
		require.True(t, ok)
		assert.Equal(t, e.Offset, found.Offset)
		assert.Equal(t, e.CRC32, found.CRC32)
	}
}

func TestIndexFindMissing(t *testing.T) {
	oid1, _ := hash.HashObject(hash.SHA1, "blob", []byte("one"))
	idx := BuildIndex(hash.SHA1, []IndexEntry{{OID: oid1, Offset: 12}}, hash.Zero(hash.SHA1))
	missing, _ := hash.HashObject(hash.SHA1, "blob", []byte("missing"))
	_, ok := idx.Find(missing)
	assert.False(t, ok)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	blobOID, err := hash.HashObject(hash.SHA1, "blob", []byte("Hello, World!\n"))
	require.NoError(t, err)

	var packBuf bytes.Buffer
	pw, err := NewWriter(&packBuf, hash.SHA1, 1)
	require.NoError(t, err)
	require.NoError(t, pw.Put(blobOID, object.BlobType, []byte("Hello, World!\n")))
	packChecksum, err := pw.Finish()
	require.NoError(t, err)

	entries := []IndexEntry{}
	for _, w := range pw.Written() {
		entries = append(entries, IndexEntry{OID: w.OID, CRC32: w.CRC32, Offset: uint64(w.Offset)})
	}
	idx := BuildIndex(hash.SHA1, entries, packChecksum)

	ra := bytes.NewReader(packBuf.Bytes())
	reader := NewReader(ra, int64(packBuf.Len()), idx, hash.SHA1, nil)

	typ, content, err := reader.ReadByOID(blobOID)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, "Hello, World!\n", string(content))

	require.NoError(t, VerifyChecksum(ra, int64(packBuf.Len()), hash.SHA1))
}

func TestWriterOFSDeltaRoundTrip(t *testing.T) {
	base := bytes.Repeat([]byte("base content line\n"), 20)
	target := append(append([]byte{}, base...), []byte("appended tail\n")...)

	baseOID, err := hash.HashObject(hash.SHA1, "blob", base)
	require.NoError(t, err)
	targetOID, err := hash.HashObject(hash.SHA1, "blob", target)
	require.NoError(t, err)

	var packBuf bytes.Buffer
	pw, err := NewWriter(&packBuf, hash.SHA1, 2)
	require.NoError(t, err)
	require.NoError(t, pw.Put(baseOID, object.BlobType, base))
	written := pw.Written()
	baseEntryOffset := written[0].Offset

	delta := EncodeDelta(base, target)
	require.NoError(t, pw.PutOFSDelta(targetOID, baseEntryOffset, delta))

	packChecksum, err := pw.Finish()
	require.NoError(t, err)

	var entries []IndexEntry
	for _, w := range pw.Written() {
		entries = append(entries, IndexEntry{OID: w.OID, CRC32: w.CRC32, Offset: uint64(w.Offset)})
	}
	idx := BuildIndex(hash.SHA1, entries, packChecksum)

	ra := bytes.NewReader(packBuf.Bytes())
	reader := NewReader(ra, int64(packBuf.Len()), idx, hash.SHA1, nil)

	typ, content, err := reader.ReadByOID(targetOID)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, target, content)
}

func TestGeneratePackAndIndex(t *testing.T) {
	var sources []Source
	for _, s := range [][]byte{[]byte("alpha"), []byte("beta"), []byte("alpha beta gamma delta")} {
		oid, err := hash.HashObject(hash.SHA1, "blob", s)
		require.NoError(t, err)
		sources = append(sources, Source{OID: oid, Type: object.BlobType, Content: s})
	}

	var buf bytes.Buffer
	packChecksum, written, err := GeneratePack(&buf, hash.SHA1, sources, DefaultGenerateOptions)
	require.NoError(t, err)

	var entries []IndexEntry
	for _, w := range written {
		entries = append(entries, IndexEntry{OID: w.OID, CRC32: w.CRC32, Offset: uint64(w.Offset)})
	}
	idx := BuildIndex(hash.SHA1, entries, packChecksum)

	ra := bytes.NewReader(buf.Bytes())
	reader := NewReader(ra, int64(buf.Len()), idx, hash.SHA1, nil)
	for _, src := range sources {
		typ, content, err := reader.ReadByOID(src.OID)
		require.NoError(t, err)
		assert.Equal(t, src.Type, typ)
		assert.Equal(t, src.Content, content)
	}

	require.NoError(t, VerifyChecksum(ra, int64(buf.Len()), hash.SHA1))
}

func TestBuildReverseIndexOrdersByOffset(t *testing.T) {
	oid1, _ := hash.HashObject(hash.SHA1, "blob", []byte("one"))
	oid2, _ := hash.HashObject(hash.SHA1, "blob", []byte("two"))
	entries := []IndexEntry{
		{OID: oid1, Offset: 500},
		{OID: oid2, Offset: 12},
	}
	idx := BuildIndex(hash.SHA1, entries, hash.Zero(hash.SHA1))
	rx := BuildReverseIndex(idx)
	// oid2 has the smaller offset, so it must come first positionally.
	require.Equal(t, uint32(1), rx.IdxPositions[0])
}

func TestMultiPackIndexRoundTrip(t *testing.T) {
	oid1, _ := hash.HashObject(hash.SHA1, "blob", []byte("one"))
	oid2, _ := hash.HashObject(hash.SHA1, "blob", []byte("two"))
	idxA := BuildIndex(hash.SHA1, []IndexEntry{{OID: oid1, Offset: 10}}, hash.Zero(hash.SHA1))
	idxB := BuildIndex(hash.SHA1, []IndexEntry{{OID: oid2, Offset: 20}}, hash.Zero(hash.SHA1))

	midx := BuildMultiPackIndex(hash.SHA1, []string{"pack-a.pack", "pack-b.pack"}, []*Index{idxA, idxB})

	var buf bytes.Buffer
	_, err := WriteMultiPackIndex(&buf, midx)
	require.NoError(t, err)

	got, err := ReadMultiPackIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, []string{"pack-a.pack", "pack-b.pack"}, got.Packs)

	e1, ok := got.Find(oid1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), e1.PackID)
	e2, ok := got.Find(oid2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), e2.PackID)
}

func TestDeltaChainTooDeep(t *testing.T) {
	base := []byte("seed")
	oid0, err := hash.HashObject(hash.SHA1, "blob", base)
	require.NoError(t, err)

	var packBuf bytes.Buffer
	count := uint32(MaxDeltaChainDepth + 5)
	pw, err := NewWriter(&packBuf, hash.SHA1, count)
	require.NoError(t, err)
	require.NoError(t, pw.Put(oid0, object.BlobType, base))

	prev := base
	var lastOID hash.OID
	for i := 0; i < int(count)-1; i++ {
		next := append(append([]byte{}, prev...), byte('a'+i%26))
		oid, err := hash.HashObject(hash.SHA1, "blob", next)
		require.NoError(t, err)
		written := pw.Written()
		baseOffset := written[len(written)-1].Offset
		delta := EncodeDelta(prev, next)
		require.NoError(t, pw.PutOFSDelta(oid, baseOffset, delta))
		prev = next
		lastOID = oid
	}
	packChecksum, err := pw.Finish()
	require.NoError(t, err)

	var entries []IndexEntry
	for _, w := range pw.Written() {
		entries = append(entries, IndexEntry{OID: w.OID, CRC32: w.CRC32, Offset: uint64(w.Offset)})
	}
	idx := BuildIndex(hash.SHA1, entries, packChecksum)
	ra := bytes.NewReader(packBuf.Bytes())
	reader := NewReader(ra, int64(packBuf.Len()), idx, hash.SHA1, nil)

	_, _, err = reader.ReadByOID(lastOID)
	require.ErrorIs(t, err, ErrDeltaChainTooDeep)
}
