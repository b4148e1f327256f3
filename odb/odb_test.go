package odb

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
	"github.com/basincore/gitkernel/pack"
)

func TestReadLooseObject(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)

	oid, err := db.Write(object.BlobType, []byte("hello odb"))
	require.NoError(t, err)

	typ, content, err := db.Read(oid)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, []byte("hello odb"), content)
	assert.True(t, db.Has(oid))
}

func TestReadNotFound(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)

	missing, err := hash.HashObject(hash.SHA1, "blob", []byte("never written"))
	require.NoError(t, err)

	_, _, err = db.Read(missing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, db.Has(missing))
}

func TestReadFromPack(t *testing.T) {
	dir := t.TempDir()
	fs := osfs.New(dir)
	require.NoError(t, fs.MkdirAll(fs.Join("objects", "pack"), 0o755))

	blob := []byte("packed content")
	oid, err := hash.HashObject(hash.SHA1, "blob", blob)
	require.NoError(t, err)

	var buf bytes.Buffer
	pw, err := pack.NewWriter(&buf, hash.SHA1, 1)
	require.NoError(t, err)
	require.NoError(t, pw.Put(oid, object.BlobType, blob))
	checksum, err := pw.Finish()
	require.NoError(t, err)

	var entries []pack.IndexEntry
	for _, w := range pw.Written() {
		entries = append(entries, pack.IndexEntry{OID: w.OID, CRC32: w.CRC32, Offset: uint64(w.Offset)})
	}
	idx := pack.BuildIndex(hash.SHA1, entries, checksum)
	var idxBuf bytes.Buffer
	_, err = pack.WriteIndex(&idxBuf, idx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", "pack", "pack-test.pack"), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", "pack", "pack-test.idx"), idxBuf.Bytes(), 0o644))

	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)
	defer db.Close()

	typ, content, err := db.Read(oid)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, blob, content)
}

func TestResolvePrefixUnique(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)

	oid, err := db.Write(object.BlobType, []byte("unique content for prefix test"))
	require.NoError(t, err)

	got, err := db.ResolvePrefix(oid.String()[:8])
	require.NoError(t, err)
	assert.True(t, got.Equal(oid))
}

func TestResolvePrefixAmbiguous(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)

	// Find two blobs that happen to share a 4-hex-digit prefix by
	// brute-force search over a small counter; this keeps the test
	// deterministic without hand-picking magic byte sequences.
	byPrefix := map[string][]hash.OID{}
	var collidingPrefix string
	for i := 0; i < 20000 && collidingPrefix == ""; i++ {
		content := []byte{byte(i), byte(i >> 8)}
		oid, err := db.Write(object.BlobType, content)
		require.NoError(t, err)
		p := oid.String()[:4]
		byPrefix[p] = append(byPrefix[p], oid)
		if len(byPrefix[p]) >= 2 {
			collidingPrefix = p
		}
	}
	require.NotEmpty(t, collidingPrefix, "expected a 4-hex-digit collision within the sample")

	_, err = db.ResolvePrefix(collidingPrefix)
	var ambErr *ErrAmbiguous
	require.ErrorAs(t, err, &ambErr)
	assert.Equal(t, collidingPrefix, ambErr.Prefix)
	assert.GreaterOrEqual(t, ambErr.Count, 2)
}

func TestResolvePrefixTooShort(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "objects", hash.SHA1, Options{})
	require.NoError(t, err)

	_, err = db.ResolvePrefix("abc")
	assert.Error(t, err)
}

func TestAlternates(t *testing.T) {
	baseDir := t.TempDir()
	baseObjects := filepath.Join(baseDir, "objects")
	require.NoError(t, os.MkdirAll(baseObjects, 0o755))

	baseFS := osfs.New(baseDir)
	baseDB, err := Open(baseFS, "objects", hash.SHA1, Options{})
	require.NoError(t, err)
	sharedOID, err := baseDB.Write(object.BlobType, []byte("shared via alternates"))
	require.NoError(t, err)

	workDir := t.TempDir()
	workObjects := filepath.Join(workDir, "objects")
	require.NoError(t, os.MkdirAll(filepath.Join(workObjects, "info"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(workObjects, "info", "alternates"),
		[]byte(baseObjects+"\n"), 0o644))

	workDB, err := Open(osfs.New(workDir), "objects", hash.SHA1, Options{})
	require.NoError(t, err)
	defer workDB.Close()

	typ, content, err := workDB.Read(sharedOID)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, []byte("shared via alternates"), content)
}

func TestAlternatesCycleRejected(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dirA, "objects", "info"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dirB, "objects", "info"), 0o755))

	require.NoError(t, os.WriteFile(
		filepath.Join(dirA, "objects", "info", "alternates"),
		[]byte(filepath.Join(dirB, "objects")+"\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dirB, "objects", "info", "alternates"),
		[]byte(filepath.Join(dirA, "objects")+"\n"), 0o644))

	_, err := Open(osfs.New(dirA), "objects", hash.SHA1, Options{})
	assert.ErrorIs(t, err, ErrCircularAlternates)
}
