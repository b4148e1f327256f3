package pack

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// WrittenEntry records where one object ended up in a pack being built,
// and its compressed payload's CRC32 — the two facts BuildIndex needs.
type WrittenEntry struct {
	OID    hash.OID
	CRC32  uint32
	Offset int64
}

// Writer streams a packfile to an underlying io.Writer: a 12-byte
// header, one entry per Put/PutOFSDelta/PutREFDelta call, and a trailing checksum on
// Finish. It tracks each entry's offset and CRC32 so the caller can
// build a matching .idx afterward.
type Writer struct {
	raw     io.Writer
	w       io.Writer
	hw      *hash.StreamHasher
	algo    hash.Algorithm
	offset  int64
	count   uint32
	written []WrittenEntry
}

// NewWriter returns a Writer that will emit count objects to w, and
// immediately writes the packfile header.
func NewWriter(w io.Writer, algo hash.Algorithm, count uint32) (*Writer, error) {
	hw := hash.NewStreamHasher(algo)
	mw := io.MultiWriter(w, hw)
	if err := WriteHeader(mw, count); err != nil {
		return nil, err
	}
	return &Writer{raw: w, w: mw, hw: hw, algo: algo, offset: 12, count: count}, nil
}

// Put writes oid as a whole (non-delta) object of the given type.
func (pw *Writer) Put(oid hash.OID, typ object.Type, content []byte) error {
	et := entryTypeFor(typ)
	if et == 0 {
		return fmt.Errorf("pack: cannot write object type %v", typ)
	}
	return pw.putEntry(oid, EntryHeader{Type: et, Size: int64(len(content))}, content)
}

// PutOFSDelta writes a delta entry against a base at a known earlier
// offset within this same pack.
func (pw *Writer) PutOFSDelta(oid hash.OID, baseOffset int64, delta []byte) error {
	h := EntryHeader{Type: EntryOFSDelta, Size: int64(len(delta)), BaseOffset: pw.offset - baseOffset}
	return pw.putEntry(oid, h, delta)
}

// PutREFDelta writes a delta entry against a base named by OID, which
// may lie outside this pack (a thin pack).
func (pw *Writer) PutREFDelta(oid hash.OID, baseOID hash.OID, delta []byte) error {
	h := EntryHeader{Type: EntryREFDelta, Size: int64(len(delta)), BaseOID: baseOID}
	return pw.putEntry(oid, h, delta)
}

func (pw *Writer) putEntry(oid hash.OID, h EntryHeader, content []byte) error {
	startOffset := pw.offset

	var headerBuf bytes.Buffer
	if err := WriteEntryHeader(&headerBuf, h); err != nil {
		return err
	}
	n, err := pw.w.Write(headerBuf.Bytes())
	if err != nil {
		return err
	}
	pw.offset += int64(n)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(content); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	crc := crc32.ChecksumIEEE(compressed.Bytes())
	cn, err := pw.w.Write(compressed.Bytes())
	if err != nil {
		return err
	}
	pw.offset += int64(cn)

	pw.written = append(pw.written, WrittenEntry{OID: oid, CRC32: crc, Offset: startOffset})
	return nil
}

// Written returns the offset/CRC32 record for every entry written so
// far, suitable for BuildIndex.
func (pw *Writer) Written() []WrittenEntry {
	return append([]WrittenEntry(nil), pw.written...)
}

// Finish writes the trailing pack checksum (a hash over every byte
// written, including the header) and returns it. The trailer itself is
// written only to the underlying writer, not folded into its own hash.
func (pw *Writer) Finish() (hash.OID, error) {
	sum := pw.hw.Sum()
	if _, err := pw.raw.Write(sum.Bytes()); err != nil {
		return hash.OID{}, err
	}
	return sum, nil
}
