package pack

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/basincore/gitkernel/hash"
)

// IdxMagic is the 4-byte signature distinguishing a version-2+ pack
// index from the headerless version-1 layout.
var IdxMagic = [4]byte{0xff, 0x74, 0x4f, 0x63}

// IdxVersion2 is the index version this package writes, and the
// preferred version for reading.
const IdxVersion2 = 2

// largeOffsetFlag marks a 32-bit offset slot as an escape into the
// secondary 64-bit offset table, per spec.md §4.4.
const largeOffsetFlag = 1 << 31

// ErrBadIndex is returned for a structurally invalid pack index: bad
// magic (for a file claiming v2+), bad fan-out, or a truncated table.
var ErrBadIndex = errors.New("pack: malformed index")

// IndexEntry is one object's record in a pack index: its OID, the CRC32
// of its compressed on-disk bytes, and its byte offset into the pack.
type IndexEntry struct {
	OID    hash.OID
	CRC32  uint32
	Offset uint64
}

// Index is an in-memory pack index (v1 or v2), sorted ascending by OID,
// supporting fan-out-accelerated exact and prefix lookups.
type Index struct {
	Version          int
	Algo             hash.Algorithm
	Entries          []IndexEntry
	PackChecksum     hash.OID
	IdxChecksum      hash.OID
	fanout           *hash.FanoutTable
}

// Find returns the entry for oid, or false if absent.
func (idx *Index) Find(oid hash.OID) (IndexEntry, bool) {
	start, end := idx.fanout.Range(oid.FanoutByte())
	entries := idx.Entries[start:end]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].OID.Compare(oid) >= 0
	})
	if i < len(entries) && entries[i].OID.Equal(oid) {
		return entries[i], true
	}
	return IndexEntry{}, false
}

// FindPrefix returns every entry whose OID begins with the raw bytes in
// prefix (already hex-decoded by the caller, which also knows how many
// hex digits were significant in the last, possibly partial, byte — so
// this operates at whole-byte granularity and callers refine the final
// nibble themselves via OID.String()).
func (idx *Index) FindPrefix(firstByte byte, prefix []byte) []IndexEntry {
	start, end := idx.fanout.Range(firstByte)
	entries := idx.Entries[start:end]
	i := sort.Search(len(entries), func(i int) bool {
		return bytesCompareOID(entries[i].OID, prefix) >= 0
	})
	var out []IndexEntry
	for ; i < len(entries); i++ {
		if !hasOIDPrefix(entries[i].OID, prefix) {
			break
		}
		out = append(out, entries[i])
	}
	return out
}

func bytesCompareOID(o hash.OID, prefix []byte) int {
	b := o.Bytes()
	if len(b) > len(prefix) {
		b = b[:len(prefix)]
	}
	for i := range b {
		if b[i] != prefix[i] {
			if b[i] < prefix[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func hasOIDPrefix(o hash.OID, prefix []byte) bool {
	return o.HasPrefix(prefix)
}

// ReadIndex parses a pack index from r, dispatching on version: a
// version-1 index has no magic (its first four bytes are the first
// fan-out entry), a version-2+ index begins with IdxMagic.
func ReadIndex(r io.Reader, algo hash.Algorithm) (*Index, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadIndex, err)
	}
	if peek[0] == IdxMagic[0] && peek[1] == IdxMagic[1] && peek[2] == IdxMagic[2] && peek[3] == IdxMagic[3] {
		return readIndexV2(br, algo)
	}
	return readIndexV1(br, algo)
}

func readIndexV1(r io.Reader, algo hash.Algorithm) (*Index, error) {
	fanout, err := hash.ReadFanout(r)
	if err != nil {
		return nil, err
	}
	n := fanout.Total()
	entries := make([]IndexEntry, n)
	size := algo.Size()
	for i := uint32(0); i < n; i++ {
		var offBuf [4]byte
		if _, err := io.ReadFull(r, offBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d offset: %v", ErrBadIndex, i, err)
		}
		raw := make([]byte, size)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: entry %d oid: %v", ErrBadIndex, i, err)
		}
		oid, err := hash.FromBytes(algo, raw)
		if err != nil {
			return nil, err
		}
		entries[i] = IndexEntry{OID: oid, Offset: uint64(binary.BigEndian.Uint32(offBuf[:]))}
	}
	packSum, idxSum, err := readTrailingChecksums(r, algo)
	if err != nil {
		return nil, err
	}
	return &Index{Version: 1, Algo: algo, Entries: entries, fanout: fanout, PackChecksum: packSum, IdxChecksum: idxSum}, nil
}

func readIndexV2(r io.Reader, algo hash.Algorithm) (*Index, error) {
	var magicVer [8]byte
	if _, err := io.ReadFull(r, magicVer[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadIndex, err)
	}
	version := binary.BigEndian.Uint32(magicVer[4:8])
	if version < 2 {
		return nil, fmt.Errorf("%w: version %d", ErrBadIndex, version)
	}
	fanout, err := hash.ReadFanout(r)
	if err != nil {
		return nil, err
	}
	n := fanout.Total()
	size := algo.Size()

	oids := make([]hash.OID, n)
	for i := range oids {
		raw := make([]byte, size)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: oid %d: %v", ErrBadIndex, i, err)
		}
		oid, err := hash.FromBytes(algo, raw)
		if err != nil {
			return nil, err
		}
		oids[i] = oid
	}

	crcs := make([]uint32, n)
	for i := range crcs {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: crc32 %d: %v", ErrBadIndex, i, err)
		}
		crcs[i] = binary.BigEndian.Uint32(buf[:])
	}

	off32 := make([]uint32, n)
	var largeCount int
	for i := range off32 {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: offset %d: %v", ErrBadIndex, i, err)
		}
		off32[i] = binary.BigEndian.Uint32(buf[:])
		if off32[i]&largeOffsetFlag != 0 {
			largeCount++
		}
	}

	off64 := make([]uint64, largeCount)
	for i := range off64 {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: large offset %d: %v", ErrBadIndex, i, err)
		}
		off64[i] = binary.BigEndian.Uint64(buf[:])
	}

	entries := make([]IndexEntry, n)
	for i := range entries {
		off := uint64(off32[i])
		if off32[i]&largeOffsetFlag != 0 {
			idx := off32[i] &^ largeOffsetFlag
			if int(idx) >= len(off64) {
				return nil, fmt.Errorf("%w: large offset index %d out of range", ErrBadIndex, idx)
			}
			off = off64[idx]
		}
		entries[i] = IndexEntry{OID: oids[i], CRC32: crcs[i], Offset: off}
	}

	packSum, idxSum, err := readTrailingChecksums(r, algo)
	if err != nil {
		return nil, err
	}
	return &Index{Version: int(version), Algo: algo, Entries: entries, fanout: fanout, PackChecksum: packSum, IdxChecksum: idxSum}, nil
}

func readTrailingChecksums(r io.Reader, algo hash.Algorithm) (pack, idx hash.OID, err error) {
	size := algo.Size()
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return hash.OID{}, hash.OID{}, fmt.Errorf("%w: pack checksum: %v", ErrBadIndex, err)
	}
	pack, err = hash.FromBytes(algo, raw)
	if err != nil {
		return hash.OID{}, hash.OID{}, err
	}
	raw2 := make([]byte, size)
	if _, err := io.ReadFull(r, raw2); err != nil {
		return hash.OID{}, hash.OID{}, fmt.Errorf("%w: idx checksum: %v", ErrBadIndex, err)
	}
	idx, err = hash.FromBytes(algo, raw2)
	if err != nil {
		return hash.OID{}, hash.OID{}, err
	}
	return pack, idx, nil
}

// BuildIndex constructs an in-memory Index (v2) from a set of entries and
// the pack's trailing checksum. Entries need not be pre-sorted.
func BuildIndex(algo hash.Algorithm, entries []IndexEntry, packChecksum hash.OID) *Index {
	sorted := append([]IndexEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OID.Compare(sorted[j].OID) < 0 })
	firstBytes := make([]byte, len(sorted))
	for i, e := range sorted {
		firstBytes[i] = e.OID.FanoutByte()
	}
	return &Index{
		Version:      IdxVersion2,
		Algo:         algo,
		Entries:      sorted,
		fanout:       hash.BuildFanout(firstBytes),
		PackChecksum: packChecksum,
	}
}

// WriteIndex serializes idx in version-2 format to w, computing and
// recording the trailing index checksum (a hash over every byte already
// written). The caller is responsible for having set PackChecksum.
func WriteIndex(w io.Writer, idx *Index) (hash.OID, error) {
	hw := hash.NewStreamHasher(idx.Algo)
	mw := io.MultiWriter(w, hw)

	if _, err := mw.Write(IdxMagic[:]); err != nil {
		return hash.OID{}, err
	}
	if err := writeUint32(mw, IdxVersion2); err != nil {
		return hash.OID{}, err
	}

	fanout := idx.fanoutTable()
	if _, err := fanout.WriteTo(mw); err != nil {
		return hash.OID{}, err
	}
	for _, e := range idx.Entries {
		if _, err := mw.Write(e.OID.Bytes()); err != nil {
			return hash.OID{}, err
		}
	}
	for _, e := range idx.Entries {
		if err := writeUint32(mw, e.CRC32); err != nil {
			return hash.OID{}, err
		}
	}

	var large []uint64
	for _, e := range idx.Entries {
		if e.Offset >= largeOffsetFlag {
			idxPos := uint32(len(large)) | largeOffsetFlag
			large = append(large, e.Offset)
			if err := writeUint32(mw, idxPos); err != nil {
				return hash.OID{}, err
			}
			continue
		}
		if err := writeUint32(mw, uint32(e.Offset)); err != nil {
			return hash.OID{}, err
		}
	}
	for _, off := range large {
		if err := writeUint64(mw, off); err != nil {
			return hash.OID{}, err
		}
	}

	if _, err := mw.Write(idx.PackChecksum.Bytes()); err != nil {
		return hash.OID{}, err
	}
	sum := hw.Sum()
	if _, err := w.Write(sum.Bytes()); err != nil {
		return hash.OID{}, err
	}
	return sum, nil
}

func (idx *Index) fanoutTable() *hash.FanoutTable {
	if idx.fanout != nil {
		return idx.fanout
	}
	firstBytes := make([]byte, len(idx.Entries))
	for i, e := range idx.Entries {
		firstBytes[i] = e.OID.FanoutByte()
	}
	idx.fanout = hash.BuildFanout(firstBytes)
	return idx.fanout
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
