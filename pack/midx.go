package pack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/basincore/gitkernel/hash"
)

// MIDXMagic is the 4-byte signature of a multi-pack-index file.
var MIDXMagic = [4]byte{'M', 'I', 'D', 'X'}

// MIDXVersion is the only multi-pack-index version this package reads
// or writes.
const MIDXVersion = 1

// ErrBadMIDX is returned for a structurally invalid multi-pack-index.
var ErrBadMIDX = errors.New("pack: malformed multi-pack-index")

const (
	chunkPackNames = "PNAM"
	chunkOIDFanout = "OIDF"
	chunkOIDLookup = "OIDL"
	chunkObjects   = "OOFF"
	chunkLargeOffs = "LOFF"
)

// MIDXEntry locates one object across the set of packs a multi-pack-index
// covers: which pack (by index into Packs) and at what byte offset.
type MIDXEntry struct {
	OID      hash.OID
	PackID   uint32
	Offset   uint64
}

// MultiPackIndex is an accelerator indexing objects across several packs
// without per-pack index lookups: one fan-out-sorted OID table, each
// entry naming its owning pack and offset.
type MultiPackIndex struct {
	Algo    hash.Algorithm
	Packs   []string // pack file names, in Packs[PackID] order
	Entries []MIDXEntry
	fanout  *hash.FanoutTable
}

// Find returns the entry for oid, or false if absent from any covered
// pack.
func (m *MultiPackIndex) Find(oid hash.OID) (MIDXEntry, bool) {
	start, end := m.fanout.Range(oid.FanoutByte())
	entries := m.Entries[start:end]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].OID.Compare(oid) >= 0
	})
	if i < len(entries) && entries[i].OID.Equal(oid) {
		return entries[i], true
	}
	return MIDXEntry{}, false
}

// BuildMultiPackIndex merges per-pack indices (named by packNames, in the
// same order) into one covering index. When an OID appears in more than
// one pack (e.g. after a repack leaves the old pack in place), the entry
// from the earliest pack in packNames wins, matching C git's "first pack
// wins" de-duplication.
func BuildMultiPackIndex(algo hash.Algorithm, packNames []string, indices []*Index) *MultiPackIndex {
	seen := make(map[string]int, 1024)
	var entries []MIDXEntry
	for packID, idx := range indices {
		for _, e := range idx.Entries {
			key := e.OID.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = 1
			entries = append(entries, MIDXEntry{OID: e.OID, PackID: uint32(packID), Offset: e.Offset})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OID.Compare(entries[j].OID) < 0 })
	firstBytes := make([]byte, len(entries))
	for i, e := range entries {
		firstBytes[i] = e.OID.FanoutByte()
	}
	return &MultiPackIndex{
		Algo:    algo,
		Packs:   append([]string(nil), packNames...),
		Entries: entries,
		fanout:  hash.BuildFanout(firstBytes),
	}
}

// WriteMultiPackIndex serializes m in a chunked layout modeled on
// spec.md §4.4's MIDX description: a chunk table of (id, offset) pairs
// followed by the chunk payloads themselves (pack names, fan-out, OID
// lookup, object offsets, and a large-offset overflow table for any
// offset that does not fit in 31 bits).
func WriteMultiPackIndex(w io.Writer, m *MultiPackIndex) (hash.OID, error) {
	size := m.Algo.Size()
	n := len(m.Entries)

	var names []byte
	for _, p := range m.Packs {
		names = append(names, []byte(p)...)
		names = append(names, 0)
	}

	fanoutBytes := make([]byte, hash.FanoutSize)
	firstBytes := make([]byte, n)
	for i, e := range m.Entries {
		firstBytes[i] = e.OID.FanoutByte()
	}
	ft := hash.BuildFanout(firstBytes)
	if _, err := ft.WriteTo(sliceWriter{fanoutBytes}); err != nil {
		return hash.OID{}, err
	}

	lookup := make([]byte, 0, n*size)
	for _, e := range m.Entries {
		lookup = append(lookup, e.OID.Bytes()...)
	}

	var large []uint64
	offs := make([]byte, 0, n*8)
	for _, e := range m.Entries {
		var buf [8]byte
		if e.Offset >= largeOffsetFlag {
			idxPos := uint32(len(large)) | largeOffsetFlag
			large = append(large, e.Offset)
			binary.BigEndian.PutUint32(buf[0:4], idxPos)
		} else {
			binary.BigEndian.PutUint32(buf[0:4], uint32(e.Offset))
		}
		binary.BigEndian.PutUint32(buf[4:8], e.PackID)
		offs = append(offs, buf[:]...)
	}
	var largeBytes []byte
	for _, off := range large {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], off)
		largeBytes = append(largeBytes, buf[:]...)
	}

	type chunk struct {
		id   string
		data []byte
	}
	chunks := []chunk{
		{chunkPackNames, names},
		{chunkOIDFanout, fanoutBytes},
		{chunkOIDLookup, lookup},
		{chunkObjects, offs},
	}
	if len(largeBytes) > 0 {
		chunks = append(chunks, chunk{chunkLargeOffs, largeBytes})
	}

	hw := hash.NewStreamHasher(m.Algo)
	mw := io.MultiWriter(w, hw)

	if _, err := mw.Write(MIDXMagic[:]); err != nil {
		return hash.OID{}, err
	}
	if err := writeByte(mw, MIDXVersion); err != nil {
		return hash.OID{}, err
	}
	if err := writeByte(mw, byte(algoID(m.Algo))); err != nil {
		return hash.OID{}, err
	}
	if err := writeByte(mw, byte(len(chunks))); err != nil {
		return hash.OID{}, err
	}
	if err := writeByte(mw, 0); err != nil { // base-midx count, always 0
		return hash.OID{}, err
	}
	if err := writeUint32(mw, uint32(len(m.Packs))); err != nil {
		return hash.OID{}, err
	}

	headerLen := int64(12)
	tableLen := int64(len(chunks)+1) * 12
	offset := headerLen + tableLen
	for _, c := range chunks {
		if _, err := mw.Write([]byte(c.id)); err != nil {
			return hash.OID{}, err
		}
		if err := writeUint64(mw, uint64(offset)); err != nil {
			return hash.OID{}, err
		}
		offset += int64(len(c.data))
	}
	// terminating chunk-table entry: zero id, final offset.
	if _, err := mw.Write([]byte{0, 0, 0, 0}); err != nil {
		return hash.OID{}, err
	}
	if err := writeUint64(mw, uint64(offset)); err != nil {
		return hash.OID{}, err
	}

	for _, c := range chunks {
		if _, err := mw.Write(c.data); err != nil {
			return hash.OID{}, err
		}
	}

	sum := hw.Sum()
	if _, err := w.Write(sum.Bytes()); err != nil {
		return hash.OID{}, err
	}
	return sum, nil
}

func algoID(a hash.Algorithm) int {
	if a == hash.SHA256 {
		return 2
	}
	return 1
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// sliceWriter adapts a fixed-size byte slice to io.Writer for use with
// FanoutTable.WriteTo when the destination is a pre-sized buffer rather
// than a stream.
type sliceWriter struct{ buf []byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	n := copy(s.buf, p)
	return n, nil
}

// ReadMultiPackIndex parses a MIDX file. The OID algorithm is taken from
// the header's hash-id byte (2 selects SHA-256, anything else SHA-1).
func ReadMultiPackIndex(r io.Reader) (*MultiPackIndex, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMIDX, err)
	}
	if hdr[0] != MIDXMagic[0] || hdr[1] != MIDXMagic[1] || hdr[2] != MIDXMagic[2] || hdr[3] != MIDXMagic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrBadMIDX)
	}
	if hdr[4] != MIDXVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadMIDX, hdr[4])
	}
	algo := hash.SHA1
	if hdr[5] == 2 {
		algo = hash.SHA256
	}
	numChunks := int(hdr[6])
	numPacks := binary.BigEndian.Uint32(hdr[8:12])

	type tableEntry struct {
		id     [4]byte
		offset uint64
	}
	table := make([]tableEntry, numChunks+1)
	for i := range table {
		var buf [12]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: chunk table: %v", ErrBadMIDX, err)
		}
		copy(table[i].id[:], buf[0:4])
		table[i].offset = binary.BigEndian.Uint64(buf[4:12])
	}

	chunkData := make(map[string][]byte, numChunks)
	for i := 0; i < numChunks; i++ {
		n := table[i+1].offset - table[i].offset
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", ErrBadMIDX, table[i].id, err)
		}
		chunkData[string(table[i].id[:])] = buf
	}

	names := chunkData[chunkPackNames]
	packs := make([]string, 0, numPacks)
	start := 0
	for i, b := range names {
		if b == 0 {
			packs = append(packs, string(names[start:i]))
			start = i + 1
		}
	}

	fanoutBytes := chunkData[chunkOIDFanout]
	fanout, err := hash.ReadFanout(&sliceReader{fanoutBytes})
	if err != nil {
		return nil, err
	}
	n := int(fanout.Total())

	lookup := chunkData[chunkOIDLookup]
	size := algo.Size()
	oids := make([]hash.OID, n)
	for i := 0; i < n; i++ {
		oid, err := hash.FromBytes(algo, lookup[i*size:(i+1)*size])
		if err != nil {
			return nil, err
		}
		oids[i] = oid
	}

	objOffs := chunkData[chunkObjects]
	large := chunkData[chunkLargeOffs]
	entries := make([]MIDXEntry, n)
	for i := 0; i < n; i++ {
		rec := objOffs[i*8 : i*8+8]
		rawOff := binary.BigEndian.Uint32(rec[0:4])
		packID := binary.BigEndian.Uint32(rec[4:8])
		var off uint64
		if rawOff&largeOffsetFlag != 0 {
			idx := rawOff &^ largeOffsetFlag
			off = binary.BigEndian.Uint64(large[idx*8 : idx*8+8])
		} else {
			off = uint64(rawOff)
		}
		entries[i] = MIDXEntry{OID: oids[i], PackID: packID, Offset: off}
	}

	return &MultiPackIndex{Algo: algo, Packs: packs, Entries: entries, fanout: fanout}, nil
}

type sliceReader struct{ buf []byte }

func (s *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, s.buf)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	s.buf = s.buf[n:]
	return n, nil
}
