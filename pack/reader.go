package pack

import (
	"errors"
	"fmt"
	"io"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// MaxDeltaChainDepth bounds how many delta applications a single read
// may chain through before giving up, per spec.md §4.4's "512 is the
// safe upper bound".
const MaxDeltaChainDepth = 512

// ErrDeltaChainTooDeep is returned when resolving an object's delta
// chain would exceed MaxDeltaChainDepth, guarding against both
// pathological packs and base cycles.
var ErrDeltaChainTooDeep = errors.New("pack: delta chain too deep")

// ErrObjectNotFound is returned when an offset or OID names no entry in
// the pack (or, for a REF_DELTA base, cannot be resolved by the
// caller-supplied resolver either).
var ErrObjectNotFound = errors.New("pack: object not found")

// BaseResolver is consulted when a REF_DELTA entry's base OID is not
// itself present in the same pack (a "thin pack"). It lets the ODB wire
// in cross-pack and loose-object lookups without this package depending
// on the odb package, per spec.md §4.4's "callback-based resolver"
// requirement.
type BaseResolver func(oid hash.OID) (typ object.Type, content []byte, err error)

// ReaderAt is the random-access surface a Reader needs: packs are read
// by seeking to arbitrary offsets, which a memory-mapped or os.File
// backing satisfies directly.
type ReaderAt interface {
	io.ReaderAt
}

// Reader provides random-access object lookup into one packfile, given
// its parsed index, resolving OFS_DELTA and REF_DELTA chains (the
// latter via an optional external BaseResolver).
type Reader struct {
	ra       ReaderAt
	idx      *Index
	algo     hash.Algorithm
	resolver BaseResolver
	size     int64
}

// NewReader returns a Reader over ra (the full packfile's bytes,
// randomly addressable) sized size bytes, using idx for OID/offset
// lookups. resolver may be nil if the pack is known to be self-contained.
func NewReader(ra ReaderAt, size int64, idx *Index, algo hash.Algorithm, resolver BaseResolver) *Reader {
	return &Reader{ra: ra, idx: idx, algo: algo, resolver: resolver, size: size}
}

// Contains reports whether oid has an entry in this pack's index.
func (r *Reader) Contains(oid hash.OID) bool {
	_, ok := r.idx.Find(oid)
	return ok
}

// ReadByOID resolves oid to its fully-reconstructed type and content,
// recursively applying any delta chain.
func (r *Reader) ReadByOID(oid hash.OID) (object.Type, []byte, error) {
	entry, ok := r.idx.Find(oid)
	if !ok {
		return object.InvalidType, nil, ErrObjectNotFound
	}
	return r.ReadByOffset(int64(entry.Offset))
}

// ReadByOffset resolves the entry at the given byte offset into this
// pack.
func (r *Reader) ReadByOffset(offset int64) (object.Type, []byte, error) {
	return r.readAt(offset, 0, make(map[int64]bool))
}

func (r *Reader) readAt(offset int64, depth int, visiting map[int64]bool) (object.Type, []byte, error) {
	if depth > MaxDeltaChainDepth {
		return object.InvalidType, nil, ErrDeltaChainTooDeep
	}
	if visiting[offset] {
		return object.InvalidType, nil, fmt.Errorf("%w: cycle at offset %d", ErrDeltaChainTooDeep, offset)
	}
	visiting[offset] = true

	sr := io.NewSectionReader(r.ra, offset, r.size-offset)
	cr := newCountingReader(sr)
	h, err := ReadEntryHeader(cr, r.algo, offset)
	if err != nil {
		return object.InvalidType, nil, err
	}

	if !h.Type.IsDelta() {
		typ, _ := h.Type.ObjectType()
		content, err := ReadEntryContent(cr, h.Size)
		if err != nil {
			return object.InvalidType, nil, err
		}
		return typ, content, nil
	}

	deltaStream, err := ReadEntryContent(cr, h.Size)
	if err != nil {
		return object.InvalidType, nil, err
	}

	var baseType object.Type
	var baseContent []byte
	switch h.Type {
	case EntryOFSDelta:
		baseType, baseContent, err = r.readAt(h.BaseOffset, depth+1, visiting)
	case EntryREFDelta:
		if entry, ok := r.idx.Find(h.BaseOID); ok {
			baseType, baseContent, err = r.readAt(int64(entry.Offset), depth+1, visiting)
		} else if r.resolver != nil {
			baseType, baseContent, err = r.resolver(h.BaseOID)
		} else {
			err = fmt.Errorf("%w: ref-delta base %s", ErrObjectNotFound, h.BaseOID)
		}
	}
	if err != nil {
		return object.InvalidType, nil, err
	}

	content, err := ApplyDelta(baseContent, deltaStream)
	if err != nil {
		return object.InvalidType, nil, err
	}
	return baseType, content, nil
}
