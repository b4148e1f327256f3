// Package pack implements git's packfile format: the entry stream,
// OFS_DELTA/REF_DELTA delta encoding, pack index (v1 read-only, v2
// read/write), reverse index, and multi-pack-index.
package pack

import (
	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// EntryType is a packfile entry's type tag, a strict superset of
// object.Type adding the two delta encodings.
type EntryType uint8

const (
	_ EntryType = iota
	EntryCommit
	EntryTree
	EntryBlob
	EntryTag
	_ // 5 is reserved
	EntryOFSDelta
	EntryREFDelta
)

func (t EntryType) String() string {
	switch t {
	case EntryCommit:
		return "commit"
	case EntryTree:
		return "tree"
	case EntryBlob:
		return "blob"
	case EntryTag:
		return "tag"
	case EntryOFSDelta:
		return "ofs-delta"
	case EntryREFDelta:
		return "ref-delta"
	default:
		return "unknown"
	}
}

// IsDelta reports whether t is one of the two delta encodings.
func (t EntryType) IsDelta() bool {
	return t == EntryOFSDelta || t == EntryREFDelta
}

// ObjectType converts a non-delta EntryType to its object.Type.
func (t EntryType) ObjectType() (object.Type, bool) {
	switch t {
	case EntryCommit:
		return object.CommitType, true
	case EntryTree:
		return object.TreeType, true
	case EntryBlob:
		return object.BlobType, true
	case EntryTag:
		return object.TagType, true
	default:
		return object.InvalidType, false
	}
}

func entryTypeFor(t object.Type) EntryType {
	switch t {
	case object.CommitType:
		return EntryCommit
	case object.TreeType:
		return EntryTree
	case object.BlobType:
		return EntryBlob
	case object.TagType:
		return EntryTag
	default:
		return 0
	}
}

// EntryHeader is a packfile entry's parsed header: its type, the size of
// its *inflated* content (for non-delta entries) or its *inflated delta
// instruction stream* (for delta entries), and, for delta entries, the
// base it applies against.
type EntryHeader struct {
	Type EntryType
	Size int64

	// BaseOffset is set for EntryOFSDelta. After ReadEntryHeader, it is
	// the base object's resolved absolute offset within the pack. When
	// constructing an EntryHeader to pass to WriteEntryHeader, set it to
	// the *encoded distance* (this entry's offset minus the base's
	// offset) instead — Writer.PutOFSDelta performs that conversion for
	// callers working with absolute offsets.
	BaseOffset int64
	// BaseOID is set for EntryREFDelta: the base object identified by
	// content hash, possibly outside this pack (a "thin pack").
	BaseOID hash.OID
}
