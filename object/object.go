// Package object implements canonical parsing and serialization of the
// four git object types — blob, tree, commit, tag — over the hash package's
// OID type. Round-tripping parse→serialize reproduces identical bytes,
// modulo the tree-entry sort normalization spec.md §3 calls out.
package object

import (
	"errors"
	"fmt"

	"github.com/basincore/gitkernel/hash"
)

// Type identifies which of the four object kinds a value holds.
type Type int8

const (
	InvalidType Type = 0
	BlobType    Type = 1
	TreeType    Type = 2
	CommitType  Type = 3
	TagType     Type = 4
)

func (t Type) String() string {
	switch t {
	case BlobType:
		return "blob"
	case TreeType:
		return "tree"
	case CommitType:
		return "commit"
	case TagType:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseType parses the literal git type word used in object headers.
func ParseType(s string) (Type, error) {
	switch s {
	case "blob":
		return BlobType, nil
	case "tree":
		return TreeType, nil
	case "commit":
		return CommitType, nil
	case "tag":
		return TagType, nil
	default:
		return InvalidType, fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

var (
	// ErrInvalidType is returned when a header names an unrecognized
	// object type.
	ErrInvalidType = errors.New("object: invalid type")
	// ErrMalformed is returned when an object's content violates its
	// type's grammar (see spec.md §7 "Malformed-on-disk").
	ErrMalformed = errors.New("object: malformed content")
)

// Object is the common interface every parsed git object satisfies: it
// can report its own OID (once computed) and be serialized back to the
// canonical "<type> <size>\0<content>" byte form used to derive that OID.
type Object interface {
	// Type returns the object's type.
	Type() Type
	// Encode writes the object's content (the bytes hashed under the
	// "<type> <size>\0" header, i.e. everything after the NUL) to w.
	Encode(w ContentWriter) error
}

// ContentWriter is satisfied by *bytes.Buffer and similar sinks; kept as
// a named interface so Encode implementations do not need to import
// bytes directly for their signature.
type ContentWriter interface {
	Write(p []byte) (int, error)
}

// Hash computes the OID of an Object's canonical serialization under the
// given hash algorithm.
func Hash(algo hash.Algorithm, o Object) (hash.OID, error) {
	content, err := Serialize(o)
	if err != nil {
		return hash.OID{}, err
	}
	return hash.HashObject(algo, o.Type().String(), content)
}

// Serialize renders an Object's canonical content bytes (without the
// "<type> <size>\0" header).
func Serialize(o Object) ([]byte, error) {
	buf := new(bufWriter)
	if err := o.Encode(buf); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type bufWriter struct{ b []byte }

func (w *bufWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Sizer is implemented by objects (namely Blob) whose content size is
// known without fully materializing that content, so a hasher can write
// the "<type> <size>\0" header before streaming the body.
type Sizer interface {
	Size() int64
}

// HashStream computes o's OID the same way Hash does, but streams o's
// content straight into the hasher instead of buffering it through
// Serialize first. Used for blobs, whose content may be far larger than
// anything worth holding in memory twice.
func HashStream(algo hash.Algorithm, o Object) (hash.OID, error) {
	sz, ok := o.(Sizer)
	if !ok {
		return Hash(algo, o)
	}
	h, err := hash.NewHasher(algo, o.Type().String(), sz.Size())
	if err != nil {
		return hash.OID{}, err
	}
	if err := o.Encode(h); err != nil {
		return hash.OID{}, err
	}
	return h.Sum()
}
