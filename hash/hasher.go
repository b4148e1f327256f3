package hash

import (
	"hash"
	"strconv"
)

// Hasher computes an OID the way git does: over the canonical header
// "<type> <size>\0" followed by the object content. It supports the
// streaming feed-then-finalize shape spec.md §4.1 requires.
type Hasher struct {
	algo Algorithm
	h    hash.Hash
}

// NewHasher returns a Hasher reset for the given object type and content
// size. objType is the literal git type word ("blob", "tree", "commit",
// "tag").
func NewHasher(algo Algorithm, objType string, size int64) (*Hasher, error) {
	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	hh := &Hasher{algo: algo, h: h}
	hh.writeHeader(objType, size)
	return hh, nil
}

func (h *Hasher) writeHeader(objType string, size int64) {
	h.h.Write([]byte(objType))
	h.h.Write([]byte(" "))
	h.h.Write([]byte(strconv.FormatInt(size, 10)))
	h.h.Write([]byte{0})
}

// Write feeds object content bytes into the hasher.
func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum finalizes the digest and returns the resulting OID. For SHA-1 it
// returns ErrCollisionDetected (alongside a still-computed, but
// untrustworthy, OID) if sha1cd's UBC heuristic fired during hashing.
func (h *Hasher) Sum() (OID, error) {
	sum := h.h.Sum(nil)
	oid, err := FromBytes(h.algo, sum)
	if err != nil {
		return OID{}, err
	}
	if cr, ok := h.h.(collisionReporter); ok && cr.Collision() {
		return oid, ErrCollisionDetected
	}
	return oid, nil
}

// StreamHasher computes a plain digest over raw bytes with no object
// header, the form used for pack and index trailing checksums (a running
// hash over every byte already written to the file).
type StreamHasher struct {
	algo Algorithm
	h    hash.Hash
}

// NewStreamHasher returns a StreamHasher for algo. Unlike Hasher, it
// writes no "<type> <size>\0" preamble; callers needing sha1cd's
// collision heuristic should prefer Hasher/HashObject, since a pack or
// index trailer is not itself a content-addressed object.
func NewStreamHasher(algo Algorithm) *StreamHasher {
	h, err := newHash(algo)
	if err != nil {
		// Both supported algorithms construct unconditionally; newHash only
		// errors for a value outside {SHA1, SHA256}.
		panic(err)
	}
	return &StreamHasher{algo: algo, h: h}
}

// Write feeds raw bytes into the running digest.
func (h *StreamHasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum finalizes and returns the digest as an OID.
func (h *StreamHasher) Sum() OID {
	sum := h.h.Sum(nil)
	oid, err := FromBytes(h.algo, sum)
	if err != nil {
		panic(err)
	}
	return oid
}

// HashObject computes the OID of content as git would: hashing the literal
// byte sequence "<type> <size>\0<content>".
func HashObject(algo Algorithm, objType string, content []byte) (OID, error) {
	h, err := NewHasher(algo, objType, int64(len(content)))
	if err != nil {
		return OID{}, err
	}
	if _, err := h.Write(content); err != nil {
		return OID{}, err
	}
	return h.Sum()
}
