// Package hash implements object-id hashing for the object-storage core:
// SHA-1 (with collision-attack detection) and SHA-256 digests, the tagged
// ObjectID type, hexadecimal codec, and the pack fan-out table.
package hash

import (
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/pjbgf/sha1cd"
)

// Algorithm identifies which digest function produced an OID.
type Algorithm uint8

const (
	// SHA1 is the original, still-default git object format.
	SHA1 Algorithm = iota
	// SHA256 is the newer object format (`--object-format=sha256`).
	SHA256
)

const (
	// SHA1Size is the number of raw bytes in a SHA-1 digest.
	SHA1Size = 20
	// SHA1HexSize is the number of hex characters in a SHA-1 digest.
	SHA1HexSize = SHA1Size * 2
	// SHA256Size is the number of raw bytes in a SHA-256 digest.
	SHA256Size = 32
	// SHA256HexSize is the number of hex characters in a SHA-256 digest.
	SHA256HexSize = SHA256Size * 2
)

// ErrUnsupportedAlgorithm is returned when an Algorithm value outside
// {SHA1, SHA256} is used.
var ErrUnsupportedAlgorithm = errors.New("hash: unsupported algorithm")

// Size returns the number of raw digest bytes for the algorithm.
func (a Algorithm) Size() int {
	if a == SHA256 {
		return SHA256Size
	}
	return SHA1Size
}

// HexSize returns the number of hex characters for the algorithm.
func (a Algorithm) HexSize() int {
	return a.Size() * 2
}

// FormatID is the 4-byte on-disk format identifier (used by commit-graph
// and multi-pack-index chunk headers to record which algorithm a file was
// built with).
func (a Algorithm) FormatID() [4]byte {
	if a == SHA256 {
		return [4]byte{'s', '2', '5', '6'}
	}
	return [4]byte{'s', 'h', 'a', '1'}
}

func (a Algorithm) String() string {
	if a == SHA256 {
		return "sha256"
	}
	return "sha1"
}

// newHash returns a fresh hash.Hash for the algorithm. SHA-1 is backed by
// sha1cd, which augments the standard algorithm with the SHAttered/UBC
// collision-detection heuristic described in spec.md §4.1.
func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1cd.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, a)
	}
}

// collisionReporter is implemented by sha1cd's hash.Hash. It is checked via
// a structural type assertion so this package does not depend on an
// internal/unexported sha1cd type name.
type collisionReporter interface {
	Collision() bool
}

// ErrCollisionDetected is returned by Hasher.Sum when the underlying SHA-1
// implementation reports that the input triggered its collision-attack
// heuristic (SHAttered / shambles-style counter-cryptanalysis). The digest
// must not be trusted as a unique object identifier in that case.
var ErrCollisionDetected = errors.New("hash: SHA-1 collision attack detected")

// crypto.Hash registrations, exposed so callers can request a digest via
// the standard library's algorithm-agnostic API if they need to.
func init() {
	crypto.RegisterHash(crypto.SHA1, sha1cd.New)
}
