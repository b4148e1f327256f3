package pack

import (
	"errors"
	"fmt"
	"io"

	"github.com/basincore/gitkernel/hash"
)

// ErrChecksumMismatch is returned by VerifyChecksum when a file's
// trailing hash does not match the hash of its own preceding content.
var ErrChecksumMismatch = errors.New("pack: checksum mismatch")

// VerifyChecksum rehashes every byte of r except the final algo-sized
// trailer and compares it against that trailer, the structural check
// spec.md §4.4 calls "verify_checksum" and §8 property 6 requires of
// every pack this package writes.
func VerifyChecksum(r io.ReaderAt, size int64, algo hash.Algorithm) error {
	trailerSize := int64(algo.Size())
	if size < trailerSize {
		return fmt.Errorf("%w: file too short", ErrChecksumMismatch)
	}
	hw := hash.NewStreamHasher(algo)
	if _, err := io.Copy(hw, io.NewSectionReader(r, 0, size-trailerSize)); err != nil {
		return err
	}
	got := hw.Sum()

	trailer := make([]byte, trailerSize)
	if _, err := r.ReadAt(trailer, size-trailerSize); err != nil {
		return err
	}
	want, err := hash.FromBytes(algo, trailer)
	if err != nil {
		return err
	}
	if !got.Equal(want) {
		return fmt.Errorf("%w: computed %s, trailer says %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

// VerifyObject rehashes a fully-resolved object's (type, content) pair
// and confirms it matches oid, the per-object half of spec.md §7's
// "OID mismatch on read-verified" corruption check, reusable by pack
// readers after delta resolution.
func VerifyObject(algo hash.Algorithm, oid hash.OID, objType string, content []byte) error {
	got, err := hash.HashObject(algo, objType, content)
	if err != nil {
		return err
	}
	if !got.Equal(oid) {
		return fmt.Errorf("%w: %s does not match computed %s", ErrChecksumMismatch, oid, got)
	}
	return nil
}
