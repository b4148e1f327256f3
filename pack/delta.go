package pack

import (
	"errors"
	"fmt"
)

// ErrBadDelta is returned when a delta instruction stream is malformed,
// or its resulting size does not match its own declared target size.
var ErrBadDelta = errors.New("pack: malformed delta instruction stream")

// ApplyDelta reconstructs an object's content by applying delta (a
// decoded delta instruction stream, as produced by ReadEntryContent over
// an EntryOFSDelta/EntryREFDelta entry) against base.
//
// The stream begins with two size varints (base size, then target
// size), followed by a sequence of copy and insert instructions:
//   - a byte with the high bit set is a copy instruction: the low 7
//     bits are a presence bitmask selecting which of the following
//     offset (4) and size (3) bytes are present, little-endian, any
//     absent byte treated as zero; size 0 means 0x10000.
//   - a byte with the high bit clear and nonzero is an insert
//     instruction: the byte itself is a length, and that many literal
//     bytes follow in the stream and are appended verbatim.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	baseSize, n, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}
	delta = delta[n:]
	if int64(len(base)) != baseSize {
		return nil, fmt.Errorf("%w: base size mismatch: delta expects %d, got %d", ErrBadDelta, baseSize, len(base))
	}

	targetSize, n, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}
	delta = delta[n:]

	out := make([]byte, 0, targetSize)
	for len(delta) > 0 {
		op := delta[0]
		delta = delta[1:]
		if op&0x80 != 0 {
			var offset, size int
			shift := uint(0)
			for i := 0; i < 4; i++ {
				if op&(1<<i) != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("%w: truncated copy offset", ErrBadDelta)
					}
					offset |= int(delta[0]) << shift
					delta = delta[1:]
				}
				shift += 8
			}
			shift = 0
			for i := 0; i < 3; i++ {
				if op&(1<<(4+i)) != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("%w: truncated copy size", ErrBadDelta)
					}
					size |= int(delta[0]) << shift
					delta = delta[1:]
				}
				shift += 8
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > len(base) {
				return nil, fmt.Errorf("%w: copy [%d:%d] exceeds base length %d", ErrBadDelta, offset, offset+size, len(base))
			}
			out = append(out, base[offset:offset+size]...)
		} else if op != 0 {
			n := int(op)
			if len(delta) < n {
				return nil, fmt.Errorf("%w: truncated insert of %d bytes", ErrBadDelta, n)
			}
			out = append(out, delta[:n]...)
			delta = delta[n:]
		} else {
			return nil, fmt.Errorf("%w: reserved opcode 0", ErrBadDelta)
		}
	}

	if int64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: target size mismatch: expected %d, produced %d", ErrBadDelta, targetSize, len(out))
	}
	return out, nil
}

// decodeDeltaSize reads one of the two little-endian, 7-bits-per-byte
// continuation-encoded size fields at the start of a delta stream.
func decodeDeltaSize(b []byte) (size int64, consumed int, err error) {
	shift := uint(0)
	for i, c := range b {
		size |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			return size, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated size field", ErrBadDelta)
}
