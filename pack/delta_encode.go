package pack

const (
	// blockSize is the length of the rolling hash window used to find
	// candidate copy sources in the base, matching git's own
	// diff-delta.c block size.
	blockSize = 16
	// maxCopySize is the largest single copy instruction's length; git
	// caps it at 0x10000 so the size field's "0 means 0x10000" escape
	// never needs a larger encoding.
	maxCopySize = 0x10000
	// minCopySize below which an insert is cheaper than the instruction
	// overhead of a copy.
	minCopySize = 4
)

// EncodeDelta produces a delta instruction stream that, applied to
// base via ApplyDelta, reproduces target. It uses a greedy match
// strategy: index every blockSize-byte block of base by content hash,
// then scan target left to right, extending the longest match found at
// each position and falling back to a literal insert run otherwise.
func EncodeDelta(base, target []byte) []byte {
	index := indexBlocks(base)

	out := make([]byte, 0, len(target)/2+32)
	out = appendDeltaSize(out, int64(len(base)))
	out = appendDeltaSize(out, int64(len(target)))

	var insertBuf []byte
	flushInsert := func() {
		for len(insertBuf) > 0 {
			n := len(insertBuf)
			if n > 0x7f {
				n = 0x7f
			}
			out = append(out, byte(n))
			out = append(out, insertBuf[:n]...)
			insertBuf = insertBuf[n:]
		}
	}

	i := 0
	for i < len(target) {
		bestOff, bestLen := 0, 0
		if i+blockSize <= len(target) {
			h := blockHash(target[i : i+blockSize])
			for _, off := range index[h] {
				l := matchLength(base[off:], target[i:])
				if l > bestLen {
					bestLen, bestOff = l, off
				}
			}
		}

		if bestLen >= minCopySize {
			flushInsert()
			remaining := bestLen
			for remaining > 0 {
				n := remaining
				if n > maxCopySize {
					n = maxCopySize
				}
				out = appendCopy(out, bestOff, n)
				bestOff += n
				remaining -= n
			}
			i += bestLen
		} else {
			insertBuf = append(insertBuf, target[i])
			i++
		}
	}
	flushInsert()

	return out
}

// indexBlocks maps each blockSize-byte block hash in base to every
// offset it occurs at, so EncodeDelta can look up copy candidates in
// O(1) average time per position.
func indexBlocks(base []byte) map[uint32][]int {
	idx := make(map[uint32][]int)
	if len(base) < blockSize {
		return idx
	}
	for i := 0; i+blockSize <= len(base); i++ {
		h := blockHash(base[i : i+blockSize])
		idx[h] = append(idx[h], i)
	}
	return idx
}

// blockHash is a simple FNV-1a hash over a fixed-size block, used only
// to bucket candidate match offsets, not for correctness: matchLength
// always verifies real bytes before a match is accepted.
func blockHash(b []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

func matchLength(base, target []byte) int {
	n := 0
	for n < len(base) && n < len(target) && base[n] == target[n] {
		n++
	}
	return n
}

func appendDeltaSize(out []byte, size int64) []byte {
	for {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if size == 0 {
			break
		}
	}
	return out
}

// appendCopy appends a copy instruction for base[offset:offset+size].
// Bytes of the offset/size that are zero are omitted entirely, with the
// opcode's bitmask recording which were present; the decoder treats any
// absent byte as zero.
func appendCopy(out []byte, offset, size int) []byte {
	op := byte(0x80)
	var offBytes, sizeBytes []byte

	o := offset
	for i := 0; i < 4; i++ {
		b := byte(o & 0xff)
		o >>= 8
		if b != 0 {
			op |= 1 << uint(i)
			offBytes = append(offBytes, b)
		}
	}

	sz := size
	if sz == maxCopySize {
		sz = 0
	}
	for i := 0; i < 3; i++ {
		b := byte(sz & 0xff)
		sz >>= 8
		if b != 0 {
			op |= 1 << uint(4+i)
			sizeBytes = append(sizeBytes, b)
		}
	}

	out = append(out, op)
	out = append(out, offBytes...)
	out = append(out, sizeBytes...)
	return out
}
