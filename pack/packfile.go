package pack

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/basincore/gitkernel/hash"
)

// Magic is the 4-byte packfile signature, "PACK".
var Magic = [4]byte{'P', 'A', 'C', 'K'}

// SupportedVersion is the only packfile version this package reads or
// writes.
const SupportedVersion = 2

// ErrBadMagic is returned when a file does not begin with the packfile
// signature.
var ErrBadMagic = errors.New("pack: bad signature")

// ErrUnsupportedVersion is returned for a packfile version other than 2.
var ErrUnsupportedVersion = errors.New("pack: unsupported version")

// Header is a packfile's 12-byte preamble: signature, version, and
// object count.
type Header struct {
	Version    uint32
	ObjectCount uint32
}

// ReadHeader parses a packfile's 12-byte header from the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Header{}, ErrBadMagic
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != SupportedVersion {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	count := binary.BigEndian.Uint32(buf[8:12])
	return Header{Version: version, ObjectCount: count}, nil
}

// WriteHeader writes a packfile header for count objects.
func WriteHeader(w io.Writer, count uint32) error {
	var buf [12]byte
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint32(buf[4:8], SupportedVersion)
	binary.BigEndian.PutUint32(buf[8:12], count)
	_, err := w.Write(buf[:])
	return err
}

// countingReader tracks how many bytes have been read, so entry offsets
// (needed for OFS_DELTA resolution) can be recorded as the stream is
// walked sequentially.
type countingReader struct {
	r   *bufio.Reader
	n   int64
}

// newCountingReader wraps r for sequential entry-header/content reads
// that need to track their own byte position (OFS_DELTA resolution
// needs each entry's starting offset within the pack).
func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{r: bufio.NewReader(r)}
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ReadEntryHeader parses one entry header: the type+size varint, and
// for delta entries, the base offset or OID that follows it. offset is
// this entry's own starting offset within the pack, needed to resolve
// EntryOFSDelta's relative base offset.
func ReadEntryHeader(r *countingReader, algo hash.Algorithm, offset int64) (EntryHeader, error) {
	first, err := r.ReadByte()
	if err != nil {
		return EntryHeader{}, err
	}
	typ := EntryType((first >> 4) & 0x7)
	size := int64(first & 0x0f)
	shift := uint(4)
	for first&0x80 != 0 {
		b, err := r.ReadByte()
		if err != nil {
			return EntryHeader{}, err
		}
		first = b
		size |= int64(first&0x7f) << shift
		shift += 7
	}

	h := EntryHeader{Type: typ, Size: size}
	switch typ {
	case EntryOFSDelta:
		delta, err := readOffsetDelta(r)
		if err != nil {
			return EntryHeader{}, err
		}
		h.BaseOffset = offset - delta
	case EntryREFDelta:
		var raw [hash.SHA256Size]byte
		n := algo.Size()
		if _, err := io.ReadFull(r, raw[:n]); err != nil {
			return EntryHeader{}, err
		}
		oid, err := hash.FromBytes(algo, raw[:n])
		if err != nil {
			return EntryHeader{}, err
		}
		h.BaseOID = oid
	}
	return h, nil
}

// readOffsetDelta reads git's MSB-continuation, base-128, "offset minus
// one per continuation byte" varint used by OFS_DELTA headers.
func readOffsetDelta(r *countingReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	v := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		v = ((v + 1) << 7) | int64(b&0x7f)
	}
	return v, nil
}

// WriteEntryHeader encodes h's type+size varint and, for delta entries,
// its base offset or OID, writing the result to w.
func WriteEntryHeader(w io.Writer, h EntryHeader) error {
	first := byte(h.Type) << 4
	size := h.Size
	first |= byte(size & 0x0f)
	size >>= 4
	more := size > 0
	if more {
		first |= 0x80
	}
	if _, err := w.Write([]byte{first}); err != nil {
		return err
	}
	for more {
		b := byte(size & 0x7f)
		size >>= 7
		more = size > 0
		if more {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}

	switch h.Type {
	case EntryOFSDelta:
		return writeOffsetDelta(w, h.BaseOffset)
	case EntryREFDelta:
		_, err := w.Write(h.BaseOID.Bytes())
		return err
	}
	return nil
}

func writeOffsetDelta(w io.Writer, delta int64) error {
	var stack []byte
	stack = append(stack, byte(delta&0x7f))
	delta >>= 7
	for delta > 0 {
		delta--
		stack = append(stack, byte(delta&0x7f)|0x80)
		delta >>= 7
	}
	// stack was built least-significant-byte first; emit most significant
	// first, since offset-deltas are big-endian-continuation encoded.
	for i := len(stack) - 1; i >= 0; i-- {
		if _, err := w.Write([]byte{stack[i]}); err != nil {
			return err
		}
	}
	return nil
}

// ReadEntryContent reads and inflates one entry's zlib-compressed body,
// given its declared inflated size.
func ReadEntryContent(r io.Reader, size int64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	content := make([]byte, size)
	if _, err := io.ReadFull(zr, content); err != nil {
		return nil, err
	}
	return content, nil
}
