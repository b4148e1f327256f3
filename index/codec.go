package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
)

func newByteReader(b []byte) io.Reader { return bytes.NewReader(b) }

var indexSignature = [4]byte{'D', 'I', 'R', 'C'}

var (
	treeExtSignature        = [4]byte{'T', 'R', 'E', 'E'}
	resolveUndoExtSignature = [4]byte{'R', 'E', 'U', 'C'}
)

const (
	entryExtendedBit = 0x4000
	entryStageMask    = 0x3000
	entryNameMask     = 0x0fff
	extIntentToAdd    = 1 << 13
	extSkipWorktree   = 1 << 14
)

// Decode parses an index file from r. algo selects the OID width of
// entries, the trailing checksum, and tree-cache / resolve-undo OIDs.
func Decode(r io.Reader, algo hash.Algorithm) (*Index, error) {
	// The trailing checksum covers every byte before it, so the whole
	// file is read first and hashed up to the trailer, independent of
	// how far the buffered parser below reads ahead.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("index: reading: %w", err)
	}
	h := hash.NewStreamHasher(algo)
	if len(data) >= algo.Size() {
		h.Write(data[:len(data)-algo.Size()])
	}
	br := bufio.NewReader(bytes.NewReader(data))

	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("index: reading signature: %w", err)
	}
	if hdr != indexSignature {
		return nil, fmt.Errorf("index: bad signature %q", hdr)
	}

	version, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	count, err := readUint32(br)
	if err != nil {
		return nil, err
	}

	idx := &Index{Version: version}
	for i := uint32(0); i < count; i++ {
		e, err := decodeEntry(br, algo, version)
		if err != nil {
			return nil, fmt.Errorf("index: entry %d: %w", i, err)
		}
		idx.Entries = append(idx.Entries, e)
	}

	// Extensions run until only the trailing checksum remains. Peeking
	// the checksum width plus a signature+length lets us tell "another
	// extension follows" from "end of file" without consuming bytes we
	// can't put back.
	peekLen := 4 + 4 + algo.Size()
	for {
		peeked, perr := br.Peek(peekLen)
		if len(peeked) < peekLen {
			break
		}
		if perr != nil {
			return nil, perr
		}
		if err := decodeExtension(br, idx, algo); err != nil {
			return nil, err
		}
	}

	sum := h.Sum()
	trailer := make([]byte, algo.Size())
	if _, err := io.ReadFull(br, trailer); err != nil {
		return nil, fmt.Errorf("index: reading checksum: %w", err)
	}
	trailerOID, err := hash.FromBytes(algo, trailer)
	if err != nil {
		return nil, err
	}
	if !trailerOID.Equal(sum) {
		return nil, fmt.Errorf("index: checksum mismatch")
	}

	return idx, nil
}

func decodeEntry(r *bufio.Reader, algo hash.Algorithm, version uint32) (*Entry, error) {
	e := &Entry{}

	var csec, cnsec, msec, mnsec uint32
	var err error
	for _, dst := range []*uint32{&csec, &cnsec, &msec, &mnsec, &e.Dev, &e.Inode} {
		if *dst, err = readUint32(r); err != nil {
			return nil, err
		}
	}
	e.CreatedAt = StatTime{csec, cnsec}
	e.ModifiedAt = StatTime{msec, mnsec}

	var rawMode uint32
	if rawMode, err = readUint32(r); err != nil {
		return nil, err
	}
	e.Mode = filemode.FileMode(rawMode)

	for _, dst := range []*uint32{&e.UID, &e.GID, &e.Size} {
		if *dst, err = readUint32(r); err != nil {
			return nil, err
		}
	}

	raw := make([]byte, algo.Size())
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	if e.OID, err = hash.FromBytes(algo, raw); err != nil {
		return nil, err
	}

	flags, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	e.Stage = Stage((flags & entryStageMask) >> 12)

	// 40 bytes of fixed stat fields + the OID + the 2-byte flags field
	// just read, before any extended-flags word or the name.
	read := 40 + algo.Size() + 2

	nameLen := int(flags & entryNameMask)

	if flags&entryExtendedBit != 0 {
		extFlags, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		e.IntentToAdd = extFlags&extIntentToAdd != 0
		e.SkipWorktree = extFlags&extSkipWorktree != 0
		read += 2
	}

	name, err := readEntryName(r, nameLen)
	if err != nil {
		return nil, err
	}
	e.Path = name

	return e, padEntry(r, read+len(name))
}

// readEntryName reads exactly nameLen bytes when nameLen is below the
// 0xfff mask (the common case), or reads a NUL-terminated name when the
// path is long enough that the 12-bit length field saturated.
func readEntryName(r *bufio.Reader, nameLen int) (string, error) {
	if nameLen < entryNameMask {
		buf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		return string(buf), nil
	}
	b, err := r.ReadBytes(0)
	if err != nil {
		return "", err
	}
	return string(b[:len(b)-1]), nil
}

// padEntry discards the padding bytes that bring an entry up to the
// next 8-byte boundary, measured from the start of the entry. The name
// itself is never NUL-terminated on disk (its length is carried in the
// flags field); the padding always contributes at least one NUL byte
// that serves as the de facto terminator, which is why 8-0%8 yields a
// full 8 bytes of padding rather than zero.
func padEntry(r *bufio.Reader, written int) error {
	padLen := 8 - written%8
	_, err := io.CopyN(io.Discard, r, int64(padLen))
	return err
}

func decodeExtension(r *bufio.Reader, idx *Index, algo hash.Algorithm) error {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return err
	}
	length, err := readUint32(r)
	if err != nil {
		return err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	switch sig {
	case treeExtSignature:
		tc, err := decodeTreeCache(data, algo)
		if err != nil {
			return err
		}
		idx.Cache = tc
	case resolveUndoExtSignature:
		ru, err := decodeResolveUndo(data, algo)
		if err != nil {
			return err
		}
		idx.ResolveUndo = ru
	default:
		// Lowercase-signature extensions (including split-index "link")
		// are optional by convention, and UNTR/FSMN are known chunk
		// types this core does not interpret: all of these are
		// preserved verbatim. Any other uppercase signature names an
		// extension that must be understood, so decoding fails.
		if sig[0] < 'A' || sig[0] > 'Z' || sig == [4]byte{'U', 'N', 'T', 'R'} || sig == [4]byte{'F', 'S', 'M', 'N'} {
			idx.Extra = append(idx.Extra, RawExtension{Signature: sig, Data: data})
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnknownExtension, sig[:])
	}
	return nil
}

func decodeTreeCache(data []byte, algo hash.Algorithm) (*TreeCache, error) {
	tc := &TreeCache{}
	r := bufio.NewReader(newByteReader(data))
	for {
		path, err := r.ReadBytes(0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entryCountStr, err := r.ReadBytes(' ')
		if err != nil {
			return nil, err
		}
		entryCount, err := strconv.Atoi(string(entryCountStr[:len(entryCountStr)-1]))
		if err != nil {
			return nil, err
		}
		subtreeStr, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		subtreeCount, err := strconv.Atoi(string(subtreeStr[:len(subtreeStr)-1]))
		if err != nil {
			return nil, err
		}
		e := TreeCacheEntry{
			Path:         string(path[:len(path)-1]),
			EntryCount:   entryCount,
			SubtreeCount: subtreeCount,
		}
		if entryCount >= 0 {
			raw := make([]byte, algo.Size())
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, err
			}
			if e.OID, err = hash.FromBytes(algo, raw); err != nil {
				return nil, err
			}
		}
		tc.Entries = append(tc.Entries, e)
	}
	return tc, nil
}

func decodeResolveUndo(data []byte, algo hash.Algorithm) (*ResolveUndo, error) {
	ru := &ResolveUndo{}
	r := bufio.NewReader(newByteReader(data))
	for {
		path, err := r.ReadBytes(0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		e := ResolveUndoEntry{Path: string(path[:len(path)-1]), Stages: map[Stage]ResolveUndoStage{}}

		var present []Stage
		for _, stage := range []Stage{Ancestor, Ours, Theirs} {
			modeStr, err := r.ReadBytes(0)
			if err != nil {
				return nil, err
			}
			mode, err := strconv.ParseUint(string(modeStr[:len(modeStr)-1]), 8, 32)
			if err != nil {
				return nil, err
			}
			if mode != 0 {
				e.Stages[stage] = ResolveUndoStage{Mode: filemode.FileMode(mode)}
				present = append(present, stage)
			}
		}
		for _, stage := range present {
			raw := make([]byte, algo.Size())
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, err
			}
			oid, err := hash.FromBytes(algo, raw)
			if err != nil {
				return nil, err
			}
			st := e.Stages[stage]
			st.OID = oid
			e.Stages[stage] = st
		}
		ru.Entries = append(ru.Entries, e)
	}
	return ru, nil
}

// Encode serializes idx to w in its recorded version (2 or 3), sorting
// entries into canonical order first.
func Encode(w io.Writer, idx *Index, algo hash.Algorithm) error {
	if idx.Version != 2 && idx.Version != 3 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, idx.Version)
	}
	idx.Sort()

	h := hash.NewStreamHasher(algo)
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(indexSignature[:]); err != nil {
		return err
	}
	if err := writeUint32(mw, idx.Version); err != nil {
		return err
	}
	if err := writeUint32(mw, uint32(len(idx.Entries))); err != nil {
		return err
	}

	for _, e := range idx.Entries {
		if err := encodeEntry(mw, e, algo); err != nil {
			return err
		}
	}

	if idx.Cache != nil {
		if err := encodeExtension(mw, treeExtSignature, encodeTreeCache(idx.Cache, algo)); err != nil {
			return err
		}
	}
	if idx.ResolveUndo != nil {
		if err := encodeExtension(mw, resolveUndoExtSignature, encodeResolveUndo(idx.ResolveUndo)); err != nil {
			return err
		}
	}
	for _, ext := range idx.Extra {
		if err := encodeExtension(mw, ext.Signature, ext.Data); err != nil {
			return err
		}
	}

	sum := h.Sum()
	_, err := w.Write(sum.Bytes())
	return err
}

func encodeEntry(w io.Writer, e *Entry, algo hash.Algorithm) error {
	fields := []uint32{
		e.CreatedAt.Sec, e.CreatedAt.Nsec,
		e.ModifiedAt.Sec, e.ModifiedAt.Nsec,
		e.Dev, e.Inode,
		uint32(e.Mode),
		e.UID, e.GID, e.Size,
	}
	written := 0
	for _, f := range fields {
		if err := writeUint32(w, f); err != nil {
			return err
		}
		written += 4
	}
	if _, err := w.Write(e.OID.Bytes()); err != nil {
		return err
	}
	written += e.OID.Size()

	flags := uint16(e.Stage&0x3) << 12
	nameLen := len(e.Path)
	if nameLen < entryNameMask {
		flags |= uint16(nameLen)
	} else {
		flags |= entryNameMask
	}
	extended := e.IntentToAdd || e.SkipWorktree
	if extended {
		flags |= entryExtendedBit
	}
	if err := writeUint16(w, flags); err != nil {
		return err
	}
	written += 2

	if extended {
		var extFlags uint16
		if e.IntentToAdd {
			extFlags |= extIntentToAdd
		}
		if e.SkipWorktree {
			extFlags |= extSkipWorktree
		}
		if err := writeUint16(w, extFlags); err != nil {
			return err
		}
		written += 2
	}

	if _, err := w.Write([]byte(e.Path)); err != nil {
		return err
	}
	written += len(e.Path)

	padLen := 8 - written%8
	if padLen == 0 {
		padLen = 8
	}
	_, err := w.Write(make([]byte, padLen))
	return err
}

func encodeTreeCache(tc *TreeCache, algo hash.Algorithm) []byte {
	var buf []byte
	for _, e := range tc.Entries {
		buf = append(buf, []byte(e.Path)...)
		buf = append(buf, 0)
		buf = append(buf, []byte(strconv.Itoa(e.EntryCount))...)
		buf = append(buf, ' ')
		buf = append(buf, []byte(strconv.Itoa(e.SubtreeCount))...)
		buf = append(buf, '\n')
		if e.EntryCount >= 0 {
			buf = append(buf, e.OID.Bytes()...)
		}
	}
	return buf
}

func encodeResolveUndo(ru *ResolveUndo) []byte {
	var buf []byte
	for _, e := range ru.Entries {
		buf = append(buf, []byte(e.Path)...)
		buf = append(buf, 0)
		var present []Stage
		for _, stage := range []Stage{Ancestor, Ours, Theirs} {
			st, ok := e.Stages[stage]
			mode := uint32(0)
			if ok {
				mode = uint32(st.Mode)
				present = append(present, stage)
			}
			buf = append(buf, []byte(strconv.FormatUint(uint64(mode), 8))...)
			buf = append(buf, 0)
		}
		for _, stage := range present {
			buf = append(buf, e.Stages[stage].OID.Bytes()...)
		}
	}
	return buf
}

func encodeExtension(w io.Writer, sig [4]byte, data []byte) error {
	if _, err := w.Write(sig[:]); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
