package object

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
)

// TreeEntry is one row of a tree object: a name, the mode it was staged
// with, and the OID of the blob, subtree, or commit (for submodules) it
// points at.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	OID  hash.OID
}

// Tree is a snapshot of a directory: an ordered list of entries, each
// naming a blob (file), another tree (subdirectory), or a commit
// (submodule gitlink).
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Type() Type { return TreeType }

// sortKey returns the byte key used to order an entry relative to its
// siblings. Directory entries sort as if their name had a trailing '/'
// appended, so e.g. a file "foo.c" sorts before a directory "foo" even
// though "foo" is a byte-wise prefix of "foo.c" — git compares names as
// it would compare paths, not as flat strings.
func sortKey(e TreeEntry) []byte {
	if e.Mode == filemode.Dir {
		return append([]byte(e.Name), '/')
	}
	return []byte(e.Name)
}

// Sort orders t's entries into the exact sequence git requires on disk.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return bytes.Compare(sortKey(t.Entries[i]), sortKey(t.Entries[j])) < 0
	})
}

// IsSorted reports whether t's entries are already in canonical order,
// without mutating them.
func (t *Tree) IsSorted() bool {
	for i := 1; i < len(t.Entries); i++ {
		if bytes.Compare(sortKey(t.Entries[i-1]), sortKey(t.Entries[i])) >= 0 {
			return false
		}
	}
	return true
}

// Encode writes the tree's canonical on-disk form: for each entry,
// "<mode-octal-unpadded> <name>\0<raw-oid-bytes>", entries already in
// sorted order. Encode does not sort; callers must Sort (or build
// entries already sorted) before encoding, since re-sorting silently
// would hide a caller bug that produced entries in the wrong order.
func (t *Tree) Encode(w ContentWriter) error {
	if !t.IsSorted() {
		return fmt.Errorf("%w: tree entries are not in canonical sort order", ErrMalformed)
	}
	for _, e := range t.Entries {
		if _, err := w.Write(e.Mode.Bytes()); err != nil {
			return err
		}
		if _, err := w.Write([]byte(" ")); err != nil {
			return err
		}
		if _, err := w.Write([]byte(e.Name)); err != nil {
			return err
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
		if _, err := w.Write(e.OID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTree parses a tree object's raw content bytes into entries. algo
// selects the OID width each entry's trailing digest is read as.
func DecodeTree(algo hash.Algorithm, content []byte) (*Tree, error) {
	t := &Tree{}
	oidSize := algo.Size()
	pos := 0
	for pos < len(content) {
		sp := bytes.IndexByte(content[pos:], ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: tree entry missing mode separator at offset %d", ErrMalformed, pos)
		}
		modeStr := string(content[pos : pos+sp])
		mode, err := filemode.New(modeStr)
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry mode %q at offset %d: %v", ErrMalformed, modeStr, pos, err)
		}
		pos += sp + 1

		nul := bytes.IndexByte(content[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: tree entry missing NUL terminator at offset %d", ErrMalformed, pos)
		}
		name := string(content[pos : pos+nul])
		if name == "" {
			return nil, fmt.Errorf("%w: tree entry with empty name at offset %d", ErrMalformed, pos)
		}
		pos += nul + 1

		if pos+oidSize > len(content) {
			return nil, fmt.Errorf("%w: tree entry %q truncated digest at offset %d", ErrMalformed, name, pos)
		}
		oid, err := hash.FromBytes(algo, content[pos:pos+oidSize])
		if err != nil {
			return nil, err
		}
		pos += oidSize

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, OID: oid})
	}
	return t, nil
}

// Find returns the entry named name, if present.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}
