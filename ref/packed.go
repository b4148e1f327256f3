package ref

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/internal/lockfile"
)

// packedEntry is one "<oid> <name>" line of the packed-refs file, plus
// an optional trailing "^<oid>" peeled-tag line recorded against it.
type packedEntry struct {
	Name   string
	OID    hash.OID
	Peeled hash.OID // zero value (IsZero) when absent
}

// decodePackedRefs parses a packed-refs file's contents. The first
// line may be a "# pack-refs with:" trait comment, which is skipped
// like any other '#' line — parsing does not depend on any of the
// traits git advertises there (fully-peeled, sorted).
func decodePackedRefs(r io.Reader, algo hash.Algorithm) ([]packedEntry, error) {
	var entries []packedEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == '#' {
			continue
		}
		if line[0] == '^' {
			if len(entries) == 0 {
				return nil, fmt.Errorf("ref: packed-refs: peeled line with no preceding ref")
			}
			oid, err := hash.FromHex(line[1:])
			if err != nil {
				return nil, fmt.Errorf("ref: packed-refs: bad peeled oid: %w", err)
			}
			entries[len(entries)-1].Peeled = oid
			continue
		}

		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("ref: packed-refs: malformed line %q", line)
		}
		oid, err := hash.FromHex(line[:sp])
		if err != nil {
			return nil, fmt.Errorf("ref: packed-refs: bad oid: %w", err)
		}
		entries = append(entries, packedEntry{Name: line[sp+1:], OID: oid})
	}
	return entries, scanner.Err()
}

// encodePackedRefs writes entries back out in git's canonical form:
// sorted by name, one "<oid> <name>" line per entry, a "^<oid>" line
// immediately following any entry with a recorded peel.
func encodePackedRefs(w io.Writer, entries []packedEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if _, err := io.WriteString(w, "# pack-refs with: fully-peeled sorted\n"); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s %s\n", e.OID.String(), e.Name); err != nil {
			return err
		}
		if !e.Peeled.IsZero() {
			if _, err := fmt.Fprintf(w, "^%s\n", e.Peeled.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

// readPackedRefs reads and parses the packed-refs file at path. A
// missing file is reported as an empty, not erroneous, ref set.
func readPackedRefs(fs billy.Filesystem, path string, algo hash.Algorithm) ([]packedEntry, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return decodePackedRefs(f, algo)
}

// rewritePackedRefs rewrites the packed-refs file under lock, applying
// mutate to the entries read from disk before writing them back.
// mutate runs with the lock already held, so the read-modify-write is
// atomic against other ref transactions (spec.md §5).
func rewritePackedRefs(fs billy.Filesystem, path string, algo hash.Algorithm, mutate func([]packedEntry) []packedEntry) error {
	lock, err := lockfile.Acquire(fs, path)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	entries, err := readPackedRefs(fs, path, algo)
	if err != nil {
		return err
	}
	entries = mutate(entries)

	var buf strings.Builder
	if err := encodePackedRefs(&buf, entries); err != nil {
		return err
	}
	if _, err := lock.Write([]byte(buf.String())); err != nil {
		return err
	}
	return lock.Commit()
}
