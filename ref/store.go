package ref

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/internal/lockfile"
	"github.com/basincore/gitkernel/internal/wildmatch"
)

// packedRefsPath is the compaction file's fixed location, at the
// git-dir root alongside HEAD and the refs/ tree.
const packedRefsPath = "packed-refs"

// ErrNotFound is returned when a named reference does not exist as
// either a loose file or a packed-refs entry.
var ErrNotFound = errors.New("ref: not found")

// ErrMismatch is the CAS-failure sentinel: a transaction's expected
// old value did not match what is currently on disk (spec.md §5).
var ErrMismatch = errors.New("ref: compare-and-swap mismatch")

// ErrTooManyRedirects is returned by Resolve when following a
// symbolic reference's target chain exceeds maxResolveDepth, almost
// always meaning the chain cycles back on itself.
var ErrTooManyRedirects = errors.New("ref: too many symbolic ref redirects")

// ErrNoForkPoint is returned by forkPoint when no entry in the given
// reflog is an ancestor of the target commit.
var ErrNoForkPoint = errors.New("ref: no fork point found")

// Store is a filesystem-backed reference database rooted at a git
// directory: loose files under refs/ and HEAD, the packed-refs
// compaction file, and per-ref reflogs under logs/ (spec.md §4.7).
//
// Lookup order is loose-overrides-packed: a name present in both is
// resolved from its loose file, matching git's own precedence so a
// stale packed-refs entry never shadows a fresher loose update.
type Store struct {
	fs   billy.Filesystem
	algo hash.Algorithm
}

// NewStore returns a Store rooted at fs's top level (conventionally a
// repository's .git directory).
func NewStore(fs billy.Filesystem, algo hash.Algorithm) *Store {
	return &Store{fs: fs, algo: algo}
}

// readLoose reads name's loose ref file directly, without consulting
// packed-refs. Returns ErrNotFound if the file is absent.
func (s *Store) readLoose(name string) (Reference, error) {
	data, err := readTrimmed(s.fs, name)
	if err != nil {
		if os.IsNotExist(err) {
			return Reference{}, ErrNotFound
		}
		return Reference{}, err
	}
	return parseRefContent(name, data, s.algo)
}

func readTrimmed(fs billy.Filesystem, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func parseRefContent(name, content string, algo hash.Algorithm) (Reference, error) {
	if strings.HasPrefix(content, "ref: ") {
		return NewSymbolic(name, strings.TrimSpace(content[len("ref: "):])), nil
	}
	oid, err := hash.FromHex(strings.TrimSpace(content))
	if err != nil {
		return Reference{}, fmt.Errorf("ref: %s: malformed content %q: %w", name, content, err)
	}
	return NewDirect(name, oid), nil
}

// readPacked returns name's packed-refs entry, if any.
func (s *Store) readPacked(name string) (packedEntry, bool, error) {
	entries, err := readPackedRefs(s.fs, packedRefsPath, s.algo)
	if err != nil {
		return packedEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return packedEntry{}, false, nil
}

// Get returns name's reference as recorded on disk: its loose file if
// one exists, else its packed-refs entry. ErrNotFound if neither.
func (s *Store) Get(name string) (Reference, error) {
	ref, err := s.readLoose(name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Reference{}, err
	}

	entry, ok, err := s.readPacked(name)
	if err != nil {
		return Reference{}, err
	}
	if !ok {
		return Reference{}, ErrNotFound
	}
	return NewDirect(name, entry.OID), nil
}

// Resolve follows name through any chain of symbolic references and
// returns the OID it ultimately points at.
func (s *Store) Resolve(name string) (hash.OID, error) {
	for depth := 0; depth < maxResolveDepth; depth++ {
		ref, err := s.Get(name)
		if err != nil {
			return hash.OID{}, err
		}
		if ref.Kind == Direct {
			return ref.OID, nil
		}
		name = ref.Target
	}
	return hash.OID{}, ErrTooManyRedirects
}

// Exists reports whether name resolves to anything, loose or packed.
func (s *Store) Exists(name string) bool {
	_, err := s.Get(name)
	return err == nil
}

// Iter returns every reference whose name has the given prefix
// (pass "" for all references), loose entries overriding a
// same-named packed entry, sorted by name.
func (s *Store) Iter(prefix string) ([]Reference, error) {
	seen := map[string]Reference{}

	packed, err := readPackedRefs(s.fs, packedRefsPath, s.algo)
	if err != nil {
		return nil, err
	}
	for _, e := range packed {
		if strings.HasPrefix(e.Name, prefix) {
			seen[e.Name] = NewDirect(e.Name, e.OID)
		}
	}

	if err := s.walkLoose("refs", func(name string) error {
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		ref, err := s.readLoose(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		seen[name] = ref
		return nil
	}); err != nil {
		return nil, err
	}

	if strings.HasPrefix(HEAD, prefix) {
		if ref, err := s.readLoose(HEAD); err == nil {
			seen[HEAD] = ref
		}
	}

	out := make([]Reference, 0, len(seen))
	for _, ref := range seen {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IterGlob returns every reference whose name matches pattern, in the
// style of `git for-each-ref <pattern>`: pattern components may use
// "*", "?", "[...]" and a lone "**" component to span any number of
// intermediate levels. A pattern with no wildcard metacharacters
// behaves like an exact name lookup rather than a prefix match.
func (s *Store) IterGlob(pattern string) ([]Reference, error) {
	all, err := s.Iter(literalPrefix(pattern))
	if err != nil {
		return nil, err
	}
	if !wildmatch.HasWildcard(pattern) {
		for _, ref := range all {
			if ref.Name == pattern {
				return []Reference{ref}, nil
			}
		}
		return nil, nil
	}

	m := wildmatch.Compile(pattern)
	out := make([]Reference, 0, len(all))
	for _, ref := range all {
		if m.Match(ref.Name) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// literalPrefix returns the portion of pattern before its first
// wildcard metacharacter, trimmed back to the preceding "/" boundary,
// so IterGlob can narrow Iter's scan instead of listing every
// reference in the store.
func literalPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[")
	if i < 0 {
		return pattern
	}
	if j := strings.LastIndex(pattern[:i], "/"); j >= 0 {
		return pattern[:j+1]
	}
	return ""
}

func (s *Store) walkLoose(dir string, fn func(name string) error) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		full := dir + "/" + e.Name()
		if e.IsDir() {
			if err := s.walkLoose(full, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full); err != nil {
			return err
		}
	}
	return nil
}

// Write installs ref as name's loose file, enforcing a compare-and-
// swap against oldOID when oldOID is non-zero. An IsZero oldOID means
// "create, must not already exist as a direct ref"; pass a matching
// oldOID to update, or use WriteUnconditional to skip the check.
func (s *Store) Write(ref Reference, oldOID hash.OID) error {
	if err := ValidateName(ref.Name); err != nil {
		return err
	}
	if dir := parentDirOf(ref.Name); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	lock, err := lockfile.Acquire(s.fs, ref.Name)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	current, err := s.Get(ref.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		if !oldOID.IsZero() {
			return fmt.Errorf("%w: %s: expected %s, found nothing", ErrMismatch, ref.Name, oldOID)
		}
	case err != nil:
		return err
	default:
		if oldOID.IsZero() {
			if current.Kind == Direct {
				return fmt.Errorf("%w: %s: expected nothing, found %s", ErrMismatch, ref.Name, current.OID)
			}
		} else if current.Kind != Direct || !current.OID.Equal(oldOID) {
			return fmt.Errorf("%w: %s", ErrMismatch, ref.Name)
		}
	}

	if _, err := lock.Write([]byte(ref.String())); err != nil {
		return err
	}
	return lock.Commit()
}

// WriteUnconditional installs ref without any CAS check, overwriting
// whatever name currently points at.
func (s *Store) WriteUnconditional(ref Reference) error {
	if err := ValidateName(ref.Name); err != nil {
		return err
	}
	if dir := parentDirOf(ref.Name); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	lock, err := lockfile.Acquire(s.fs, ref.Name)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	if _, err := lock.Write([]byte(ref.String())); err != nil {
		return err
	}
	return lock.Commit()
}

// Delete removes name's loose file (if any) and its packed-refs entry
// (if any), enforcing a compare-and-swap against oldOID when non-zero.
func (s *Store) Delete(name string, oldOID hash.OID) error {
	if !oldOID.IsZero() {
		current, err := s.Resolve(name)
		if err != nil {
			return err
		}
		if !current.Equal(oldOID) {
			return fmt.Errorf("%w: %s", ErrMismatch, name)
		}
	}

	// The lock on name itself is held only to block a concurrent writer
	// from racing the removal below; deletion never produces new
	// content for name, so the lock is always rolled back, never
	// committed.
	lock, err := lockfile.Acquire(s.fs, name)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}

	return rewritePackedRefs(s.fs, packedRefsPath, s.algo, func(entries []packedEntry) []packedEntry {
		out := entries[:0:0]
		for _, e := range entries {
			if e.Name != name {
				out = append(out, e)
			}
		}
		return out
	})
}

// Pack moves every direct loose reference under refs/ into packed-refs,
// deleting the now-redundant loose files; symbolic refs under refs/, and
// HEAD, stay loose. This is git's `pack-refs` compaction.
func (s *Store) Pack() error {
	var loose []Reference
	if err := s.walkLoose("refs", func(name string) error {
		ref, err := s.readLoose(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if ref.Kind == Direct {
			loose = append(loose, ref)
		}
		return nil
	}); err != nil {
		return err
	}
	if len(loose) == 0 {
		return nil
	}

	if err := rewritePackedRefs(s.fs, packedRefsPath, s.algo, func(entries []packedEntry) []packedEntry {
		byName := map[string]packedEntry{}
		for _, e := range entries {
			byName[e.Name] = e
		}
		for _, r := range loose {
			byName[r.Name] = packedEntry{Name: r.Name, OID: r.OID}
		}
		out := make([]packedEntry, 0, len(byName))
		for _, e := range byName {
			out = append(out, e)
		}
		return out
	}); err != nil {
		return err
	}

	for _, r := range loose {
		if err := s.fs.Remove(r.Name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
