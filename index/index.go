// Package index implements git's staging area: the binary index file
// that records, for each tracked path and conflict stage, the blob OID,
// file mode, and cached stat data git uses to detect working-tree
// changes without rehashing every file (spec.md §4.6).
package index

import (
	"errors"
	"sort"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
)

// ErrUnsupportedVersion is returned when a header names an index
// version this package does not parse (anything outside 2–3; v4's
// path-prefix compression is an open question spec.md §9 leaves
// optional, and this port does not implement it — see DESIGN.md).
var ErrUnsupportedVersion = errors.New("index: unsupported version")

// ErrEntryNotFound is returned by Index.Entry when no entry matches.
var ErrEntryNotFound = errors.New("index: entry not found")

// ErrUnknownExtension is returned when an extension's signature is not
// recognized and its first byte is uppercase, per spec.md §4.6's
// mandatory/optional distinction on extension signatures.
var ErrUnknownExtension = errors.New("index: unknown mandatory extension")

// Stage identifies an index entry's role during a three-way merge
// conflict: 0 once resolved, 1–3 while unresolved (spec.md §3, §4.6).
type Stage uint8

const (
	Merged    Stage = 0
	Ancestor  Stage = 1
	Ours      Stage = 2
	Theirs    Stage = 3
)

// Entry is one (path, stage) row of the index.
type Entry struct {
	Path string
	OID  hash.OID
	Mode filemode.FileMode
	Stage Stage

	// Stat data, cached for cheap change detection (spec.md §4.6 "Stat
	// match"). CreatedAt/ModifiedAt hold both the second and nanosecond
	// components C git stores as separate 32-bit fields.
	CreatedAt  StatTime
	ModifiedAt StatTime
	Dev, Inode uint32
	UID, GID   uint32
	Size       uint32

	AssumeValid  bool
	IntentToAdd  bool
	SkipWorktree bool
}

// StatTime is a (seconds, nanoseconds) pair matching the on-disk ctime/
// mtime encoding exactly, avoiding any lossy trip through time.Time's
// own epoch/precision handling.
type StatTime struct {
	Sec, Nsec uint32
}

// Index is the parsed contents of a `.git/index` file: the ordered
// entry table plus whichever extension chunks were present.
type Index struct {
	Version uint32
	Entries []*Entry

	// Cache is the TREE extension: cached subtree OIDs so write-tree can
	// skip re-hashing unmodified subtrees (spec.md §4.6 "Cache-tree").
	Cache *TreeCache

	// ResolveUndo is the REUC extension: pre-resolution conflict stages,
	// kept so a resolution can be undone (spec.md §4.6 "Resolve-undo").
	ResolveUndo *ResolveUndo

	// Extra holds any other extension chunk verbatim, preserving
	// round-trip fidelity for extensions this package does not
	// interpret (spec.md §4.6: lowercase-signature extensions must
	// survive unmodified; this package also passes through the
	// uppercase "known but uninterpreted" chunks named in spec.md —
	// link, UNTR, FSMN — rather than treating them as fatal, since they
	// are documented formats, just not ones this core's callers act on).
	Extra []RawExtension
}

// RawExtension is an index extension chunk this package does not model
// structurally, kept as raw bytes so Encode reproduces it unchanged.
type RawExtension struct {
	Signature [4]byte
	Data      []byte
}

// TreeCache mirrors the working tree's directory structure; each node
// caches the OID of its corresponding tree object when valid, or -1
// entries to mark it invalid (spec.md §4.6).
type TreeCache struct {
	Entries []TreeCacheEntry
}

// TreeCacheEntry is one node of the cache-tree. Path is empty for the
// root. EntryCount is -1 when the node is invalidated (its OID must be
// recomputed); SubtreeCount is how many of the following entries are
// its (possibly nested) children.
type TreeCacheEntry struct {
	Path         string
	EntryCount   int
	SubtreeCount int
	OID          hash.OID
}

// ResolveUndo is the parsed REUC extension.
type ResolveUndo struct {
	Entries []ResolveUndoEntry
}

// ResolveUndoEntry records the pre-resolution stage-1/2/3 (mode, OID)
// pairs for one conflicted path, so resolving it (stage 0 written) can
// later be undone.
type ResolveUndoEntry struct {
	Path   string
	Stages map[Stage]ResolveUndoStage
}

// ResolveUndoStage is one stage's recorded mode and OID within a
// ResolveUndoEntry.
type ResolveUndoStage struct {
	Mode filemode.FileMode
	OID  hash.OID
}

// byPathStage orders entries the way the on-disk format requires:
// ascending path, then ascending stage within a path.
type byPathStage []*Entry

func (e byPathStage) Len() int      { return len(e) }
func (e byPathStage) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e byPathStage) Less(i, j int) bool {
	if e[i].Path != e[j].Path {
		return e[i].Path < e[j].Path
	}
	return e[i].Stage < e[j].Stage
}

// Sort orders idx.Entries into canonical (path, stage) order.
func (idx *Index) Sort() {
	sort.Sort(byPathStage(idx.Entries))
}

// Entry returns the stage-0 entry for path, or the lowest-numbered
// staged entry if path is currently conflicted. ErrEntryNotFound if
// path is not present at any stage.
func (idx *Index) Entry(path string) (*Entry, error) {
	var best *Entry
	for _, e := range idx.Entries {
		if e.Path != path {
			continue
		}
		if e.Stage == Merged {
			return e, nil
		}
		if best == nil || e.Stage < best.Stage {
			best = e
		}
	}
	if best == nil {
		return nil, ErrEntryNotFound
	}
	return best, nil
}

// EntryStage returns the entry for (path, stage), or ErrEntryNotFound.
func (idx *Index) EntryStage(path string, stage Stage) (*Entry, error) {
	for _, e := range idx.Entries {
		if e.Path == path && e.Stage == stage {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Add inserts e, replacing any existing entry at the same (path, stage).
// Callers adding a resolved (stage-0) entry are responsible for first
// removing stages 1–3 via RemoveConflict, matching spec.md §4.6's
// "Resolution = remove stages 1–3 and insert stage 0" invariant — Add
// itself does not enforce the stage-0-xor-staged-1-3 rule, since Add is
// also how the three conflicted stages get installed one at a time.
func (idx *Index) Add(e *Entry) {
	for i, existing := range idx.Entries {
		if existing.Path == e.Path && existing.Stage == e.Stage {
			idx.Entries[i] = e
			idx.Sort()
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
	idx.Sort()
}

// Remove deletes the stage-0 entry for path. Returns ErrEntryNotFound if
// absent.
func (idx *Index) Remove(path string) error {
	for i, e := range idx.Entries {
		if e.Path == path && e.Stage == Merged {
			idx.Entries = append(idx.Entries[:i:i], idx.Entries[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

// Conflicted reports whether path currently has any staged (non-zero
// stage) entries.
func (idx *Index) Conflicted(path string) bool {
	for _, e := range idx.Entries {
		if e.Path == path && e.Stage != Merged {
			return true
		}
	}
	return false
}

// ConflictedPaths returns the distinct paths with at least one staged
// entry, in sorted order.
func (idx *Index) ConflictedPaths() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range idx.Entries {
		if e.Stage != Merged && !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e.Path)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveConflict removes every staged (1–3) entry for path, returning
// them (in ascending stage order) for ResolveUndo bookkeeping.
func (idx *Index) RemoveConflict(path string) []*Entry {
	var removed []*Entry
	kept := idx.Entries[:0:0]
	for _, e := range idx.Entries {
		if e.Path == path && e.Stage != Merged {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	idx.Entries = kept
	sort.Slice(removed, func(i, j int) bool { return removed[i].Stage < removed[j].Stage })
	return removed
}

// Resolve removes path's conflicted stages, records them in
// idx.ResolveUndo, and inserts a stage-0 entry with resolved.
func (idx *Index) Resolve(path string, resolved *Entry) {
	removed := idx.RemoveConflict(path)
	if len(removed) > 0 {
		ru := &ResolveUndoEntry{Path: path, Stages: map[Stage]ResolveUndoStage{}}
		for _, e := range removed {
			ru.Stages[e.Stage] = ResolveUndoStage{Mode: e.Mode, OID: e.OID}
		}
		if idx.ResolveUndo == nil {
			idx.ResolveUndo = &ResolveUndo{}
		}
		idx.ResolveUndo.Entries = append(idx.ResolveUndo.Entries, *ru)
	}
	resolved.Stage = Merged
	idx.Add(resolved)
}

// Invalidate marks every cache-tree node along path's directory chain
// (and the root) as invalid, forcing write-tree to recompute their OIDs.
// Called after any entry is added, removed, or changed.
func (idx *Index) Invalidate(path string) {
	if idx.Cache == nil {
		return
	}
	idx.Cache.Invalidate(path)
}

// Invalidate marks the root and every ancestor directory of path as
// invalid (EntryCount -1), matching git's own cache-tree invalidation:
// a changed leaf invalidates every containing node up to the root, but
// leaves sibling subtrees alone.
func (tc *TreeCache) Invalidate(path string) {
	if len(tc.Entries) == 0 {
		return
	}
	tc.Entries[0].EntryCount = -1
	dir := parentDir(path)
	for dir != "" {
		for i := range tc.Entries {
			if tc.Entries[i].Path == dir {
				tc.Entries[i].EntryCount = -1
			}
		}
		dir = parentDir(dir)
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
