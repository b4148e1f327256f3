package revwalk

import (
	"time"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// Order selects how a Walker yields the commits it visits (spec.md
// §4.8 "Ordering modes").
type Order int

const (
	// DateOrder yields commits newest-first by commit time, the
	// default.
	DateOrder Order = iota
	// Topo yields commits such that no child appears before its
	// parent, newest-first among commits with no ordering constraint
	// between them.
	Topo
	// Reverse yields DateOrder's sequence reversed (oldest first).
	Reverse
)

// Options configures a Walker's traversal (spec.md §4.8 "Ordering
// modes").
type Options struct {
	Order Order

	// FirstParentOnly restricts traversal to each commit's first
	// parent, following a single line of history through merges.
	FirstParentOnly bool

	// AuthorFilter, if set, suppresses commits whose author identity
	// does not satisfy it.
	AuthorFilter func(object.Signature) bool

	// MessageGrep, if set, suppresses commits whose message does not
	// satisfy it.
	MessageGrep func(string) bool

	// Since/Until bound the commit-time window. A zero time.Time
	// disables that bound. Since additionally stops traversal past
	// any commit older than it (git's own "--since" pruning
	// behavior); Until only filters what is yielded, since a commit
	// newer than Until may still have ancestors within the window.
	Since, Until time.Time
}

// Walker performs a reachability walk over a commit graph reached
// through a Source, starting from pushed roots and excluding anything
// reachable from hidden commits (spec.md §4.8 "Contract").
type Walker struct {
	source Source
	opts   Options
	cancel <-chan struct{}

	roots  []hash.OID
	hidden []hash.OID
}

// New builds a Walker reading commits from source.
func New(source Source, opts Options) *Walker {
	return &Walker{source: source, opts: opts}
}

// Push adds oid as a root: it and everything reachable from it are
// candidates for yielding, unless also reachable from a hidden
// commit.
func (w *Walker) Push(oid hash.OID) { w.roots = append(w.roots, oid) }

// Hide marks oid (and everything reachable from it) uninteresting:
// once a hidden commit is reached during traversal, it and its own
// ancestors are excluded from the walk's output even if also reached
// from a pushed root.
func (w *Walker) Hide(oid hash.OID) { w.hidden = append(w.hidden, oid) }

// WithCancel installs a cancellation signal, polled between yielded
// items (spec.md §5 "Cancellation").
func (w *Walker) WithCancel(cancel <-chan struct{}) *Walker {
	w.cancel = cancel
	return w
}

// commitState tracks the per-OID bits the traversal needs: whether a
// commit has already been enqueued (added), already been yielded or
// otherwise finished (seen), and whether it is currently marked
// uninteresting (spec.md §4.8 "a uninteresting-propagation step
// ensures that once a commit is uninteresting, its ancestors become
// uninteresting on extraction").
type commitState struct {
	added         bool
	seen          bool
	uninteresting bool
}

// Walk runs the traversal, calling fn once per yielded commit in the
// configured order. fn's boolean return stops the walk early when
// false, mirroring how a caller like `git log -n 1` only wants the
// first match.
func (w *Walker) Walk(fn func(hash.OID, *object.Commit) (bool, error)) error {
	switch w.opts.Order {
	case Reverse, Topo:
		var collected []hash.OID
		commits := map[hash.OID]*object.Commit{}
		if err := w.dateWalk(func(oid hash.OID, c *object.Commit) (bool, error) {
			collected = append(collected, oid)
			commits[oid] = c
			return true, nil
		}); err != nil {
			return err
		}
		ordered := collected
		if w.opts.Order == Topo {
			var err error
			ordered, err = topoSort(collected, commits, w.source, w.opts.FirstParentOnly)
			if err != nil {
				return err
			}
		} else {
			ordered = reversed(collected)
		}
		for _, oid := range ordered {
			cont, err := fn(oid, commits[oid])
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	default:
		return w.dateWalk(fn)
	}
}

// dateWalk is the core traversal spec.md §4.8 "Traversal" describes:
// a date-ordered priority queue seeded with every pushed and hidden
// OID, each dequeue yielding (unless uninteresting or filtered) and
// pushing that commit's parents, inheriting its uninteresting flag.
func (w *Walker) dateWalk(fn func(hash.OID, *object.Commit) (bool, error)) error {
	states := map[hash.OID]*commitState{}
	queue := newDateQueue()

	stateFor := func(oid hash.OID) *commitState {
		st, ok := states[oid]
		if !ok {
			st = &commitState{}
			states[oid] = st
		}
		return st
	}

	enqueue := func(oid hash.OID, uninteresting bool) error {
		st := stateFor(oid)
		if uninteresting && !st.uninteresting {
			st.uninteresting = true
		}
		if st.added {
			return nil
		}
		st.added = true
		c, err := w.source.Commit(oid)
		if err != nil {
			return err
		}
		sig, err := c.Committer()
		if err != nil {
			return err
		}
		queue.push(oid, sig.When)
		return nil
	}

	for _, oid := range w.hidden {
		if err := enqueue(oid, true); err != nil {
			return err
		}
	}
	for _, oid := range w.roots {
		if err := enqueue(oid, false); err != nil {
			return err
		}
	}

	algo := hash.SHA1
	for _, oid := range append(append([]hash.OID{}, w.roots...), w.hidden...) {
		algo = oid.Algorithm()
		break
	}

	for !queue.empty() {
		if w.canceled() {
			return nil
		}
		item, ok := queue.pop()
		if !ok {
			break
		}
		oid := item.oid
		st := stateFor(oid)
		if st.seen {
			continue
		}
		st.seen = true

		c, err := w.source.Commit(oid)
		if err != nil {
			return err
		}

		if !st.uninteresting && !w.filtered(c) {
			if !w.opts.Since.IsZero() && item.when.Before(w.opts.Since) {
				// Past the --since boundary: stop descending from
				// here, matching git's own early-termination.
				continue
			}
			cont, err := fn(oid, c)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}

		parents, err := c.ParentOIDs(algo)
		if err != nil {
			return err
		}
		if w.opts.FirstParentOnly && len(parents) > 1 {
			parents = parents[:1]
		}
		for _, p := range parents {
			if err := enqueue(p, st.uninteresting); err != nil {
				return err
			}
		}
	}
	return nil
}

// filtered reports whether c should be excluded from yielding by the
// AuthorFilter/MessageGrep/Until options, independent of
// interestingness.
func (w *Walker) filtered(c *object.Commit) bool {
	if w.opts.AuthorFilter != nil {
		author, err := c.Author()
		if err != nil || !w.opts.AuthorFilter(author) {
			return true
		}
	}
	if w.opts.MessageGrep != nil && !w.opts.MessageGrep(c.Message) {
		return true
	}
	if !w.opts.Until.IsZero() {
		committer, err := c.Committer()
		if err != nil || committer.When.After(w.opts.Until) {
			return true
		}
	}
	return false
}

func (w *Walker) canceled() bool {
	if w.cancel == nil {
		return false
	}
	select {
	case <-w.cancel:
		return true
	default:
		return false
	}
}

func reversed(oids []hash.OID) []hash.OID {
	out := make([]hash.OID, len(oids))
	for i, oid := range oids {
		out[len(oids)-1-i] = oid
	}
	return out
}
