package revwalk

import "github.com/basincore/gitkernel/hash"

// generationFlag marks, during merge-base's two-generation-bit
// algorithm, which side(s) of the pair a commit was reached from
// (spec.md §4.8 "merge-base").
type generationFlag uint8

const (
	flagA generationFlag = 1 << iota
	flagB
	flagResult
)

// mergeBaseWalker carries the shared state a merge-base computation
// needs: a Source to expand parents, and each commit's accumulated
// flags plus whether it has already been enqueued.
type mergeBaseWalker struct {
	source Source
	flags  map[hash.OID]generationFlag
	added  map[hash.OID]bool
}

// MergeBase returns the best common ancestors of a and b: commits
// reachable from both that are not themselves ancestors of another
// common ancestor (spec.md §4.8 "merge-base"). It walks both commits'
// histories together in date order, tagging each visited commit with
// which side(s) reached it; a commit tagged by both sides is a common
// ancestor, and once found, its own ancestors are marked flagResult so
// they are excluded from the final answer even if independently
// reachable from both sides.
func MergeBase(source Source, a, b hash.OID) ([]hash.OID, error) {
	return mergeBaseMulti(source, []hash.OID{a}, []hash.OID{b})
}

// MergeBaseOctopus extends MergeBase to more than two tips by folding
// them in pairwise: the running set of best common ancestors of the
// tips seen so far stands in for the next pairwise merge-base call
// (spec.md §4.8 "merge-base, octopus variant").
func MergeBaseOctopus(source Source, oids ...hash.OID) ([]hash.OID, error) {
	if len(oids) == 0 {
		return nil, nil
	}
	running := []hash.OID{oids[0]}
	for _, next := range oids[1:] {
		bases, err := mergeBaseMulti(source, running, []hash.OID{next})
		if err != nil {
			return nil, err
		}
		if len(bases) == 0 {
			return nil, nil
		}
		running = bases
	}
	return running, nil
}

func mergeBaseMulti(source Source, as, bs []hash.OID) ([]hash.OID, error) {
	w := &mergeBaseWalker{source: source, flags: map[hash.OID]generationFlag{}, added: map[hash.OID]bool{}}
	queue := newDateQueue()

	seed := func(oid hash.OID, flag generationFlag) error {
		w.flags[oid] |= flag
		if w.added[oid] {
			return nil
		}
		w.added[oid] = true
		c, err := source.Commit(oid)
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

	for _, oid := range as {
		if err := seed(oid, flagA); err != nil {
			return nil, err
		}
	}
	for _, oid := range bs {
		if err := seed(oid, flagB); err != nil {
			return nil, err
		}
	}

	var results []hash.OID
	algo := hash.SHA1
	if len(as) > 0 {
		algo = as[0].Algorithm()
	} else if len(bs) > 0 {
		algo = bs[0].Algorithm()
	}

	for !queue.empty() {
		item, ok := queue.pop()
		if !ok {
			break
		}
		oid := item.oid
		flag := w.flags[oid]

		if flag&(flagA|flagB) == (flagA|flagB) && flag&flagResult == 0 {
			flag |= flagResult
			w.flags[oid] = flag
			results = append(results, oid)
		}

		c, err := source.Commit(oid)
		if err != nil {
			return nil, err
		}
		parents, err := c.ParentOIDs(algo)
		if err != nil {
			return nil, err
		}
		propagate := flag
		if flag&flagResult != 0 {
			// Once a commit is confirmed a common ancestor, its own
			// ancestors are common ancestors of a common ancestor:
			// not "best", so tag them out of the final answer.
			propagate |= flagResult
		}
		for _, p := range parents {
			if w.flags[p]&propagate == propagate && w.added[p] {
				continue
			}
			if err := seed(p, propagate); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

// IsAncestor reports whether candidate is an ancestor of (or equal to)
// target, short-circuiting the walk the moment candidate is reached
// rather than exhausting the whole graph (spec.md §4.8 "is_ancestor").
func IsAncestor(source Source, candidate, target hash.OID) (bool, error) {
	if candidate.Equal(target) {
		return true, nil
	}
	seen := hash.NewSet()
	queue := []hash.OID{target}
	algo := target.Algorithm()
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if oid.Equal(candidate) {
			return true, nil
		}
		if seen.Has(oid) {
			continue
		}
		seen.Add(oid)
		c, err := source.Commit(oid)
		if err != nil {
			return false, err
		}
		parents, err := c.ParentOIDs(algo)
		if err != nil {
			return false, err
		}
		queue = append(queue, parents...)
	}
	return false, nil
}
