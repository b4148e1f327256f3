package revwalk

import (
	"sort"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// topoSort reorders a date-walked result set so no child commit
// appears after its parent, breaking ties between simultaneously
// ready commits by commit time (spec.md §4.8 "topological (no child
// before parent, chronology otherwise)"). It uses the LIFO queue
// variant spec.md §4.8 calls out: commits become "ready" once every
// child of theirs within the set has already been emitted, and the
// ready set is popped last-in-first-out, with each newly-ready batch
// pushed in ascending commit-time order so the most recent of a batch
// is the next one popped.
func topoSort(oids []hash.OID, commits map[hash.OID]*object.Commit, source Source, firstParentOnly bool) ([]hash.OID, error) {
	inSet := hash.NewSet(oids...)

	algo := hash.SHA1
	for _, oid := range oids {
		algo = oid.Algorithm()
		break
	}

	parentsOf := map[hash.OID][]hash.OID{}
	childCount := map[hash.OID]int{}
	for _, oid := range oids {
		childCount[oid] = 0
	}
	for _, oid := range oids {
		c := commits[oid]
		parents, err := c.ParentOIDs(algo)
		if err != nil {
			return nil, err
		}
		if firstParentOnly && len(parents) > 1 {
			parents = parents[:1]
		}
		var inSetParents []hash.OID
		for _, p := range parents {
			if inSet.Has(p) {
				inSetParents = append(inSetParents, p)
				childCount[p]++
			}
		}
		parentsOf[oid] = inSetParents
	}

	commitTime := func(oid hash.OID) (int64, error) {
		sig, err := commits[oid].Committer()
		if err != nil {
			return 0, err
		}
		return sig.When.Unix(), nil
	}

	var stack lifoQueue
	var initialReady []hash.OID
	for _, oid := range oids {
		if childCount[oid] == 0 {
			initialReady = append(initialReady, oid)
		}
	}
	sortAscendingByTime(initialReady, commitTime)
	for _, oid := range initialReady {
		stack.push(oid)
	}

	out := make([]hash.OID, 0, len(oids))
	emitted := hash.NewSet()
	for !stack.empty() {
		oid, ok := stack.pop()
		if !ok {
			break
		}
		if emitted.Has(oid) {
			continue
		}
		emitted.Add(oid)
		out = append(out, oid)

		var newlyReady []hash.OID
		for _, p := range parentsOf[oid] {
			childCount[p]--
			if childCount[p] == 0 {
				newlyReady = append(newlyReady, p)
			}
		}
		sortAscendingByTime(newlyReady, commitTime)
		for _, p := range newlyReady {
			stack.push(p)
		}
	}

	return out, nil
}

func sortAscendingByTime(oids []hash.OID, timeOf func(hash.OID) (int64, error)) {
	sort.SliceStable(oids, func(i, j int) bool {
		ti, _ := timeOf(oids[i])
		tj, _ := timeOf(oids[j])
		return ti < tj
	})
}
