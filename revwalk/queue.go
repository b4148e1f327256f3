package revwalk

import (
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/emirpasic/gods/utils"

	"github.com/basincore/gitkernel/hash"
)

// queueItem is one entry of the traversal priority queue: a commit
// plus the timestamp it is ordered by and a monotonically increasing
// insertion counter that breaks ties, so two commits sharing a
// timestamp come out in the order they were pushed (spec.md §4.8
// "Queue... stable: ties broken by insertion counter").
type queueItem struct {
	oid  hash.OID
	when time.Time
	seq  int64
}

// dateQueue is a min-heap over *negated* commit time, so popping the
// heap's minimum yields the most recent commit first — git's default
// date-order traversal — while the underlying structure is the
// ordinary binary min-heap spec.md §4.8 names.
type dateQueue struct {
	heap *binaryheap.Heap
	next int64
}

func newDateQueue() *dateQueue {
	comparator := func(a, b interface{}) int {
		ia, ib := a.(queueItem), b.(queueItem)
		switch {
		case ia.when.After(ib.when):
			return -1
		case ia.when.Before(ib.when):
			return 1
		case ia.seq < ib.seq:
			return -1
		case ia.seq > ib.seq:
			return 1
		default:
			return 0
		}
	}
	return &dateQueue{heap: binaryheap.NewWith(utils.Comparator(comparator))}
}

func (q *dateQueue) push(oid hash.OID, when time.Time) {
	q.heap.Push(queueItem{oid: oid, when: when, seq: q.next})
	q.next++
}

func (q *dateQueue) pop() (queueItem, bool) {
	v, ok := q.heap.Pop()
	if !ok {
		return queueItem{}, false
	}
	return v.(queueItem), true
}

func (q *dateQueue) empty() bool { return q.heap.Empty() }

// lifoQueue is the LIFO variant spec.md §4.8 calls out for topological
// ordering: a plain stack, since topo order is produced by a
// readiness pass (see toposort.go) that needs last-pushed-first-
// popped semantics rather than date ordering.
type lifoQueue struct {
	items []hash.OID
}

func (q *lifoQueue) push(oid hash.OID) { q.items = append(q.items, oid) }

func (q *lifoQueue) pop() (hash.OID, bool) {
	if len(q.items) == 0 {
		return hash.OID{}, false
	}
	n := len(q.items) - 1
	oid := q.items[n]
	q.items = q.items[:n]
	return oid, true
}

func (q *lifoQueue) empty() bool { return len(q.items) == 0 }
