package hash

import "sort"

// Sort sorts a slice of OIDs in increasing order, matching
// plumbing/hash/sort.go's ObjectIDs in the teacher.
func Sort(oids []OID) {
	sort.Sort(OIDSlice(oids))
}

// OIDSlice attaches sort.Interface to []OID.
type OIDSlice []OID

func (p OIDSlice) Len() int           { return len(p) }
func (p OIDSlice) Less(i, j int) bool { return p[i].Compare(p[j]) < 0 }
func (p OIDSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// Set is a simple hash set of OIDs.
type Set map[OID]struct{}

// NewSet builds a Set from the given OIDs.
func NewSet(oids ...OID) Set {
	s := make(Set, len(oids))
	for _, o := range oids {
		s[o] = struct{}{}
	}
	return s
}

func (s Set) Add(o OID)      { s[o] = struct{}{} }
func (s Set) Has(o OID) bool { _, ok := s[o]; return ok }
func (s Set) Remove(o OID)   { delete(s, o) }

// SortedOIDs is a sorted array of OIDs supporting prefix search. The sort
// is performed lazily, on first lookup, matching spec.md §4.1's "OID
// collections" contract.
type SortedOIDs struct {
	oids   []OID
	sorted bool
}

// NewSortedOIDs wraps a (not necessarily sorted) slice. The backing slice
// is retained, not copied.
func NewSortedOIDs(oids []OID) *SortedOIDs {
	return &SortedOIDs{oids: oids}
}

func (s *SortedOIDs) ensureSorted() {
	if s.sorted {
		return
	}
	Sort(s.oids)
	s.sorted = true
}

// Len returns the number of OIDs.
func (s *SortedOIDs) Len() int { return len(s.oids) }

// Find returns the index of oid and true if present.
func (s *SortedOIDs) Find(oid OID) (int, bool) {
	s.ensureSorted()
	i := sort.Search(len(s.oids), func(i int) bool { return s.oids[i].Compare(oid) >= 0 })
	if i < len(s.oids) && s.oids[i].Equal(oid) {
		return i, true
	}
	return i, false
}

// PrefixSearch returns every OID whose bytes start with prefix. Because
// the slice is sorted, all matches are contiguous and this runs in
// O(log n + k): binary search finds the first OID not less than prefix,
// then a linear scan collects the contiguous run that still has it.
func (s *SortedOIDs) PrefixSearch(prefix []byte) []OID {
	s.ensureSorted()
	lo := sort.Search(len(s.oids), func(i int) bool {
		return bytesCompare(s.oids[i].Bytes(), prefix) >= 0
	})
	var out []OID
	for i := lo; i < len(s.oids) && s.oids[i].HasPrefix(prefix); i++ {
		out = append(out, s.oids[i])
	}
	return out
}

// bytesCompare compares a against prefix using only len(prefix) bytes of
// a, so a sorted-OID binary search can locate the start of a prefix run
// even when prefix is shorter than a full OID.
func bytesCompare(a, prefix []byte) int {
	n := len(prefix)
	if n > len(a) {
		n = len(a)
	}
	for i := 0; i < n; i++ {
		if a[i] != prefix[i] {
			if a[i] < prefix[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
