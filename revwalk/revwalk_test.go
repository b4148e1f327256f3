package revwalk

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// fakeSource is an in-memory Source backed by a map, used so revwalk's
// tests can build small synthetic commit graphs without an object
// database.
type fakeSource struct {
	commits map[hash.OID]*object.Commit
	next    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{commits: map[hash.OID]*object.Commit{}}
}

func (s *fakeSource) Commit(oid hash.OID) (*object.Commit, error) {
	c, ok := s.commits[oid]
	if !ok {
		return nil, ErrNotACommit
	}
	return c, nil
}

var zeroTree = hash.Zero(hash.SHA1)

// add builds a commit with a message that includes a counter, so two
// commits sharing the same parents and timestamp (a common shape in
// these fixtures) still hash to distinct OIDs.
func (s *fakeSource) add(t *testing.T, when time.Time, parents ...hash.OID) hash.OID {
	sig := object.Signature{Name: "tester", Email: "tester@example.com", When: when}
	s.next++
	c := object.NewCommit(zeroTree, parents, sig, sig, "commit #"+string(rune('a'+s.next)))
	oid, err := object.Hash(hash.SHA1, c)
	require.NoError(t, err)
	s.commits[oid] = c
	return oid
}

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func collect(t *testing.T, w *Walker) []hash.OID {
	var out []hash.OID
	require.NoError(t, w.Walk(func(oid hash.OID, c *object.Commit) (bool, error) {
		out = append(out, oid)
		return true, nil
	}))
	return out
}

// Linear history: root(t=1) -> mid(t=2) -> head(t=3).
func linearHistory(t *testing.T) (*fakeSource, hash.OID, hash.OID, hash.OID) {
	s := newFakeSource()
	root := s.add(t, at(1))
	mid := s.add(t, at(2), root)
	head := s.add(t, at(3), mid)
	return s, root, mid, head
}

func TestWalkDateOrder(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	w := New(s, Options{Order: DateOrder})
	w.Push(head)
	assert.Equal(t, []hash.OID{head, mid, root}, collect(t, w))
}

func TestWalkReverse(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	w := New(s, Options{Order: Reverse})
	w.Push(head)
	assert.Equal(t, []hash.OID{root, mid, head}, collect(t, w))
}

func TestWalkHideExcludesAncestors(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	w := New(s, Options{Order: DateOrder})
	w.Push(head)
	w.Hide(mid)
	assert.Equal(t, []hash.OID{head}, collect(t, w))
	_ = root
}

func TestWalkFirstParentOnly(t *testing.T) {
	s := newFakeSource()
	root := s.add(t, at(1))
	side := s.add(t, at(2), root)
	main := s.add(t, at(2), root)
	merge := s.add(t, at(3), main, side)

	w := New(s, Options{Order: DateOrder, FirstParentOnly: true})
	w.Push(merge)
	got := collect(t, w)
	assert.Equal(t, []hash.OID{merge, main, root}, got)
}

func TestWalkSinceStopsDescending(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	w := New(s, Options{Order: DateOrder, Since: at(2)})
	w.Push(head)
	got := collect(t, w)
	assert.Equal(t, []hash.OID{head, mid}, got)
	_ = root
}

func TestWalkUntilFiltersYield(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	w := New(s, Options{Order: DateOrder, Until: at(2)})
	w.Push(head)
	got := collect(t, w)
	assert.Equal(t, []hash.OID{mid, root}, got)
}

func TestWalkTopoOrderRespectsParentEdges(t *testing.T) {
	s := newFakeSource()
	root := s.add(t, at(1))
	a := s.add(t, at(5), root)
	b := s.add(t, at(2), root)
	merge := s.add(t, at(10), a, b)

	w := New(s, Options{Order: Topo})
	w.Push(merge)
	got := collect(t, w)
	require.Len(t, got, 4)
	pos := map[hash.OID]int{}
	for i, oid := range got {
		pos[oid] = i
	}
	assert.Less(t, pos[merge], pos[a])
	assert.Less(t, pos[merge], pos[b])
	assert.Less(t, pos[a], pos[root])
	assert.Less(t, pos[b], pos[root])
}

func TestWalkCancellation(t *testing.T) {
	s, _, _, head := linearHistory(t)
	cancel := make(chan struct{})
	close(cancel)
	w := New(s, Options{Order: DateOrder}).WithCancel(cancel)
	w.Push(head)
	got := collect(t, w)
	assert.Empty(t, got)
}

func TestMergeBase(t *testing.T) {
	s := newFakeSource()
	root := s.add(t, at(1))
	a := s.add(t, at(2), root)
	b := s.add(t, at(2), root)
	tipA := s.add(t, at(3), a)
	tipB := s.add(t, at(3), b)

	bases, err := MergeBase(s, tipA, tipB)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.True(t, bases[0].Equal(root))
}

func TestMergeBaseDiscardsNonBest(t *testing.T) {
	s := newFakeSource()
	root := s.add(t, at(1))
	mid := s.add(t, at(2), root)
	a := s.add(t, at(3), mid)
	b := s.add(t, at(3), mid)

	bases, err := MergeBase(s, a, b)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.True(t, bases[0].Equal(mid), "root is an ancestor of the best common ancestor mid and must not appear")
}

func TestIsAncestor(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	ok, err := IsAncestor(s, root, head)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsAncestor(s, head, root)
	require.NoError(t, err)
	assert.False(t, ok)
	_ = mid
}

func TestBuildAndRoundTripCommitGraph(t *testing.T) {
	s, root, mid, head := linearHistory(t)
	g, err := BuildCommitGraph(s, []hash.OID{head})
	require.NoError(t, err)

	rootEntry, ok := g.Find(root)
	require.True(t, ok)
	assert.Equal(t, uint32(0), rootEntry.Generation)

	midEntry, ok := g.Find(mid)
	require.True(t, ok)
	assert.Equal(t, uint32(1), midEntry.Generation)

	headEntry, ok := g.Find(head)
	require.True(t, ok)
	assert.Equal(t, uint32(2), headEntry.Generation)

	buf := new(bufSink)
	require.NoError(t, WriteCommitGraph(buf, g))

	decoded, err := ReadCommitGraph(&readerFromBytes{b: buf.b})
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 3)
	e, ok := decoded.Find(head)
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.Generation)
	assert.True(t, e.ParentOIDs[0].Equal(mid))
}

func TestCommitGraphIsAncestorFast(t *testing.T) {
	s, root, _, head := linearHistory(t)
	g, err := BuildCommitGraph(s, []hash.OID{head})
	require.NoError(t, err)

	ok, decided := g.IsAncestorFast(root, head)
	assert.True(t, decided)
	assert.True(t, ok)

	ok, decided = g.IsAncestorFast(head, root)
	assert.True(t, decided)
	assert.False(t, ok)
}

type bufSink struct{ b []byte }

func (b *bufSink) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

type readerFromBytes struct{ b []byte }

func (r *readerFromBytes) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	r.b = r.b[n:]
	return n, nil
}

// fakeReader backs EnumerateObjects's ObjectReader dependency with an
// in-memory object map keyed by OID.
type fakeReader struct {
	objs map[hash.OID]fakeObj
}

type fakeObj struct {
	typ     object.Type
	content []byte
}

func (r *fakeReader) Read(oid hash.OID) (object.Type, []byte, error) {
	o, ok := r.objs[oid]
	if !ok {
		return object.InvalidType, nil, ErrNotACommit
	}
	return o.typ, o.content, nil
}

func TestEnumerateObjects(t *testing.T) {
	reader := &fakeReader{objs: map[hash.OID]fakeObj{}}

	blob := []byte("hello")
	blobOID, err := hash.HashObject(hash.SHA1, "blob", blob)
	require.NoError(t, err)
	reader.objs[blobOID] = fakeObj{typ: object.BlobType, content: blob}

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, OID: blobOID},
	}}
	treeContent, err := object.Serialize(tree)
	require.NoError(t, err)
	treeOID, err := hash.HashObject(hash.SHA1, "tree", treeContent)
	require.NoError(t, err)
	reader.objs[treeOID] = fakeObj{typ: object.TreeType, content: treeContent}

	s := newFakeSource()
	sig := object.Signature{Name: "tester", Email: "tester@example.com", When: at(1)}
	c := object.NewCommit(treeOID, nil, sig, sig, "msg")
	commitOID, err := object.Hash(hash.SHA1, c)
	require.NoError(t, err)
	s.commits[commitOID] = c

	got, err := EnumerateObjects(s, reader, []hash.OID{commitOID}, nil, EnumerateFilter{TreeDepth: -1})
	require.NoError(t, err)
	assert.True(t, got.Has(commitOID))
	assert.True(t, got.Has(treeOID))
	assert.True(t, got.Has(blobOID))
}

func TestEnumerateObjectsBlobNone(t *testing.T) {
	reader := &fakeReader{objs: map[hash.OID]fakeObj{}}
	blob := []byte("hello")
	blobOID, err := hash.HashObject(hash.SHA1, "blob", blob)
	require.NoError(t, err)
	reader.objs[blobOID] = fakeObj{typ: object.BlobType, content: blob}

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, OID: blobOID},
	}}
	treeContent, err := object.Serialize(tree)
	require.NoError(t, err)
	treeOID, err := hash.HashObject(hash.SHA1, "tree", treeContent)
	require.NoError(t, err)
	reader.objs[treeOID] = fakeObj{typ: object.TreeType, content: treeContent}

	s := newFakeSource()
	sig := object.Signature{Name: "tester", Email: "tester@example.com", When: at(1)}
	c := object.NewCommit(treeOID, nil, sig, sig, "msg")
	commitOID, err := object.Hash(hash.SHA1, c)
	require.NoError(t, err)
	s.commits[commitOID] = c

	got, err := EnumerateObjects(s, reader, []hash.OID{commitOID}, nil, EnumerateFilter{BlobNone: true, TreeDepth: -1})
	require.NoError(t, err)
	assert.True(t, got.Has(treeOID))
	assert.False(t, got.Has(blobOID))
}
