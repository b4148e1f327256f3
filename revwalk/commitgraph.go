package revwalk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// CommitGraphMagic is the 4-byte signature of a commit-graph file
// (spec.md §4.8 "Commit-graph file").
var CommitGraphMagic = [4]byte{'C', 'G', 'P', 'H'}

// CommitGraphVersion is the only commit-graph file version this
// package reads or writes.
const CommitGraphVersion = 1

// ErrBadCommitGraph is returned for a structurally invalid
// commit-graph file.
var ErrBadCommitGraph = errors.New("revwalk: malformed commit-graph")

const (
	chunkOIDFanout  = "OIDF"
	chunkOIDLookup  = "OIDL"
	chunkCommitData = "CDAT"
	chunkExtraEdges = "EDGE"
)

// noParent marks an absent parent slot in a CommitGraphEntry.
const noParent = 0x7fffffff

// extraEdgeFlag marks a CDAT second-parent slot as an index into the
// EDGE chunk rather than a direct parent position, used for commits
// with more than two parents (octopus merges).
const extraEdgeFlag = 0x80000000

// CommitGraphEntry is one commit's accelerator record: enough to walk
// and prune reachability without parsing the commit object itself.
type CommitGraphEntry struct {
	OID        hash.OID
	TreeOID    hash.OID
	ParentOIDs []hash.OID
	Generation uint32
	CommitTime int64
}

// CommitGraph is a parsed commit-graph accelerator file: a sorted OID
// table with fan-out, each entry carrying its tree, parents,
// generation number, and commit time (spec.md §4.8 "Commit-graph
// file"). Lookups bypass decoding the underlying commit object.
type CommitGraph struct {
	Algo    hash.Algorithm
	Entries []CommitGraphEntry
	fanout  *hash.FanoutTable
	byOID   map[hash.OID]int
}

// Find returns the entry for oid, or false if the graph does not
// cover it.
func (g *CommitGraph) Find(oid hash.OID) (CommitGraphEntry, bool) {
	i, ok := g.byOID[oid]
	if !ok {
		return CommitGraphEntry{}, false
	}
	return g.Entries[i], true
}

// IsAncestorFast reports whether candidate is an ancestor of target
// using generation numbers to prune the search: if gen(candidate) >
// gen(target), candidate cannot reach target and the walk exits
// immediately without touching the object database (spec.md §4.8
// "Generation numbers enable fast reachability").
func (g *CommitGraph) IsAncestorFast(candidate, target hash.OID) (bool, bool) {
	ce, ok := g.Find(candidate)
	if !ok {
		return false, false
	}
	te, ok := g.Find(target)
	if !ok {
		return false, false
	}
	if ce.Generation > te.Generation {
		return false, true
	}
	seen := hash.NewSet()
	queue := []hash.OID{target}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if oid.Equal(candidate) {
			return true, true
		}
		if seen.Has(oid) {
			continue
		}
		seen.Add(oid)
		e, ok := g.Find(oid)
		if !ok {
			return false, false
		}
		if e.Generation < ce.Generation {
			continue
		}
		queue = append(queue, e.ParentOIDs...)
	}
	return false, true
}

// BuildCommitGraph computes generation numbers and assembles a
// CommitGraph over the given commits, resolved through source.
// Generation is 1 plus the maximum generation of a commit's parents
// (0 for a root commit), the monotone quantity the file format exists
// to cache so reachability pruning never needs to touch the object
// database.
func BuildCommitGraph(source Source, oids []hash.OID) (*CommitGraph, error) {
	algo := hash.SHA1
	if len(oids) > 0 {
		algo = oids[0].Algorithm()
	}

	type node struct {
		oid     hash.OID
		c       *object.Commit
		parents []hash.OID
	}
	nodes := map[hash.OID]*node{}
	var order []hash.OID

	var visit func(oid hash.OID) error
	visit = func(oid hash.OID) error {
		if _, ok := nodes[oid]; ok {
			return nil
		}
		c, err := source.Commit(oid)
		if err != nil {
			return err
		}
		parents, err := c.ParentOIDs(algo)
		if err != nil {
			return err
		}
		nodes[oid] = &node{oid: oid, c: c, parents: parents}
		order = append(order, oid)
		for _, p := range parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, oid := range oids {
		if err := visit(oid); err != nil {
			return nil, err
		}
	}

	generation := map[hash.OID]uint32{}
	var genOf func(oid hash.OID) uint32
	genOf = func(oid hash.OID) uint32 {
		if g, ok := generation[oid]; ok {
			return g
		}
		n := nodes[oid]
		var max uint32
		for _, p := range n.parents {
			if g := genOf(p); g+1 > max {
				max = g + 1
			}
		}
		generation[oid] = max
		return max
	}

	entries := make([]CommitGraphEntry, 0, len(order))
	for _, oid := range order {
		n := nodes[oid]
		tree, err := n.c.TreeOID(algo)
		if err != nil {
			return nil, err
		}
		sig, err := n.c.Committer()
		if err != nil {
			return nil, err
		}
		entries = append(entries, CommitGraphEntry{
			OID:        oid,
			TreeOID:    tree,
			ParentOIDs: n.parents,
			Generation: genOf(oid),
			CommitTime: sig.When.Unix(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OID.Compare(entries[j].OID) < 0 })

	return newCommitGraph(algo, entries), nil
}

func newCommitGraph(algo hash.Algorithm, entries []CommitGraphEntry) *CommitGraph {
	firstBytes := make([]byte, len(entries))
	byOID := make(map[hash.OID]int, len(entries))
	for i, e := range entries {
		firstBytes[i] = e.OID.FanoutByte()
		byOID[e.OID] = i
	}
	return &CommitGraph{
		Algo:    algo,
		Entries: entries,
		fanout:  hash.BuildFanout(firstBytes),
		byOID:   byOID,
	}
}

// WriteCommitGraph serializes g in the OIDF/OIDL/CDAT/EDGE chunked
// layout spec.md §4.8 names, modeled on the multi-pack-index's chunk
// table (pack/midx.go).
func WriteCommitGraph(w io.Writer, g *CommitGraph) error {
	n := len(g.Entries)
	size := g.Algo.Size()

	indexOf := make(map[hash.OID]uint32, n)
	for i, e := range g.Entries {
		indexOf[e.OID] = uint32(i)
	}

	fanoutBytes := make([]byte, hash.FanoutSize)
	if _, err := g.fanout.WriteTo(&byteBuf{buf: fanoutBytes}); err != nil {
		return err
	}

	lookup := make([]byte, 0, n*size)
	for _, e := range g.Entries {
		lookup = append(lookup, e.OID.Bytes()...)
	}

	var edges []byte
	cdat := make([]byte, 0, n*(size+16))
	for _, e := range g.Entries {
		cdat = append(cdat, e.TreeOID.Bytes()...)

		p1, p2 := uint32(noParent), uint32(noParent)
		switch len(e.ParentOIDs) {
		case 0:
		case 1:
			p1 = indexOf[e.ParentOIDs[0]]
		default:
			p1 = indexOf[e.ParentOIDs[0]]
			if len(e.ParentOIDs) == 2 {
				p2 = indexOf[e.ParentOIDs[1]]
			} else {
				p2 = extraEdgeFlag | uint32(len(edges)/4)
				for _, extra := range e.ParentOIDs[1:] {
					var buf [4]byte
					binary.BigEndian.PutUint32(buf[:], indexOf[extra])
					edges = append(edges, buf[:]...)
				}
				var term [4]byte
				binary.BigEndian.PutUint32(term[:], noParent)
				edges = append(edges, term[:]...)
			}
		}

		var rec [16]byte
		binary.BigEndian.PutUint32(rec[0:4], p1)
		binary.BigEndian.PutUint32(rec[4:8], p2)
		binary.BigEndian.PutUint32(rec[8:12], e.Generation)
		binary.BigEndian.PutUint32(rec[12:16], uint32(e.CommitTime))
		cdat = append(cdat, rec[:]...)
	}

	type chunk struct {
		id   string
		data []byte
	}
	chunks := []chunk{
		{chunkOIDFanout, fanoutBytes},
		{chunkOIDLookup, lookup},
		{chunkCommitData, cdat},
	}
	if len(edges) > 0 {
		chunks = append(chunks, chunk{chunkExtraEdges, edges})
	}

	if _, err := w.Write(CommitGraphMagic[:]); err != nil {
		return err
	}
	if err := writeByte(w, CommitGraphVersion); err != nil {
		return err
	}
	if err := writeByte(w, byte(algoID(g.Algo))); err != nil {
		return err
	}
	if err := writeByte(w, byte(len(chunks))); err != nil {
		return err
	}
	if err := writeByte(w, 0); err != nil { // base-graph count, always 0
		return err
	}

	headerLen := int64(8)
	tableLen := int64(len(chunks)+1) * 12
	offset := headerLen + tableLen
	for _, c := range chunks {
		if _, err := w.Write([]byte(c.id)); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(offset)); err != nil {
			return err
		}
		offset += int64(len(c.data))
	}
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(offset)); err != nil {
		return err
	}

	for _, c := range chunks {
		if _, err := w.Write(c.data); err != nil {
			return err
		}
	}
	return nil
}

// ReadCommitGraph parses a commit-graph file.
func ReadCommitGraph(r io.Reader) (*CommitGraph, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCommitGraph, err)
	}
	if hdr[0] != CommitGraphMagic[0] || hdr[1] != CommitGraphMagic[1] || hdr[2] != CommitGraphMagic[2] || hdr[3] != CommitGraphMagic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrBadCommitGraph)
	}
	if hdr[4] != CommitGraphVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadCommitGraph, hdr[4])
	}
	algo := hash.SHA1
	if hdr[5] == 2 {
		algo = hash.SHA256
	}
	numChunks := int(hdr[6])

	type tableEntry struct {
		id     [4]byte
		offset uint64
	}
	table := make([]tableEntry, numChunks+1)
	for i := range table {
		var buf [12]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: chunk table: %v", ErrBadCommitGraph, err)
		}
		copy(table[i].id[:], buf[0:4])
		table[i].offset = binary.BigEndian.Uint64(buf[4:12])
	}

	chunkData := make(map[string][]byte, numChunks)
	for i := 0; i < numChunks; i++ {
		n := table[i+1].offset - table[i].offset
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", ErrBadCommitGraph, table[i].id, err)
		}
		chunkData[string(table[i].id[:])] = buf
	}

	fanoutBytes := chunkData[chunkOIDFanout]
	fanout, err := hash.ReadFanout(&byteBuf{buf: fanoutBytes, reading: true})
	if err != nil {
		return nil, err
	}
	n := int(fanout.Total())

	lookup := chunkData[chunkOIDLookup]
	size := algo.Size()
	oids := make([]hash.OID, n)
	for i := 0; i < n; i++ {
		oid, err := hash.FromBytes(algo, lookup[i*size:(i+1)*size])
		if err != nil {
			return nil, err
		}
		oids[i] = oid
	}

	edges := chunkData[chunkExtraEdges]
	cdat := chunkData[chunkCommitData]
	recSize := size + 16
	entries := make([]CommitGraphEntry, n)
	for i := 0; i < n; i++ {
		rec := cdat[i*recSize : (i+1)*recSize]
		tree, err := hash.FromBytes(algo, rec[:size])
		if err != nil {
			return nil, err
		}
		p1 := binary.BigEndian.Uint32(rec[size : size+4])
		p2 := binary.BigEndian.Uint32(rec[size+4 : size+8])
		gen := binary.BigEndian.Uint32(rec[size+8 : size+12])
		ts := binary.BigEndian.Uint32(rec[size+12 : size+16])

		var parents []hash.OID
		if p1 != noParent {
			parents = append(parents, oids[p1])
		}
		switch {
		case p2 == noParent:
		case p2&extraEdgeFlag != 0:
			idx := (p2 &^ extraEdgeFlag) * 4
			for {
				pi := binary.BigEndian.Uint32(edges[idx : idx+4])
				if pi == noParent {
					break
				}
				parents = append(parents, oids[pi])
				idx += 4
			}
		default:
			parents = append(parents, oids[p2])
		}

		entries[i] = CommitGraphEntry{
			OID:        oids[i],
			TreeOID:    tree,
			ParentOIDs: parents,
			Generation: gen,
			CommitTime: int64(ts),
		}
	}

	return newCommitGraph(algo, entries), nil
}

func algoID(a hash.Algorithm) int {
	if a == hash.SHA256 {
		return 2
	}
	return 1
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// byteBuf adapts a fixed-size byte slice to both io.Writer (for
// FanoutTable.WriteTo) and io.Reader (for hash.ReadFanout) when the
// source or destination is an in-memory buffer rather than a stream.
type byteBuf struct {
	buf     []byte
	reading bool
}

func (b *byteBuf) Write(p []byte) (int, error) {
	n := copy(b.buf, p)
	return n, nil
}

func (b *byteBuf) Read(p []byte) (int, error) {
	n := copy(p, b.buf)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	b.buf = b.buf[n:]
	return n, nil
}
