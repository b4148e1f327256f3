package pack

import (
	"io"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// Source is one object to be packed: its OID, type, and fully
// materialized content. Pack generation operates on whole objects; the
// caller (typically revwalk's object enumeration) is responsible for
// resolving which objects belong in the pack.
type Source struct {
	OID     hash.OID
	Type    object.Type
	Content []byte
}

// GenerateOptions bounds the cost of delta compression during pack
// generation: how many recent same-type candidates to consider as a
// delta base (the "window") and how long a resulting delta chain may
// grow (the "depth"), trading pack size against CPU time.
type GenerateOptions struct {
	// Window is how many preceding same-type objects are tried as a
	// delta base for each new object. 0 disables delta compression
	// entirely (every object is stored whole).
	Window int
	// MaxDepth caps how many deltas may chain before a base is forced to
	// be stored whole, independent of the hard MaxDeltaChainDepth read
	// limit.
	MaxDepth int
}

// DefaultGenerateOptions matches git's own default pack.window (10) and
// pack.depth (50).
var DefaultGenerateOptions = GenerateOptions{Window: 10, MaxDepth: 50}

// GeneratePack writes sources to w as a packfile, returning the
// WrittenEntry records needed to build a matching .idx via BuildIndex.
// When opts.Window > 0, each object is greedily delta-compressed
// against up to Window preceding objects of the same type within the
// candidate's chain-depth budget; the smallest of the whole-object
// encoding and any found delta is kept.
func GeneratePack(w io.Writer, algo hash.Algorithm, sources []Source, opts GenerateOptions) (hash.OID, []WrittenEntry, error) {
	pw, err := NewWriter(w, algo, uint32(len(sources)))
	if err != nil {
		return hash.OID{}, nil, err
	}

	type candidate struct {
		offset int64
		typ    object.Type
		depth  int
		content []byte
	}
	var recent []candidate

	for _, src := range sources {
		best := -1
		bestDelta := []byte(nil)
		bestDepth := 0
		if opts.Window > 0 {
			start := 0
			if len(recent) > opts.Window {
				start = len(recent) - opts.Window
			}
			for i := len(recent) - 1; i >= start; i-- {
				c := recent[i]
				if c.typ != src.Type || c.depth >= opts.MaxDepth {
					continue
				}
				delta := EncodeDelta(c.content, src.Content)
				if len(delta) < len(src.Content) && (best < 0 || len(delta) < len(bestDelta)) {
					best = i
					bestDelta = delta
					bestDepth = c.depth + 1
				}
			}
		}

		var offset int64
		if best >= 0 {
			offset = pw.offset
			if err := pw.PutOFSDelta(src.OID, recent[best].offset, bestDelta); err != nil {
				return hash.OID{}, nil, err
			}
		} else {
			offset = pw.offset
			if err := pw.Put(src.OID, src.Type, src.Content); err != nil {
				return hash.OID{}, nil, err
			}
			bestDepth = 0
		}

		recent = append(recent, candidate{offset: offset, typ: src.Type, depth: bestDepth, content: src.Content})
	}

	sum, err := pw.Finish()
	if err != nil {
		return hash.OID{}, nil, err
	}
	return sum, pw.Written(), nil
}
