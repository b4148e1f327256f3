// Package revwalk implements reachability traversal over the commit
// graph: priority-queue-ordered walks, merge-base computation, the
// commit-graph accelerator file, and filtered object enumeration for
// partial clones (spec.md §4.8).
package revwalk

import (
	"errors"
	"fmt"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// ErrNotACommit is returned when a source's lookup finds an object at
// the requested OID, but it isn't a commit.
var ErrNotACommit = errors.New("revwalk: not a commit")

// Source resolves a commit's parsed form by OID. A Walker neither
// knows nor cares whether that lookup is served by the object
// database, a commit-graph accelerator, or a test fixture.
type Source interface {
	Commit(oid hash.OID) (*object.Commit, error)
}

// ObjectReader is the subset of odb.DB a Source needs: type plus raw
// content for one OID. Kept narrow so this package does not import
// odb directly, avoiding a dependency cycle should odb ever want to
// use revwalk (it doesn't today, but the abstraction costs nothing).
type ObjectReader interface {
	Read(oid hash.OID) (object.Type, []byte, error)
}

type odbSource struct {
	reader ObjectReader
}

// NewSource adapts an ObjectReader (typically an *odb.DB) into a
// Source, decoding each lookup's raw bytes as a commit.
func NewSource(reader ObjectReader) Source {
	return &odbSource{reader: reader}
}

func (s *odbSource) Commit(oid hash.OID) (*object.Commit, error) {
	typ, content, err := s.reader.Read(oid)
	if err != nil {
		return nil, err
	}
	if typ != object.CommitType {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotACommit, oid, typ)
	}
	return object.DecodeCommit(content)
}
