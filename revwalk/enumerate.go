package revwalk

import (
	"github.com/basincore/gitkernel/filemode"
	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/object"
)

// EnumerateFilter configures which objects EnumerateObjects admits,
// matching the partial-clone filter specifiers spec.md §4.8 names.
type EnumerateFilter struct {
	// BlobNone, when set, excludes every blob: only commits and trees
	// are enumerated ("blob:none").
	BlobNone bool

	// BlobLimit, when positive, excludes any blob whose content is
	// larger than the limit in bytes ("blob:limit=N"). Zero disables
	// the bound.
	BlobLimit int64

	// TreeDepth, when non-negative, excludes any tree or blob more
	// than TreeDepth directory levels below a commit's root tree
	// ("tree:depth=N"). A negative value disables the bound.
	TreeDepth int
}

func (f EnumerateFilter) boundsDepth() bool { return f.TreeDepth >= 0 }

// EnumerateObjects walks every commit reachable from roots but not
// from hidden, and for each yielded commit, recursively walks its
// tree collecting tree and blob OIDs subject to filter (spec.md §4.8
// "Object enumeration... used by pack generation and garbage
// collection"). Submodule gitlinks are never descended into: they
// name objects in a different repository's object space.
func EnumerateObjects(source Source, reader ObjectReader, roots, hidden []hash.OID, filter EnumerateFilter) (hash.Set, error) {
	algo := hash.SHA1
	if len(roots) > 0 {
		algo = roots[0].Algorithm()
	} else if len(hidden) > 0 {
		algo = hidden[0].Algorithm()
	}

	result := hash.NewSet()
	visitedTrees := hash.NewSet()

	w := New(source, Options{Order: DateOrder})
	for _, oid := range roots {
		w.Push(oid)
	}
	for _, oid := range hidden {
		w.Hide(oid)
	}

	err := w.Walk(func(oid hash.OID, c *object.Commit) (bool, error) {
		result.Add(oid)
		tree, err := c.TreeOID(algo)
		if err != nil {
			return false, err
		}
		if err := walkTree(reader, algo, tree, 0, filter, result, visitedTrees); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func walkTree(reader ObjectReader, algo hash.Algorithm, oid hash.OID, depth int, filter EnumerateFilter, result, visited hash.Set) error {
	if visited.Has(oid) {
		return nil
	}
	visited.Add(oid)
	result.Add(oid)

	if filter.boundsDepth() && depth >= filter.TreeDepth {
		return nil
	}

	typ, content, err := reader.Read(oid)
	if err != nil {
		return err
	}
	if typ != object.TreeType {
		return nil
	}
	tree, err := object.DecodeTree(algo, content)
	if err != nil {
		return err
	}

	for _, e := range tree.Entries {
		switch {
		case e.Mode == filemode.Submodule:
			continue
		case e.Mode == filemode.Dir:
			if err := walkTree(reader, algo, e.OID, depth+1, filter, result, visited); err != nil {
				return err
			}
		default:
			if err := admitBlob(reader, e.OID, filter, result, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func admitBlob(reader ObjectReader, oid hash.OID, filter EnumerateFilter, result, visited hash.Set) error {
	if visited.Has(oid) {
		return nil
	}
	visited.Add(oid)
	if filter.BlobNone {
		return nil
	}
	if filter.BlobLimit > 0 {
		_, content, err := reader.Read(oid)
		if err != nil {
			return err
		}
		if int64(len(content)) > filter.BlobLimit {
			return nil
		}
	}
	result.Add(oid)
	return nil
}
