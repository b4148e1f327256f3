// Package odb implements the unified object database: a search across
// a loose-object store, a set of open packs (newest first), and a
// chain of alternate object databases, backed by an LRU cache and
// collapsing concurrent reads of the same object into one disk access
// (spec.md §4.5).
package odb

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/golang/groupcache/singleflight"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/loose"
	"github.com/basincore/gitkernel/object"
	"github.com/basincore/gitkernel/pack"
)

// ErrNotFound is returned when an OID is present in neither the loose
// store, any open pack, nor any alternate.
var ErrNotFound = errors.New("odb: object not found")

// ErrAmbiguous is returned by ResolvePrefix when a prefix names more
// than one object.
type ErrAmbiguous struct {
	Prefix string
	Count  int
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("odb: prefix %q is ambiguous (%d matches)", e.Prefix, e.Count)
}

// ErrCircularAlternates is returned when an alternates chain revisits a
// canonical path it has already loaded.
var ErrCircularAlternates = errors.New("odb: circular alternates chain")

// maxAlternateDepth bounds how deep an alternates chain may recurse
// (spec.md §4.5).
const maxAlternateDepth = 5

// openPack pairs a pack.Reader with the resources it was opened from, so
// DB.Close can release file descriptors.
type openPack struct {
	name   string
	file   billy.File
	idx    *pack.Index
	reader *pack.Reader
}

// DB is a unified, cached view over one object directory: its loose
// objects, its packs, and its alternates.
type DB struct {
	fs   billy.Filesystem
	dir  string // objects directory within fs
	algo hash.Algorithm

	loose *loose.Store
	cache *rawCache

	mu         sync.RWMutex
	packs      []*openPack // newest first
	alternates []*DB

	group singleflight.Group
}

// Options configures a newly opened DB.
type Options struct {
	// CacheSize is the raw-object LRU cache capacity. Zero selects
	// object.DefaultCacheSize.
	CacheSize int
}

// Open builds a DB rooted at dir (conventionally "objects") within fs,
// loading its packs and alternates chain (recursively, depth-capped).
func Open(fs billy.Filesystem, dir string, algo hash.Algorithm, opts Options) (*DB, error) {
	db, err := newDB(fs, dir, algo, opts)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	if canon, err := db.canonicalDir(); err == nil {
		visited[canon] = true
	}
	if err := db.loadAlternates(visited, 0); err != nil {
		return nil, err
	}
	return db, nil
}

// newDB constructs a DB and loads its own packs, but not its alternates
// chain — used both by Open and, with a shared visited set, by
// loadAlternates, so a multi-level alternates chain shares one
// cycle-detection set across every level instead of each Open call
// starting a fresh one.
func newDB(fs billy.Filesystem, dir string, algo hash.Algorithm, opts Options) (*DB, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = object.DefaultCacheSize
	}
	db := &DB{
		fs:    fs,
		dir:   dir,
		algo:  algo,
		loose: loose.NewStore(fs, dir),
		cache: newRawCache(opts.CacheSize),
	}
	if err := db.loadPacks(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) canonicalDir() (string, error) {
	return filepath.Abs(db.fs.Join(db.fs.Root(), db.dir))
}

// loadPacks opens every objects/pack/pack-*.idx found, newest first by
// the .idx file's modification time (ties keep ReadDir's order), so a
// lookup consults the most recently written pack first.
func (db *DB) loadPacks() error {
	packDir := db.fs.Join(db.dir, "pack")
	entries, err := db.fs.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var idxFiles []os.FileInfo
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".idx") {
			idxFiles = append(idxFiles, e)
		}
	}
	sort.SliceStable(idxFiles, func(i, j int) bool {
		return idxFiles[i].ModTime().After(idxFiles[j].ModTime())
	})

	for _, e := range idxFiles {
		if err := db.openPack(packDir, strings.TrimSuffix(e.Name(), ".idx")); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) openPack(packDir, name string) error {
	idxFile, err := db.fs.Open(db.fs.Join(packDir, name+".idx"))
	if err != nil {
		return err
	}
	defer idxFile.Close()

	idx, err := pack.ReadIndex(bufio.NewReader(idxFile), db.algo)
	if err != nil {
		return fmt.Errorf("odb: reading index for pack %s: %w", name, err)
	}

	packPath := db.fs.Join(packDir, name+".pack")
	packFile, err := db.fs.Open(packPath)
	if err != nil {
		return err
	}
	fi, err := db.fs.Stat(packPath)
	if err != nil {
		packFile.Close()
		return err
	}

	reader := pack.NewReader(packFile, fi.Size(), idx, db.algo, db.resolveBase)
	db.packs = append(db.packs, &openPack{name: name, file: packFile, idx: idx, reader: reader})
	return nil
}

// resolveBase is passed to each pack.Reader as its BaseResolver, so a
// REF_DELTA whose base object lives in loose storage, a different pack,
// or an alternate can still be resolved.
func (db *DB) resolveBase(oid hash.OID) (object.Type, []byte, error) {
	return db.Read(oid)
}

// loadAlternates reads objects/info/alternates (if present) and opens
// each listed directory as a further DB, recursively, stopping at
// maxAlternateDepth or a previously visited canonical path.
func (db *DB) loadAlternates(visited map[string]bool, depth int) error {
	if depth >= maxAlternateDepth {
		return nil
	}

	f, err := db.fs.Open(db.fs.Join(db.dir, "info", "alternates"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		altDir := line
		if !filepath.IsAbs(altDir) {
			altDir = filepath.Join(db.fs.Join(db.fs.Root(), db.dir), altDir)
		}
		canon, err := filepath.Abs(altDir)
		if err != nil {
			return err
		}
		if visited[canon] {
			return ErrCircularAlternates
		}
		visited[canon] = true

		altDB, err := newDB(osfs.New(canon), "", db.algo, Options{})
		if err != nil {
			return err
		}
		if err := altDB.loadAlternates(visited, depth+1); err != nil {
			return err
		}
		db.alternates = append(db.alternates, altDB)
	}
	return nil
}

// Read returns the type and content of oid, searching loose objects,
// then this DB's packs, then its alternates (each of which recurses in
// turn). Loose objects win over packs on disagreement, since a
// concurrent repack may have produced a newer loose copy within its
// write window. Concurrent reads of the same OID are collapsed into a
// single underlying lookup via singleflight.
func (db *DB) Read(oid hash.OID) (object.Type, []byte, error) {
	if typ, content, ok := db.cache.Get(oid); ok {
		return typ, content, nil
	}

	v, err := db.group.Do(oid.String(), func() (interface{}, error) {
		typ, content, err := db.readUncached(oid)
		if err != nil {
			return nil, err
		}
		return readResult{typ, content}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	res := v.(readResult)
	return res.typ, res.content, nil
}

type readResult struct {
	typ     object.Type
	content []byte
}

func (db *DB) readUncached(oid hash.OID) (object.Type, []byte, error) {
	objTypeStr, content, err := db.loose.Read(oid)
	if err == nil {
		typ, perr := object.ParseType(objTypeStr)
		if perr != nil {
			return 0, nil, perr
		}
		db.cache.Add(oid, typ, content)
		return typ, content, nil
	}
	if !errors.Is(err, loose.ErrNotFound) {
		return 0, nil, err
	}

	db.mu.RLock()
	packs := db.packs
	db.mu.RUnlock()
	for _, p := range packs {
		if _, ok := p.idx.Find(oid); !ok {
			continue
		}
		typ, content, err := p.reader.ReadByOID(oid)
		if err != nil {
			return 0, nil, err
		}
		db.cache.Add(oid, typ, content)
		return typ, content, nil
	}

	for _, alt := range db.alternates {
		typ, content, err := alt.Read(oid)
		if err == nil {
			db.cache.Add(oid, typ, content)
			return typ, content, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, nil, err
		}
	}

	return 0, nil, ErrNotFound
}

// Has reports whether oid exists anywhere in this DB's search order,
// peeking the cache so a mere existence check does not disturb its LRU
// order (spec.md §4.5 "cache policy").
func (db *DB) Has(oid hash.OID) bool {
	if _, _, ok := db.cache.Peek(oid); ok {
		return true
	}
	if db.loose.Has(oid) {
		return true
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, p := range db.packs {
		if _, ok := p.idx.Find(oid); ok {
			return true
		}
	}
	for _, alt := range db.alternates {
		if alt.Has(oid) {
			return true
		}
	}
	return false
}

// Write stores content as a new loose object of the given type.
func (db *DB) Write(objType object.Type, content []byte) (hash.OID, error) {
	return db.loose.Write(db.algo, objType.String(), content)
}

// ResolvePrefix resolves a hex OID prefix (minimum length 4) against
// loose objects and every open pack, returning the sole match,
// ErrNotFound, or *ErrAmbiguous.
func (db *DB) ResolvePrefix(prefix string) (hash.OID, error) {
	if len(prefix) < 4 {
		return hash.OID{}, fmt.Errorf("odb: prefix %q shorter than minimum length 4", prefix)
	}
	for _, c := range prefix {
		if !isHexDigit(byte(c)) {
			return hash.OID{}, fmt.Errorf("odb: prefix %q is not valid hex", prefix)
		}
	}

	if len(prefix) == db.algo.HexSize() {
		oid, err := hash.FromHex(prefix)
		if err != nil {
			return hash.OID{}, err
		}
		if !db.Has(oid) {
			return hash.OID{}, ErrNotFound
		}
		return oid, nil
	}

	// Search at whole-byte granularity first, then refine against the
	// full hex prefix (which may name an odd number of nibbles) via
	// OID.String().
	wholeBytes := prefix[:len(prefix)/2*2]
	prefixBytes, err := hex.DecodeString(wholeBytes)
	if err != nil {
		return hash.OID{}, fmt.Errorf("odb: decoding prefix %q: %w", prefix, err)
	}

	seen := hash.NewSet()
	var matches []hash.OID
	add := func(oid hash.OID) {
		if !strings.HasPrefix(oid.String(), prefix) {
			return
		}
		if !seen.Has(oid) {
			seen.Add(oid)
			matches = append(matches, oid)
		}
	}

	if err := db.loose.Enumerate(func(oid hash.OID) error {
		if oid.HasPrefix(prefixBytes) {
			add(oid)
		}
		return nil
	}); err != nil {
		return hash.OID{}, err
	}

	db.mu.RLock()
	packs := db.packs
	db.mu.RUnlock()
	for _, p := range packs {
		for _, e := range p.idx.FindPrefix(prefixBytes[0], prefixBytes) {
			add(e.OID)
		}
	}

	switch len(matches) {
	case 0:
		return hash.OID{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return hash.OID{}, &ErrAmbiguous{Prefix: prefix, Count: len(matches)}
	}
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Close releases every open pack file descriptor, this DB's and every
// alternate's.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for _, p := range db.packs {
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, alt := range db.alternates {
		if err := alt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
