package ref

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/internal/lockfile"
	"github.com/basincore/gitkernel/object"
)

// opKind distinguishes the three things a transaction can do to a
// single reference name (spec.md §4.7 "Transactions").
type opKind uint8

const (
	opUpdate opKind = iota
	opDelete
	opSymbolic
)

// op is one pending change within a Transaction.
type op struct {
	kind   opKind
	name   string
	oldOID hash.OID // checked only when hasOld; IsZero then means "must not exist"
	newOID hash.OID // set for opUpdate
	target string   // set for opSymbolic
	hasOld bool      // distinguishes "CAS against zero OID" from "no CAS"
}

// Transaction batches a set of reference updates so they are applied
// atomically: every lock is acquired before any write, in a fixed
// order that avoids the deadlock two transactions touching the same
// refs in different orders could otherwise hit (spec.md §5 "Lock
// ordering"), and any compare-and-swap failure aborts the whole batch
// with nothing written.
type Transaction struct {
	store *Store
	ops   []op
	who   object.Signature
}

// Begin starts a transaction against store. who is recorded as the
// reflog identity for every ref this transaction updates.
func (s *Store) Begin(who object.Signature) *Transaction {
	return &Transaction{store: s, who: who}
}

// Update stages name to point at newOID, verified against oldOID if
// checkOld is true. Passing checkOld=false performs no CAS check.
func (t *Transaction) Update(name string, oldOID, newOID hash.OID, checkOld bool) *Transaction {
	t.ops = append(t.ops, op{kind: opUpdate, name: name, oldOID: oldOID, newOID: newOID, hasOld: checkOld})
	return t
}

// Create stages name to be created at newOID; it fails the
// transaction if name already exists.
func (t *Transaction) Create(name string, newOID hash.OID) *Transaction {
	return t.Update(name, hash.Zero(newOID.Algorithm()), newOID, true)
}

// SetSymbolic stages name to become a symbolic reference at target.
func (t *Transaction) SetSymbolic(name, target string) *Transaction {
	t.ops = append(t.ops, op{kind: opSymbolic, name: name, target: target})
	return t
}

// Delete stages name for removal, verified against oldOID if
// checkOld is true.
func (t *Transaction) Delete(name string, oldOID hash.OID, checkOld bool) *Transaction {
	t.ops = append(t.ops, op{kind: opDelete, name: name, oldOID: oldOID, hasOld: checkOld})
	return t
}

// Commit applies every staged operation atomically: all locks are
// acquired first (in sorted name order, so concurrent transactions
// touching overlapping ref sets can never deadlock against each
// other), then CAS checks are verified, then each operation is applied
// in turn: a written ref's lock is committed as it is written, and an
// update or delete appends its reflog entry right after. Locks not
// committed are released on return. If any lock acquisition or CAS
// check fails, no ref is modified.
func (t *Transaction) Commit(message string) error {
	if len(t.ops) == 0 {
		return nil
	}

	names := make([]string, len(t.ops))
	for i, o := range t.ops {
		names[i] = o.name
	}
	sort.Strings(names)

	locks := make(map[string]*lockfile.Lock, len(names))
	defer func() {
		for _, l := range locks {
			l.Rollback()
		}
	}()
	for _, name := range dedup(names) {
		if dir := parentDirOf(name); dir != "" {
			if err := t.store.fs.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("ref: transaction: %s: %w", name, err)
			}
		}
		lock, err := lockfile.Acquire(t.store.fs, name)
		if err != nil {
			return fmt.Errorf("ref: transaction: locking %s: %w", name, err)
		}
		locks[name] = lock
	}

	for _, o := range t.ops {
		if !o.hasOld {
			continue
		}
		current, err := t.store.Resolve(o.name)
		notFound := errors.Is(err, ErrNotFound)
		if err != nil && !notFound {
			return err
		}
		if notFound {
			if !o.oldOID.IsZero() {
				return fmt.Errorf("%w: %s: expected %s, found nothing", ErrMismatch, o.name, o.oldOID)
			}
			continue
		}
		if !current.Equal(o.oldOID) {
			return fmt.Errorf("%w: %s: expected %s, found %s", ErrMismatch, o.name, o.oldOID, current)
		}
	}

	for _, o := range t.ops {
		lock := locks[o.name]

		old := o.oldOID
		if !o.hasOld {
			if prev, err := t.store.Resolve(o.name); err == nil {
				old = prev
			} else {
				old = hash.Zero(t.store.algo)
			}
		}

		switch o.kind {
		case opDelete:
			if err := deleteViaLock(t.store, lock, o.name); err != nil {
				return err
			}
			if err := appendReflog(t.store.fs, o.name, old, hash.Zero(t.store.algo), t.who, message); err != nil {
				return err
			}
		case opSymbolic:
			if err := ValidateName(o.name); err != nil {
				return err
			}
			ref := NewSymbolic(o.name, o.target)
			if _, err := lock.Write([]byte(ref.String())); err != nil {
				return err
			}
			if err := lock.Commit(); err != nil {
				return err
			}
		case opUpdate:
			if err := ValidateName(o.name); err != nil {
				return err
			}
			ref := NewDirect(o.name, o.newOID)
			if _, err := lock.Write([]byte(ref.String())); err != nil {
				return err
			}
			if err := lock.Commit(); err != nil {
				return err
			}
			if err := appendReflog(t.store.fs, o.name, old, o.newOID, t.who, message); err != nil {
				return err
			}
		}
	}

	return nil
}

// deleteViaLock removes name's loose file and its packed-refs entry
// while lock (already held on name) serializes against other
// writers. Mirrors Store.Delete's body without re-acquiring the lock.
func deleteViaLock(s *Store, lock *lockfile.Lock, name string) error {
	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return rewritePackedRefs(s.fs, packedRefsPath, s.algo, func(entries []packedEntry) []packedEntry {
		out := entries[:0:0]
		for _, e := range entries {
			if e.Name != name {
				out = append(out, e)
			}
		}
		return out
	})
}

func dedup(sorted []string) []string {
	out := sorted[:0:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
