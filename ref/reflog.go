package ref

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/basincore/gitkernel/hash"
	"github.com/basincore/gitkernel/internal/lockfile"
	"github.com/basincore/gitkernel/object"
)

// LogEntry is one line of a reference's reflog: the OID transition it
// recorded, who made it, and why (spec.md §4.7 "Reflog").
type LogEntry struct {
	OldOID  hash.OID
	NewOID  hash.OID
	Who     object.Signature
	Message string
}

// reflogPath returns the path of name's reflog file, rooted under
// logs/ exactly as refs themselves are rooted under refs/ — logs/HEAD
// for the symbolic HEAD, logs/refs/heads/main for a branch.
func reflogPath(name string) string {
	return "logs/" + name
}

// appendReflog appends one entry to name's reflog, creating the file
// and its parent directories on first use. Per spec.md §4.7, whether a
// ref's reflog exists at all is a configuration decision the caller
// makes (core.logAllRefUpdates or an explicit create-if-missing
// request on HEAD/branches) — this function always appends when
// called, leaving that policy to the transaction layer.
func appendReflog(fs billy.Filesystem, name string, oldOID, newOID hash.OID, who object.Signature, message string) error {
	path := reflogPath(name)
	dir := parentDirOf(path)
	if dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := encodeLogLine(oldOID, newOID, who, message)
	_, err = f.Write([]byte(line))
	return err
}

func encodeLogLine(oldOID, newOID hash.OID, who object.Signature, message string) string {
	message = strings.ReplaceAll(message, "\n", " ")
	return fmt.Sprintf("%s %s %s\t%s\n", oldOID.String(), newOID.String(), who.String(), message)
}

// readReflog parses name's entire reflog, oldest entry first, matching
// on-disk order. A missing reflog is reported as an empty slice.
func readReflog(fs billy.Filesystem, name string, algo hash.Algorithm) ([]LogEntry, error) {
	f, err := fs.Open(reflogPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		e, err := decodeLogLine(scanner.Text(), algo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func decodeLogLine(line string, algo hash.Algorithm) (LogEntry, error) {
	hexSize := algo.HexSize()
	if len(line) < hexSize*2+2 {
		return LogEntry{}, fmt.Errorf("ref: reflog: truncated line %q", line)
	}
	oldOID, err := hash.FromHex(line[:hexSize])
	if err != nil {
		return LogEntry{}, fmt.Errorf("ref: reflog: bad old oid: %w", err)
	}
	rest := line[hexSize+1:]
	newOID, err := hash.FromHex(rest[:hexSize])
	if err != nil {
		return LogEntry{}, fmt.Errorf("ref: reflog: bad new oid: %w", err)
	}
	rest = rest[hexSize+1:]

	tab := strings.IndexByte(rest, '\t')
	var who string
	var message string
	if tab < 0 {
		who = rest
	} else {
		who = rest[:tab]
		message = rest[tab+1:]
	}
	sig, err := object.DecodeSignature([]byte(who))
	if err != nil {
		return LogEntry{}, fmt.Errorf("ref: reflog: bad identity: %w", err)
	}

	return LogEntry{OldOID: oldOID, NewOID: newOID, Who: sig, Message: message}, nil
}

// expireReflog rewrites name's reflog keeping only entries whose
// timestamp is at or after cutoff, per spec.md §4.7 "expire". Rewriting
// happens under a lock on the reflog file itself, independent of any
// lock on the ref's value.
func expireReflog(fs billy.Filesystem, name string, algo hash.Algorithm, cutoff int64) error {
	path := reflogPath(name)
	lock, err := lockfile.Acquire(fs, path)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	entries, err := readReflog(fs, name, algo)
	if err != nil {
		return err
	}

	var kept strings.Builder
	for _, e := range entries {
		if e.Who.When.Unix() < cutoff {
			continue
		}
		kept.WriteString(encodeLogLine(e.OldOID, e.NewOID, e.Who, e.Message))
	}

	if _, err := lock.Write([]byte(kept.String())); err != nil {
		return err
	}
	return lock.Commit()
}

// deleteReflogEntry rewrites name's reflog with the entry at index
// removed, per spec.md §4.7 "delete_entry". Removing an interior entry
// leaves the OID chain internally inconsistent (the preceding entry's
// New no longer matches the following entry's Old); git accepts this
// as the documented cost of the operation, and so does this port.
func deleteReflogEntry(fs billy.Filesystem, name string, algo hash.Algorithm, index int) error {
	path := reflogPath(name)
	lock, err := lockfile.Acquire(fs, path)
	if err != nil {
		return err
	}
	defer lock.Rollback()

	entries, err := readReflog(fs, name, algo)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("ref: reflog: index %d out of range (len %d)", index, len(entries))
	}
	entries = append(entries[:index:index], entries[index+1:]...)

	var buf strings.Builder
	for _, e := range entries {
		buf.WriteString(encodeLogLine(e.OldOID, e.NewOID, e.Who, e.Message))
	}
	if _, err := lock.Write([]byte(buf.String())); err != nil {
		return err
	}
	return lock.Commit()
}

// forkPoint finds the newest OID in name's reflog that is also
// reachable from target according to isAncestor, searching from the
// most recent entry backward — git's heuristic for "where did my
// branch diverge from its upstream" (spec.md §4.8 "fork_point").
func forkPoint(fs billy.Filesystem, name string, algo hash.Algorithm, isAncestor func(candidate, target hash.OID) (bool, error), target hash.OID) (hash.OID, error) {
	entries, err := readReflog(fs, name, algo)
	if err != nil {
		return hash.OID{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		candidate := entries[i].NewOID
		ok, err := isAncestor(candidate, target)
		if err != nil {
			return hash.OID{}, err
		}
		if ok {
			return candidate, nil
		}
	}
	return hash.OID{}, ErrNoForkPoint
}

func parentDirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}
