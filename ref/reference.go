// Package ref implements git's reference store: loose files under
// refs/, the packed-refs compaction file, symbolic refs (including
// HEAD), atomic multi-ref transactions, and per-ref reflogs (spec.md
// §4.7).
package ref

import (
	"errors"
	"fmt"
	"strings"

	"github.com/basincore/gitkernel/hash"
)

// HEAD is the name of the repository's "current branch" symbolic ref,
// which lives at the git-dir root rather than under refs/.
const HEAD = "HEAD"

// Kind distinguishes a direct (OID-valued) reference from a symbolic
// (ref-name-valued) one.
type Kind uint8

const (
	Direct Kind = iota
	Symbolic
)

// Reference is a named pointer into the object graph: either directly
// at an OID, or symbolically at another reference name (spec.md §3).
type Reference struct {
	Name string
	Kind Kind

	// OID is set when Kind == Direct.
	OID hash.OID
	// Target is set when Kind == Symbolic.
	Target string
}

// NewDirect builds a direct reference.
func NewDirect(name string, oid hash.OID) Reference {
	return Reference{Name: name, Kind: Direct, OID: oid}
}

// NewSymbolic builds a symbolic reference.
func NewSymbolic(name, target string) Reference {
	return Reference{Name: name, Kind: Symbolic, Target: target}
}

// String renders a reference the way git writes it to a loose file:
// "<hex-oid>\n" for a direct reference, "ref: <target>\n" for a
// symbolic one.
func (r Reference) String() string {
	if r.Kind == Symbolic {
		return "ref: " + r.Target + "\n"
	}
	return r.OID.String() + "\n"
}

// ErrInvalidName is returned when a reference name violates the
// grammar spec.md §4.7 mandates.
var ErrInvalidName = errors.New("ref: invalid reference name")

// ValidateName enforces spec.md §4.7's name grammar: no "..", no
// control characters, no '\', ':', '?', '*', '[', no leading '-', no
// consecutive '/', no trailing '/' or ".lock", and no empty path
// component.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if name == HEAD {
		return nil
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q has a trailing slash", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: %q ends in \".lock\"", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: %q starts with '-'", ErrInvalidName, name)
	}
	components := strings.Split(name, "/")
	for _, c := range components {
		if c == "" {
			return fmt.Errorf("%w: %q has an empty path component", ErrInvalidName, name)
		}
		if strings.HasPrefix(c, "-") {
			return fmt.Errorf("%w: path component %q starts with '-'", ErrInvalidName, c)
		}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c < 0x20 || c == 0x7f:
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
		case c == '\\' || c == ':' || c == '?' || c == '*' || c == '[' || c == '~' || c == '^':
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, string(c))
		case c == ' ':
			return fmt.Errorf("%w: %q contains a space", ErrInvalidName, name)
		}
	}
	return nil
}

// maxResolveDepth bounds symbolic-ref chain resolution, so a cycle
// fails fast instead of recursing forever (spec.md §3).
const maxResolveDepth = 5
