package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/basincore/gitkernel/hash"
)

// HeaderField is one header line of a commit or tag object, in the
// exact order it appears on disk. Value has any continuation-line
// leading space stripped and its lines rejoined with plain '\n', so
// multi-line values (gpgsig, mergetag) are easy to inspect; Encode
// re-wraps them with the single-leading-space continuation convention
// git uses, reproducing the original bytes.
type HeaderField struct {
	Key   string
	Value string
}

// Commit is a named point in history: a tree snapshot, zero or more
// parent commits, an author and committer identity, and a free-form
// message. Unrecognized headers (mergetag, gpgsig, or anything a newer
// git adds) are preserved verbatim in Headers so parse→encode round
// trips byte for byte even for headers this package does not interpret.
type Commit struct {
	Headers []HeaderField
	Message string
}

func (c *Commit) Type() Type { return CommitType }

func (c *Commit) header(key string) (string, bool) {
	for _, h := range c.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func (c *Commit) headers(key string) []string {
	var out []string
	for _, h := range c.Headers {
		if h.Key == key {
			out = append(out, h.Value)
		}
	}
	return out
}

// TreeOID returns the OID of the commit's root tree.
func (c *Commit) TreeOID(algo hash.Algorithm) (hash.OID, error) {
	v, ok := c.header("tree")
	if !ok {
		return hash.OID{}, fmt.Errorf("%w: commit missing tree header", ErrMalformed)
	}
	return parseOIDField(algo, v, "tree")
}

// ParentOIDs returns the commit's parent OIDs, in header order. A root
// commit returns an empty slice.
func (c *Commit) ParentOIDs(algo hash.Algorithm) ([]hash.OID, error) {
	vals := c.headers("parent")
	out := make([]hash.OID, 0, len(vals))
	for _, v := range vals {
		oid, err := parseOIDField(algo, v, "parent")
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

func parseOIDField(algo hash.Algorithm, v, field string) (hash.OID, error) {
	oid, err := hash.FromHex(v)
	if err != nil {
		return hash.OID{}, fmt.Errorf("%w: commit %s header %q: %v", ErrMalformed, field, v, err)
	}
	if oid.Algorithm() != algo {
		return hash.OID{}, fmt.Errorf("%w: commit %s header has wrong digest width for %s", ErrMalformed, field, algo)
	}
	return oid, nil
}

// Author returns the decoded author identity line.
func (c *Commit) Author() (Signature, error) {
	v, ok := c.header("author")
	if !ok {
		return Signature{}, fmt.Errorf("%w: commit missing author header", ErrMalformed)
	}
	return DecodeSignature([]byte(v))
}

// Committer returns the decoded committer identity line.
func (c *Commit) Committer() (Signature, error) {
	v, ok := c.header("committer")
	if !ok {
		return Signature{}, fmt.Errorf("%w: commit missing committer header", ErrMalformed)
	}
	return DecodeSignature([]byte(v))
}

// Encoding returns the commit message's declared character encoding,
// defaulting to "UTF-8" when the header is absent, matching git's own
// default.
func (c *Commit) Encoding() string {
	if v, ok := c.header("encoding"); ok {
		return v
	}
	return "UTF-8"
}

// GPGSignature returns the commit's detached signature block, if any.
func (c *Commit) GPGSignature() (string, bool) {
	return c.header("gpgsig")
}

// Signature satisfies the VerifiableObject contract: the detached
// signature text, split from the signed payload.
func (c *Commit) Signature() string {
	v, _ := c.GPGSignature()
	return v
}

// NewCommit builds a commit with headers in git's canonical order:
// tree, parents, author, committer, then the message.
func NewCommit(tree hash.OID, parents []hash.OID, author, committer Signature, message string) *Commit {
	c := &Commit{Message: message}
	c.Headers = append(c.Headers, HeaderField{"tree", tree.String()})
	for _, p := range parents {
		c.Headers = append(c.Headers, HeaderField{"parent", p.String()})
	}
	c.Headers = append(c.Headers, HeaderField{"author", author.String()})
	c.Headers = append(c.Headers, HeaderField{"committer", committer.String()})
	return c
}

// SetHeader replaces the first header with the given key, or appends
// one if none exists yet.
func (c *Commit) SetHeader(key, value string) {
	for i := range c.Headers {
		if c.Headers[i].Key == key {
			c.Headers[i].Value = value
			return
		}
	}
	c.Headers = append(c.Headers, HeaderField{key, value})
}

// EncodeWithoutSignature encodes the commit with its gpgsig header
// omitted, the exact payload a detached signature is computed over.
func (c *Commit) EncodeWithoutSignature(w ContentWriter) error {
	return c.encode(w, true)
}

func (c *Commit) Encode(w ContentWriter) error {
	return c.encode(w, false)
}

func (c *Commit) encode(w ContentWriter, omitSignature bool) error {
	for _, h := range c.Headers {
		if omitSignature && h.Key == "gpgsig" {
			continue
		}
		if err := writeHeaderField(w, h); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	_, err := w.Write([]byte(c.Message))
	return err
}

func writeHeaderField(w ContentWriter, h HeaderField) error {
	lines := strings.Split(h.Value, "\n")
	if _, err := fmt.Fprintf(w, "%s %s\n", h.Key, lines[0]); err != nil {
		return err
	}
	for _, l := range lines[1:] {
		if _, err := fmt.Fprintf(w, " %s\n", l); err != nil {
			return err
		}
	}
	return nil
}

// DecodeCommit parses a commit object's raw content bytes.
func DecodeCommit(content []byte) (*Commit, error) {
	c := &Commit{}
	r := bufio.NewReader(bytes.NewReader(content))

	var cur *HeaderField
	for {
		line, err := r.ReadString('\n')
		atEOF := err != nil
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			break
		}
		if strings.HasPrefix(trimmed, " ") {
			if cur == nil {
				return nil, fmt.Errorf("%w: commit continuation line with no preceding header", ErrMalformed)
			}
			cur.Value += "\n" + trimmed[1:]
		} else {
			sp := strings.IndexByte(trimmed, ' ')
			if sp < 0 {
				return nil, fmt.Errorf("%w: commit header line without value: %q", ErrMalformed, trimmed)
			}
			c.Headers = append(c.Headers, HeaderField{Key: trimmed[:sp], Value: trimmed[sp+1:]})
			cur = &c.Headers[len(c.Headers)-1]
		}
		if atEOF {
			return nil, fmt.Errorf("%w: commit missing blank line before message", ErrMalformed)
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c.Message = string(rest)
	return c, nil
}
