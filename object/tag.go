package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/basincore/gitkernel/hash"
)

// Tag is an annotated tag object: a named pointer at another object
// (usually a commit), carrying a tagger identity, a message, and
// optionally a detached signature. Lightweight tags are a ref pointing
// straight at a commit and have no corresponding Tag object.
type Tag struct {
	Headers []HeaderField
	Message string
}

func (t *Tag) Type() Type { return TagType }

func (t *Tag) header(key string) (string, bool) {
	for _, h := range t.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// TargetOID returns the OID the tag points at.
func (t *Tag) TargetOID(algo hash.Algorithm) (hash.OID, error) {
	v, ok := t.header("object")
	if !ok {
		return hash.OID{}, fmt.Errorf("%w: tag missing object header", ErrMalformed)
	}
	return parseOIDField(algo, v, "object")
}

// TargetType returns the declared type of the tagged object.
func (t *Tag) TargetType() (Type, error) {
	v, ok := t.header("type")
	if !ok {
		return InvalidType, fmt.Errorf("%w: tag missing type header", ErrMalformed)
	}
	return ParseType(v)
}

// Name returns the tag's own name, as recorded in its "tag" header
// (independent of whatever ref it happens to be pointed at by).
func (t *Tag) Name() (string, error) {
	v, ok := t.header("tag")
	if !ok {
		return "", fmt.Errorf("%w: tag missing tag header", ErrMalformed)
	}
	return v, nil
}

// Tagger returns the decoded tagger identity line.
func (t *Tag) Tagger() (Signature, error) {
	v, ok := t.header("tagger")
	if !ok {
		return Signature{}, fmt.Errorf("%w: tag missing tagger header", ErrMalformed)
	}
	return DecodeSignature([]byte(v))
}

// GPGSignature returns the tag's detached signature block, if any.
func (t *Tag) GPGSignature() (string, bool) {
	return t.header("gpgsig")
}

func (t *Tag) Signature() string {
	v, _ := t.GPGSignature()
	return v
}

// NewTag builds a tag object with headers in git's canonical order:
// object, type, tag, tagger.
func NewTag(target hash.OID, targetType Type, name string, tagger Signature, message string) *Tag {
	t := &Tag{Message: message}
	t.Headers = append(t.Headers,
		HeaderField{"object", target.String()},
		HeaderField{"type", targetType.String()},
		HeaderField{"tag", name},
		HeaderField{"tagger", tagger.String()},
	)
	return t
}

func (t *Tag) SetHeader(key, value string) {
	for i := range t.Headers {
		if t.Headers[i].Key == key {
			t.Headers[i].Value = value
			return
		}
	}
	t.Headers = append(t.Headers, HeaderField{key, value})
}

func (t *Tag) EncodeWithoutSignature(w ContentWriter) error {
	return t.encode(w, true)
}

func (t *Tag) Encode(w ContentWriter) error {
	return t.encode(w, false)
}

func (t *Tag) encode(w ContentWriter, omitSignature bool) error {
	for _, h := range t.Headers {
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
	_, err := w.Write([]byte(t.Message))
	return err
}

// DecodeTag parses a tag object's raw content bytes.
func DecodeTag(content []byte) (*Tag, error) {
	t := &Tag{}
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
				return nil, fmt.Errorf("%w: tag continuation line with no preceding header", ErrMalformed)
			}
			cur.Value += "\n" + trimmed[1:]
		} else {
			sp := strings.IndexByte(trimmed, ' ')
			if sp < 0 {
				return nil, fmt.Errorf("%w: tag header line without value: %q", ErrMalformed, trimmed)
			}
			t.Headers = append(t.Headers, HeaderField{Key: trimmed[:sp], Value: trimmed[sp+1:]})
			cur = &t.Headers[len(t.Headers)-1]
		}
		if atEOF {
			return nil, fmt.Errorf("%w: tag missing blank line before message", ErrMalformed)
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	t.Message = string(rest)
	return t, nil
}
