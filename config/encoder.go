package config

import (
	"fmt"
	"io"
	"strings"
)

// Encoder writes a Config back out in git-config text form.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes cfg.
func (e *Encoder) Encode(cfg *Config) error {
	for _, s := range cfg.Sections {
		if err := e.encodeSection(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSection(s *Section) error {
	if _, err := fmt.Fprintf(e.w, "[%s]\n", s.Name); err != nil {
		return err
	}
	if err := e.encodeOptions(s.Options, 1); err != nil {
		return err
	}
	for _, ss := range s.Subsections {
		if err := e.encodeSubsection(s.Name, ss); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSubsection(section string, ss *Subsection) error {
	if _, err := fmt.Fprintf(e.w, "[%s %q]\n", section, ss.Name); err != nil {
		return err
	}
	return e.encodeOptions(ss.Options, 1)
}

func (e *Encoder) encodeOptions(opts Options, indent int) error {
	pad := strings.Repeat("\t", indent)
	for _, o := range opts {
		if _, err := fmt.Fprintf(e.w, "%s%s = %s\n", pad, o.Key, quoteValue(o.Value)); err != nil {
			return err
		}
	}
	return nil
}

// quoteValue escapes a value for round-trip safety: backslashes and
// double quotes are escaped; values with leading/trailing whitespace or
// a comment character are wrapped in quotes so re-parsing recovers them
// exactly.
func quoteValue(v string) string {
	needsQuote := v == "" || v != strings.TrimSpace(v) || strings.ContainsAny(v, "#;")
	var out strings.Builder
	for _, c := range v {
		switch c {
		case '\\':
			out.WriteString(`\\`)
		case '"':
			out.WriteString(`\"`)
		case '\n':
			out.WriteString(`\n`)
			needsQuote = true
		case '\t':
			out.WriteString(`\t`)
			needsQuote = true
		default:
			out.WriteRune(c)
		}
	}
	if needsQuote {
		return `"` + out.String() + `"`
	}
	return out.String()
}
