package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrBadSyntax is returned for a line that does not parse as a section
// header or a key/value entry.
var ErrBadSyntax = errors.New("config: bad syntax")

// Decoder reads git-config text from an input stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode parses the decoder's input into cfg, appending to any sections
// it already has.
func (d *Decoder) Decode(cfg *Config) error {
	sc := bufio.NewScanner(d.r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var curSection *Section
	var curSubsection *Subsection

	lineNo := 0
	var pending strings.Builder
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if pending.Len() > 0 {
			pending.WriteString("\n")
			pending.WriteString(line)
			line = pending.String()
			pending.Reset()
		}
		if strings.HasSuffix(strings.TrimRight(line, "\r"), "\\") && !strings.HasSuffix(line, "\\\\") {
			pending.WriteString(strings.TrimSuffix(strings.TrimRight(line, "\r"), "\\"))
			continue
		}

		trimmed := strings.TrimSpace(stripComment(line))
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			name, sub, hasSub, err := parseSectionHeader(trimmed)
			if err != nil {
				return fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			curSection = cfg.Section(name)
			if hasSub {
				curSubsection = curSection.Subsection(sub)
			} else {
				curSubsection = nil
			}
			continue
		}

		key, value, err := parseEntry(trimmed)
		if err != nil {
			return fmt.Errorf("config: line %d: %w", lineNo, err)
		}
		if curSection == nil {
			return fmt.Errorf("config: line %d: %w: entry outside any section", lineNo, ErrBadSyntax)
		}
		if curSubsection != nil {
			curSubsection.AddOption(key, value)
		} else {
			curSection.AddOption(key, value)
		}
	}
	return sc.Err()
}

// stripComment removes a trailing `#` or `;` comment, honoring quoting
// so a `#` inside a quoted value is kept literal.
func stripComment(line string) string {
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case '\\':
			i++ // skip the escaped byte
		case '#', ';':
			if !inQuotes {
				return line[:i]
			}
		}
	}
	return line
}

// parseSectionHeader parses `[name]` or `[name "subsection"]`.
func parseSectionHeader(line string) (name, sub string, hasSub bool, err error) {
	if !strings.HasSuffix(line, "]") {
		return "", "", false, fmt.Errorf("%w: unterminated section header %q", ErrBadSyntax, line)
	}
	body := line[1 : len(line)-1]
	sp := strings.IndexByte(body, ' ')
	if sp < 0 {
		name = strings.TrimSpace(body)
		if name == "" {
			return "", "", false, fmt.Errorf("%w: empty section name", ErrBadSyntax)
		}
		return name, "", false, nil
	}
	name = strings.TrimSpace(body[:sp])
	rest := strings.TrimSpace(body[sp+1:])
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", "", false, fmt.Errorf("%w: malformed subsection in %q", ErrBadSyntax, line)
	}
	sub, err = unquote(rest[1 : len(rest)-1])
	if err != nil {
		return "", "", false, err
	}
	return name, sub, true, nil
}

// parseEntry parses `key = value` or a bare `key` (implicitly `true`).
func parseEntry(line string) (key, value string, err error) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return strings.TrimSpace(line), "true", nil
	}
	key = strings.TrimSpace(line[:eq])
	if key == "" {
		return "", "", fmt.Errorf("%w: missing key in %q", ErrBadSyntax, line)
	}
	raw := strings.TrimSpace(line[eq+1:])
	value, err = unquoteValue(raw)
	return key, value, err
}

// unquoteValue resolves backslash escapes and quoted runs in a config
// value: `\"`, `\\`, `\n`, `\t`, and a `"..."` run is taken literally
// (no escape processing skipped inside), matching git-config's grammar.
func unquoteValue(raw string) (string, error) {
	var out strings.Builder
	inQuotes := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == '\\' && i+1 < len(raw):
			i++
			switch raw[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '\\':
				out.WriteByte('\\')
			case '"':
				out.WriteByte('"')
			default:
				out.WriteByte(raw[i])
			}
		default:
			out.WriteByte(c)
		}
	}
	if inQuotes {
		return "", fmt.Errorf("%w: unterminated quote in %q", ErrBadSyntax, raw)
	}
	return out.String(), nil
}

func unquote(s string) (string, error) {
	return unquoteValue(s)
}
