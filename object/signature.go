package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is the author or committer identity line carried by a commit
// or tag: a name, an email, and the timestamp at which the action was
// taken, with its originating timezone offset preserved verbatim (git
// never normalizes it to UTC).
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// DecodeSignature parses a single identity line of the form
// "Name <email> 1136239445 +0000" as it appears in a commit or tag
// header, after the field keyword ("author"/"committer"/"tagger") and
// the following space have already been stripped.
func DecodeSignature(line []byte) (Signature, error) {
	open := bytes.LastIndexByte(line, '<')
	close := bytes.LastIndexByte(line, '>')
	if open == -1 || close == -1 || close < open {
		return Signature{}, fmt.Errorf("%w: missing <email> in signature %q", ErrMalformed, line)
	}

	name := strings.TrimSpace(string(line[:open]))
	email := string(line[open+1 : close])

	var when time.Time
	rest := strings.TrimSpace(string(line[close+1:]))
	if rest != "" {
		fields := strings.Fields(rest)
		sec, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return Signature{}, fmt.Errorf("%w: bad timestamp in signature %q: %v", ErrMalformed, line, err)
		}
		loc := time.UTC
		if len(fields) > 1 {
			if tz, err := parseTimezone(fields[1]); err == nil {
				loc = tz
			}
		}
		when = time.Unix(sec, 0).In(loc)
	}

	return Signature{Name: name, Email: email, When: when}, nil
}

// parseTimezone turns a git-style "+0200"/"-0530" offset into a fixed
// time.Location, without consulting the system timezone database.
func parseTimezone(s string) (*time.Location, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("object: invalid timezone offset %q", s)
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, err
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return nil, err
	}
	offset := hh*3600 + mm*60
	if s[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(s, offset), nil
}

// Encode renders the signature back to the exact "Name <email> <unix>
// <+HHMM>" form git writes.
func (s Signature) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.Name)
	buf.WriteString(" <")
	buf.WriteString(s.Email)
	buf.WriteString("> ")
	when := s.When
	if when.IsZero() {
		when = time.Unix(0, 0).UTC()
	}
	buf.WriteString(strconv.FormatInt(when.Unix(), 10))
	buf.WriteByte(' ')
	buf.WriteString(formatTimezone(when))
	return buf.Bytes()
}

func formatTimezone(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d%02d", sign, offset/3600, (offset%3600)/60)
}

func (s Signature) String() string {
	return string(s.Encode())
}
