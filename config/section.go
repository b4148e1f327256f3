package config

import (
	"fmt"
	"strings"
)

// Option is a single `key = value` line.
type Option struct {
	Key   string
	Value string
}

// IsKey reports whether name matches the option's key, case-insensitively
// (git-config keys are case-insensitive).
func (o *Option) IsKey(name string) bool {
	return strings.EqualFold(o.Key, name)
}

// Options is an ordered list of Option.
type Options []*Option

// GoString renders Options the way %#v would, without the slice's own
// brackets, matching the teacher's Section/Subsection GoString style.
func (opts Options) GoString() string {
	var parts []string
	for _, o := range opts {
		parts = append(parts, fmt.Sprintf("&config.Option{Key:%q, Value:%q}", o.Key, o.Value))
	}
	return strings.Join(parts, ", ")
}

// Section is a top-level `[name]` block: its own options plus any
// `[name "sub"]` subsections nested under it.
type Section struct {
	Name        string
	Options     Options
	Subsections Subsections
}

// Sections is an ordered list of Section.
type Sections []*Section

func (s *Section) GoString() string {
	return fmt.Sprintf("&config.Section{Name:%q, Options:%s, Subsections:%s}", s.Name, s.Options.GoString(), s.Subsections.GoString())
}

func (ss Sections) GoString() string {
	var parts []string
	for _, s := range ss {
		parts = append(parts, s.GoString())
	}
	return strings.Join(parts, ", ")
}

// IsName reports whether name matches the section's name, case-insensitively.
func (s *Section) IsName(name string) bool {
	return strings.EqualFold(s.Name, name)
}

// Subsection returns the named subsection, creating it if absent.
// Subsection names are case-sensitive, per spec.md §6's "case-sensitive
// in subsection" rule — unlike section and key names.
func (s *Section) Subsection(name string) *Subsection {
	for _, ss := range s.Subsections {
		if ss.IsName(name) {
			return ss
		}
	}
	ss := &Subsection{Name: name}
	s.Subsections = append(s.Subsections, ss)
	return ss
}

// HasSubsection reports whether s has a subsection named name.
func (s *Section) HasSubsection(name string) bool {
	for _, ss := range s.Subsections {
		if ss.IsName(name) {
			return true
		}
	}
	return false
}

// RemoveSubsection removes the named subsection, returning s for chaining.
func (s *Section) RemoveSubsection(name string) *Section {
	result := Subsections{}
	for _, ss := range s.Subsections {
		if !ss.IsName(name) {
			result = append(result, ss)
		}
	}
	s.Subsections = result
	return s
}

// Option returns the last value set for key (later definitions win, per
// spec.md §6 and git's own "last one wins" semantics), or "" if unset.
func (s *Section) Option(key string) string {
	for i := len(s.Options) - 1; i >= 0; i-- {
		if s.Options[i].IsKey(key) {
			return s.Options[i].Value
		}
	}
	return ""
}

// OptionAll returns every value set for key, in file order.
func (s *Section) OptionAll(key string) []string {
	out := []string{}
	for _, o := range s.Options {
		if o.IsKey(key) {
			out = append(out, o.Value)
		}
	}
	return out
}

// HasOption reports whether key is set at all.
func (s *Section) HasOption(key string) bool {
	for _, o := range s.Options {
		if o.IsKey(key) {
			return true
		}
	}
	return false
}

// AddOption appends a new key/value pair without disturbing any
// existing definitions of the same key (multi-valued keys, e.g.
// `remote.origin.fetch`, rely on this).
func (s *Section) AddOption(key, value string) *Section {
	s.Options = append(s.Options, &Option{Key: key, Value: value})
	return s
}

// SetOption replaces every existing definition of key with the given
// values (zero or more), preserving key's first position in the list.
func (s *Section) SetOption(key string, values ...string) *Section {
	s.Options = setOption(s.Options, key, values)
	return s
}

func setOption(opts Options, key string, values []string) Options {
	var out Options
	inserted := false
	for _, o := range opts {
		if !o.IsKey(key) {
			out = append(out, o)
			continue
		}
		if !inserted {
			for _, v := range values {
				out = append(out, &Option{Key: key, Value: v})
			}
			inserted = true
		}
	}
	if !inserted {
		for _, v := range values {
			out = append(out, &Option{Key: key, Value: v})
		}
	}
	return out
}

// Subsection is a `[name "sub"]` block.
type Subsection struct {
	Name    string
	Options Options
}

// Subsections is an ordered list of Subsection.
type Subsections []*Subsection

func (ss *Subsection) GoString() string {
	return fmt.Sprintf("&config.Subsection{Name:%q, Options:%s}", ss.Name, ss.Options.GoString())
}

func (s Subsections) GoString() string {
	var parts []string
	for _, ss := range s {
		parts = append(parts, ss.GoString())
	}
	return strings.Join(parts, ", ")
}

// IsName reports whether name matches the subsection's name, exactly
// (subsection names are case-sensitive).
func (ss *Subsection) IsName(name string) bool {
	return ss.Name == name
}

func (ss *Subsection) Option(key string) string {
	tmp := &Section{Options: ss.Options}
	return tmp.Option(key)
}

func (ss *Subsection) OptionAll(key string) []string {
	tmp := &Section{Options: ss.Options}
	return tmp.OptionAll(key)
}

func (ss *Subsection) HasOption(key string) bool {
	tmp := &Section{Options: ss.Options}
	return tmp.HasOption(key)
}

func (ss *Subsection) AddOption(key, value string) *Subsection {
	ss.Options = append(ss.Options, &Option{Key: key, Value: value})
	return ss
}

func (ss *Subsection) SetOption(key string, values ...string) *Subsection {
	ss.Options = setOption(ss.Options, key, values)
	return ss
}
