package config

import (
	"dario.cat/mergo"
)

// Scope identifies which on-disk config file a value came from. Git
// consults system, global, and local (and, for worktrees, a
// worktree-specific file) in ascending priority: local overrides global
// overrides system.
type Scope int

const (
	SystemScope Scope = iota
	GlobalScope
	LocalScope
	WorktreeScope
	numScopes
)

// flatValues is a merge-friendly projection of a Config: one map per
// section[.subsection] key to its option map, used so mergo's
// struct-merge (keyed by map entries here, since Config's tree shape
// isn't itself mergo-friendly) can express "local overrides global
// overrides system" as a single WithOverride merge per scope.
type flatValues map[string]map[string]string

func flatten(c *Config) flatValues {
	out := flatValues{}
	for _, s := range c.Sections {
		out[s.Name] = flattenOptions(s.Options)
		for _, ss := range s.Subsections {
			out[s.Name+"."+ss.Name] = flattenOptions(ss.Options)
		}
	}
	return out
}

func flattenOptions(opts Options) map[string]string {
	m := map[string]string{}
	for _, o := range opts {
		m[o.Key] = o.Value
	}
	return m
}

// Scoped holds one Config per scope and produces an effective,
// priority-merged view without mutating any of the per-scope configs.
type Scoped struct {
	configs [numScopes]*Config
}

// NewScoped returns a Scoped with an empty Config in every scope.
func NewScoped() *Scoped {
	s := &Scoped{}
	for i := range s.configs {
		s.configs[i] = New()
	}
	return s
}

// Set installs cfg as the config for scope.
func (s *Scoped) Set(scope Scope, cfg *Config) { s.configs[scope] = cfg }

// Get returns the per-scope Config for scope (not the merged view).
func (s *Scoped) Get(scope Scope) *Config { return s.configs[scope] }

// Merge produces the effective config across every scope, applied in
// ascending scope order so a later (higher-priority) scope's values
// win via mergo.WithOverride, matching git's own local-overrides-global-
// overrides-system precedence.
func (s *Scoped) Merge() (*Config, error) {
	merged := flatValues{}
	for scope := SystemScope; scope < numScopes; scope++ {
		if s.configs[scope] == nil {
			continue
		}
		flat := flatten(s.configs[scope])
		if err := mergo.Merge(&merged, flat, mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	return unflatten(merged), nil
}

func unflatten(flat flatValues) *Config {
	cfg := New()
	for key, opts := range flat {
		section, subsection := splitSectionKey(key)
		for k, v := range opts {
			cfg.AddOption(section, subsection, k, v)
		}
	}
	return cfg
}

func splitSectionKey(key string) (section, subsection string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, NoSubsection
}
