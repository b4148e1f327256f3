package wildmatch

import "testing"

func TestMatchLiteral(t *testing.T) {
	if !Match("refs/heads/main", "refs/heads/main") {
		t.Fatal("expected literal match")
	}
	if Match("refs/heads/main", "refs/heads/other") {
		t.Fatal("expected literal mismatch")
	}
}

func TestMatchStar(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"refs/heads/*", "refs/heads/main", true},
		{"refs/heads/*", "refs/heads/feature/x", false},
		{"refs/heads/feature/*", "refs/heads/feature/x", true},
		{"refs/heads/rel-*", "refs/heads/rel-1.0", true},
		{"refs/heads/rel-*", "refs/heads/other", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.name); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestMatchDoubleStar(t *testing.T) {
	if !Match("refs/**", "refs/heads/feature/x") {
		t.Fatal("** should match any number of components")
	}
	if !Match("refs/**/HEAD", "refs/remotes/origin/HEAD") {
		t.Fatal("** should match intermediate components before a literal suffix")
	}
	if Match("refs/**/HEAD", "refs/remotes/origin/main") {
		t.Fatal("** should still require the fixed suffix to match")
	}
}

func TestMatchQuestionMark(t *testing.T) {
	if !Match("refs/tags/v?.0", "refs/tags/v1.0") {
		t.Fatal("? should match exactly one rune")
	}
	if Match("refs/tags/v?.0", "refs/tags/v10.0") {
		t.Fatal("? should not match two runes")
	}
}

func TestMatchCharClass(t *testing.T) {
	if !Match("refs/tags/v[0-9].0", "refs/tags/v1.0") {
		t.Fatal("expected digit range to match")
	}
	if Match("refs/tags/v[0-9].0", "refs/tags/va.0") {
		t.Fatal("expected non-digit to fail a digit range")
	}
	if !Match("refs/heads/[!x]ain", "refs/heads/main") {
		t.Fatal("negated class should match non-excluded rune")
	}
	if Match("refs/heads/[!m]ain", "refs/heads/main") {
		t.Fatal("negated class should exclude the named rune")
	}
}

func TestHasWildcard(t *testing.T) {
	if HasWildcard("refs/heads/main") {
		t.Fatal("literal pattern has no wildcard")
	}
	if !HasWildcard("refs/heads/*") {
		t.Fatal("expected '*' to be detected as a wildcard")
	}
}
