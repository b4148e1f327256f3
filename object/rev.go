package object

import (
	"fmt"
	"strconv"
	"strings"
)

// RevOpKind identifies one suffix operator in a revision expression.
type RevOpKind int8

const (
	// RevOpParent selects the Nth parent of a commit ("^N"; bare "^" is N=1).
	RevOpParent RevOpKind = iota
	// RevOpAncestor walks N generations along first-parent history ("~N";
	// bare "~" is N=1).
	RevOpAncestor
	// RevOpPeel dereferences tags/commits down to a target type, e.g.
	// "^{commit}", "^{tree}", "^{tag}", "^{blob}", or "^{}" for "peel as
	// far as possible".
	RevOpPeel
	// RevOpPeelRegex searches history reachable from the preceding
	// revision for the first commit whose message matches (or, if
	// Negate, does not match) a regular expression: "^{/re}" or "^{/!-re}".
	RevOpPeelRegex
	// RevOpAt is an "@{...}" selector: reflog position ("@{1}"), a
	// checkout-relative branch ("@{-1}"), an upstream ("@{upstream}" /
	// "@{u}"), a push target ("@{push}"), or a date ("@{2026-01-01}").
	// Its literal content is captured uninterpreted.
	RevOpAt
)

// RevOp is one parsed suffix operator.
type RevOp struct {
	Kind  RevOpKind
	N     int    // RevOpParent, RevOpAncestor
	Type  string // RevOpPeel: "commit"/"tree"/"tag"/"blob"/"" (peel-all)
	Regex string // RevOpPeelRegex, RevOpAt: raw captured text
	Negate bool  // RevOpPeelRegex: pattern was "!-"-prefixed
}

// RevExpr is a revision expression decomposed into its base (a ref name,
// OID prefix, or other low-level rev syntax this package does not itself
// resolve) and the ordered suffix operators applied to it. Decomposition
// is purely syntactic: resolving Base or applying Ops against an object
// database is the caller's job.
type RevExpr struct {
	Base string
	Ops  []RevOp
}

// ErrInvalidRevSyntax is returned for a malformed revision expression.
var ErrInvalidRevSyntax = fmt.Errorf("object: invalid revision syntax")

// ParseRevExpr decomposes a revision expression like "HEAD~3",
// "v1.0^{commit}", "abc123^{/fixes}", or "main@{upstream}" into its base
// and suffix operators.
func ParseRevExpr(s string) (RevExpr, error) {
	if s == "" {
		return RevExpr{}, fmt.Errorf("%w: empty expression", ErrInvalidRevSyntax)
	}

	i := strings.IndexAny(s, "^~@")
	if i < 0 {
		return RevExpr{Base: s}, nil
	}
	expr := RevExpr{Base: s[:i]}
	if expr.Base == "" {
		return RevExpr{}, fmt.Errorf("%w: missing base revision", ErrInvalidRevSyntax)
	}

	rest := s[i:]
	for len(rest) > 0 {
		switch rest[0] {
		case '^':
			rest = rest[1:]
			if strings.HasPrefix(rest, "{") {
				end := strings.IndexByte(rest, '}')
				if end < 0 {
					return RevExpr{}, fmt.Errorf("%w: unterminated ^{...}", ErrInvalidRevSyntax)
				}
				inner := rest[1:end]
				rest = rest[end+1:]
				if strings.HasPrefix(inner, "/") {
					pattern := inner[1:]
					negate := false
					if strings.HasPrefix(pattern, "!-") {
						negate = true
						pattern = pattern[2:]
					}
					expr.Ops = append(expr.Ops, RevOp{Kind: RevOpPeelRegex, Regex: pattern, Negate: negate})
				} else {
					expr.Ops = append(expr.Ops, RevOp{Kind: RevOpPeel, Type: inner})
				}
				continue
			}
			n, consumed, err := leadingInt(rest, 1)
			if err != nil {
				return RevExpr{}, err
			}
			rest = rest[consumed:]
			expr.Ops = append(expr.Ops, RevOp{Kind: RevOpParent, N: n})
		case '~':
			rest = rest[1:]
			n, consumed, err := leadingInt(rest, 1)
			if err != nil {
				return RevExpr{}, err
			}
			rest = rest[consumed:]
			expr.Ops = append(expr.Ops, RevOp{Kind: RevOpAncestor, N: n})
		case '@':
			rest = rest[1:]
			if !strings.HasPrefix(rest, "{") {
				return RevExpr{}, fmt.Errorf("%w: expected '{' after '@'", ErrInvalidRevSyntax)
			}
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return RevExpr{}, fmt.Errorf("%w: unterminated @{...}", ErrInvalidRevSyntax)
			}
			expr.Ops = append(expr.Ops, RevOp{Kind: RevOpAt, Regex: rest[1:end]})
			rest = rest[end+1:]
		default:
			return RevExpr{}, fmt.Errorf("%w: unexpected %q", ErrInvalidRevSyntax, rest[0])
		}
	}
	return expr, nil
}

// leadingInt consumes a run of leading decimal digits from s (which may
// be empty), returning deflt if none are present.
func leadingInt(s string, deflt int) (n int, consumed int, err error) {
	j := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == 0 {
		return deflt, 0, nil
	}
	n, err = strconv.Atoi(s[:j])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad integer %q", ErrInvalidRevSyntax, s[:j])
	}
	return n, j, nil
}

// String renders expr back to its textual form.
func (e RevExpr) String() string {
	var sb strings.Builder
	sb.WriteString(e.Base)
	for _, op := range e.Ops {
		switch op.Kind {
		case RevOpParent:
			if op.N == 1 {
				sb.WriteString("^")
			} else {
				fmt.Fprintf(&sb, "^%d", op.N)
			}
		case RevOpAncestor:
			if op.N == 1 {
				sb.WriteString("~")
			} else {
				fmt.Fprintf(&sb, "~%d", op.N)
			}
		case RevOpPeel:
			fmt.Fprintf(&sb, "^{%s}", op.Type)
		case RevOpPeelRegex:
			if op.Negate {
				fmt.Fprintf(&sb, "^{/!-%s}", op.Regex)
			} else {
				fmt.Fprintf(&sb, "^{/%s}", op.Regex)
			}
		case RevOpAt:
			fmt.Fprintf(&sb, "@{%s}", op.Regex)
		}
	}
	return sb.String()
}
