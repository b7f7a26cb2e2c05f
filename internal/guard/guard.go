// Package guard decides whether an untrusted SQL candidate may run.
//
// Validate applies a conservative lexical policy: exactly one statement,
// starting with SELECT or WITH, containing no data- or schema-modifying
// verb anywhere. A candidate that passes comes back as a Query, the only
// input the executor accepts.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/koustreak/querygate/internal/errs"
)

// Query is a statement that passed every check in Validate. The zero
// value is not a valid query.
type Query struct {
	text string
}

// String returns the normalized statement text.
func (q Query) String() string { return q.text }

// IsZero reports whether q was not produced by Validate.
func (q Query) IsZero() bool { return q.text == "" }

// forbiddenVerb pairs a verb with its word-boundary pattern.
type forbiddenVerb struct {
	verb    string
	pattern string
	re      *regexp.Regexp
}

// forbidden is checked in order; the first match is reported.
var forbidden = compile(
	"insert", "update", "delete", "drop", "alter",
	"create", "truncate", "merge", "exec", "execute",
)

func compile(verbs ...string) []forbiddenVerb {
	out := make([]forbiddenVerb, len(verbs))
	for i, v := range verbs {
		p := `\b` + v + `\b`
		out[i] = forbiddenVerb{verb: v, pattern: p, re: regexp.MustCompile(`(?i)` + p)}
	}
	return out
}

// ForbiddenVerbs lists the verbs Validate rejects, in check order.
func ForbiddenVerbs() []string {
	out := make([]string, len(forbidden))
	for i, f := range forbidden {
		out[i] = f.verb
	}
	return out
}

var (
	fenceTag     = regexp.MustCompile(`^[A-Za-z0-9_+-]*$`)
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Validate checks raw against the read-only policy. The first failing gate
// wins; its rule is available through errs.RuleOf.
func Validate(raw string) (Query, error) {
	text := normalize(raw)

	if text == "" {
		return Query{}, errs.Rejected(errs.RuleEmptyCandidate, "empty SQL candidate", "")
	}

	if strings.Contains(text[:len(text)-1], ";") {
		return Query{}, errs.Rejected(errs.RuleMultipleStatements, "multiple SQL statements are not allowed", "")
	}

	// The verb gate precedes the keyword gate: "DROP TABLE t" is a
	// ForbiddenOperation, not a DisallowedStatementType.
	lower := strings.ToLower(text)
	if f, ok := findForbidden(lower); ok {
		return Query{}, forbiddenErr(f)
	}
	// Comments can split a verb ("DEL/**/ETE"); scan again without them.
	if f, ok := findForbidden(stripComments(lower)); ok {
		return Query{}, forbiddenErr(f)
	}

	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return Query{}, errs.Rejected(errs.RuleDisallowedStatementType, "only SELECT queries (optionally with a WITH clause) are allowed", "")
	}

	text = strings.TrimSuffix(text, ";")
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	return Query{text: text}, nil
}

// MustValidate is like Validate but panics on rejection. Intended for
// statements fixed at compile time.
func MustValidate(raw string) Query {
	q, err := Validate(raw)
	if err != nil {
		panic(err)
	}
	return q
}

func findForbidden(text string) (forbiddenVerb, bool) {
	for _, f := range forbidden {
		if f.re.MatchString(text) {
			return f, true
		}
	}
	return forbiddenVerb{}, false
}

func forbiddenErr(f forbiddenVerb) error {
	return errs.Rejected(
		errs.RuleForbiddenOperation,
		fmt.Sprintf("forbidden SQL operation %q detected: %s", f.verb, f.pattern),
		f.pattern,
	)
}

func stripComments(s string) string {
	s = blockComment.ReplaceAllString(s, "")
	return lineComment.ReplaceAllString(s, "")
}

// normalize trims whitespace and removes one layer of markdown code fence
// or enclosing single backticks.
func normalize(raw string) string {
	text := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(text, "```"):
		body := strings.TrimPrefix(text, "```")
		if len(body) >= 3 && strings.HasSuffix(body, "```") {
			body = strings.TrimSuffix(body, "```")
		}
		// An opening line holding only a language tag is dropped.
		if first, rest, ok := strings.Cut(body, "\n"); ok && isFenceTag(first) {
			body = rest
		}
		text = body
	case len(text) >= 2 && strings.HasPrefix(text, "`") && strings.HasSuffix(text, "`"):
		text = text[1 : len(text)-1]
	}

	return strings.TrimSpace(text)
}

func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "select", "with":
		return false
	}
	return fenceTag.MatchString(line)
}
