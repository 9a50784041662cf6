package policy

import (
	"strings"

	"github.com/arloliu/causeway/types"
)

// SQLClassifier classifies SQL statements by their leading keyword.
//
// Comments and quoted literals are removed before inspection, and
// multi-statement text is a read only when every statement is a read.
// Anything the classifier does not recognize is a write: misclassifying a
// read costs a trip to the primary, misclassifying a write loses
// read-after-write.
//
// SQLClassifier is immutable after construction and safe for concurrent use.
type SQLClassifier struct {
	mutatingFuncs map[string]struct{}
}

// SQLClassifierOption configures a SQLClassifier.
type SQLClassifierOption func(*SQLClassifier)

// WithMutatingFunctions adds function names that make an otherwise
// read-only statement a write, such as sequence advancers.
//
// Parameters:
//   - names: Function names, case-insensitive
//
// Returns:
//   - SQLClassifierOption: Configuration option
func WithMutatingFunctions(names ...string) SQLClassifierOption {
	return func(c *SQLClassifier) {
		for _, name := range names {
			c.mutatingFuncs[strings.ToUpper(name)] = struct{}{}
		}
	}
}

// NewSQLClassifier creates a new SQLClassifier.
//
// NEXTVAL and SETVAL are registered as mutating functions by default.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *SQLClassifier: A new classifier
func NewSQLClassifier(opts ...SQLClassifierOption) *SQLClassifier {
	c := &SQLClassifier{
		mutatingFuncs: map[string]struct{}{
			"NEXTVAL": {},
			"SETVAL":  {},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// mutatingWords are keywords that turn a WITH or EXPLAIN statement into a write.
var mutatingWords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"MERGE":    {},
	"REPLACE":  {},
	"UPSERT":   {},
	"CREATE":   {},
	"DROP":     {},
	"ALTER":    {},
	"TRUNCATE": {},
}

// Classify returns KindRead only when the statement cannot mutate state.
//
// Parameters:
//   - statement: The SQL text
//
// Returns:
//   - types.Kind: KindRead or KindWrite
func (c *SQLClassifier) Classify(statement string) types.Kind {
	words, ok := tokenize(statement)
	if !ok {
		return types.KindWrite
	}

	statements := splitStatements(words)
	if len(statements) == 0 {
		return types.KindWrite
	}

	for _, stmt := range statements {
		if !c.isRead(stmt) {
			return types.KindWrite
		}
	}

	return types.KindRead
}

func (c *SQLClassifier) isRead(words []string) bool {
	if len(words) == 0 {
		return false
	}

	switch words[0] {
	case "SELECT", "VALUES", "TABLE":
		return c.readOnlyBody(words)
	case "WITH":
		return !containsAny(words, mutatingWords) && c.readOnlyBody(words)
	case "SHOW", "DESCRIBE", "DESC":
		return true
	case "EXPLAIN":
		rest := words[1:]
		for len(rest) > 0 && (rest[0] == "QUERY" || rest[0] == "PLAN") {
			rest = rest[1:]
		}
		if containsWord(rest, "ANALYZE") {
			return false
		}

		return c.isRead(rest)
	default:
		return false
	}
}

// readOnlyBody rejects SELECT forms that write or take row locks.
func (c *SQLClassifier) readOnlyBody(words []string) bool {
	for i, w := range words {
		switch w {
		case "INTO":
			return false
		case "FOR":
			if i+1 < len(words) {
				switch words[i+1] {
				case "UPDATE", "SHARE", "NO":
					return false
				}
			}
		}
		if _, mutating := c.mutatingFuncs[w]; mutating {
			return false
		}
	}

	return true
}

// tokenize upper-cases the identifier words of a statement and replaces
// each ';' with its own token. Comments and quoted text are dropped.
//
// It reports false when a literal or block comment is left unterminated,
// and when a literal's end depends on dialect rules it does not follow: a
// backslash inside a quoted literal (MySQL strings, Postgres E'...') or a
// '$' that is not a numbered placeholder (Postgres dollar quoting).
func tokenize(s string) ([]string, bool) {
	var (
		words []string
		cur   strings.Builder
	)

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToUpper(cur.String()))
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]

		switch {
		case ch == '-' && i+1 < len(s) && s[i+1] == '-':
			flush()
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			flush()
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return nil, false
			}
			i += end + 3
		case ch == '\'' || ch == '"' || ch == '`':
			flush()
			end := closingQuote(s, i+1, ch)
			if end < 0 || strings.IndexByte(s[i+1:end], '\\') >= 0 {
				return nil, false
			}
			i = end
		case ch == '$':
			// $1 is a placeholder; $$ and $tag$ open a dollar-quoted body.
			if i+1 >= len(s) || s[i+1] < '0' || s[i+1] > '9' {
				return nil, false
			}
			flush()
		case ch == ';':
			flush()
			words = append(words, ";")
		case isWordByte(ch):
			cur.WriteByte(ch)
		default:
			flush()
		}
	}
	flush()

	return words, true
}

// closingQuote returns the index of the quote that closes a literal
// starting at from. A doubled quote is an escaped quote.
func closingQuote(s string, from int, quote byte) int {
	for i := from; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}

		return i
	}

	return -1
}

func isWordByte(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

// splitStatements splits tokens on ';' and drops empty statements.
func splitStatements(words []string) [][]string {
	var (
		out [][]string
		cur []string
	)

	for _, w := range words {
		if w == ";" {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}

	return out
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}

	return false
}

func containsAny(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}

	return false
}
