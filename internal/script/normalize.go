package script

import (
	"strings"

	"github.com/roach88/sqlscript/internal/sqlerr"
)

// Statement is one normalized SQL command and its ordered parameter names.
type Statement struct {
	// Text is the statement with every placeholder replaced by '?'.
	Text string

	// Params holds one name per marker, in marker order.
	Params []string

	// fragments are the literal pieces around the markers;
	// len(fragments) == len(Params)+1.
	fragments []string
}

// Render rebuilds the statement text using marker to produce the positional
// marker for each 1-based position. Engines that do not use '?' render
// their own form ("$1", "$2", ...).
func (s Statement) Render(marker func(position int) string) string {
	if len(s.fragments) == 0 {
		return s.Text
	}
	var b strings.Builder
	for i, frag := range s.fragments {
		b.WriteString(frag)
		if i < len(s.Params) {
			b.WriteString(marker(i + 1))
		}
	}
	return b.String()
}

// QuestionMark is the default positional marker.
func QuestionMark(int) string {
	return "?"
}

// Collapse removes comments, strips every line, drops blank lines and
// joins what is left with single spaces.
func Collapse(text string) string {
	var parts []string
	for _, line := range strings.Split(StripComments(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

// StripComments removes "--" line comments and "/* */" block comments
// that sit outside single or double quoted literals. A block comment
// becomes one space; a line comment keeps its line break. An unterminated
// block comment runs to the end of text.
func StripComments(text string) string {
	var (
		b     strings.Builder
		quote byte
	)
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			// A doubled quote closes and reopens the literal.
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)

		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)

		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end - 1

		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			b.WriteByte(' ')
			if end < 0 {
				return b.String()
			}
			i += 2 + end + 1

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Normalize splits raw script text into statements.
// Empty and comment-only segments are dropped; a trailing ';' is optional.
func Normalize(text string) ([]Statement, error) {
	var statements []Statement
	for _, candidate := range strings.Split(Collapse(text), ";") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		stmt, err := parseStatement(candidate)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

// parseStatement extracts ${name} placeholders left to right.
func parseStatement(text string) (Statement, error) {
	var (
		fragments []string
		params    []string
	)

	rest := text
	for {
		from := strings.Index(rest, "${")
		if from < 0 {
			fragments = append(fragments, rest)
			break
		}

		to := strings.IndexByte(rest[from+2:], '}')
		if to < 0 {
			return Statement{}, &sqlerr.Error{
				Kind:      sqlerr.KindParse,
				Message:   "unterminated ${ placeholder",
				Statement: text,
			}
		}

		name := strings.TrimSpace(rest[from+2 : from+2+to])
		if name == "" {
			return Statement{}, &sqlerr.Error{
				Kind:      sqlerr.KindParse,
				Message:   "empty placeholder name",
				Statement: text,
			}
		}

		fragments = append(fragments, rest[:from])
		params = append(params, name)
		rest = rest[from+2+to+1:]
	}

	stmt := Statement{Params: params, fragments: fragments}
	stmt.Text = stmt.Render(QuestionMark)
	return stmt, nil
}
