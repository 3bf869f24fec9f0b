package domain

import (
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Line is one raw command line received from a client. Its arguments are
// tokenized on first use and reused afterwards.
type Line struct {
	Raw  string
	args func() []string
}

func NewLine(raw string) *Line {
	return &Line{
		Raw:  raw,
		args: sync.OnceValue(func() []string { return Tokenize(raw) }),
	}
}

// Args returns every token of the line, keyword included.
func (l *Line) Args() []string {
	return slices.Clone(l.args())
}

// Keyword is the uppercased first token, or "" for an empty line.
func (l *Line) Keyword() string {
	args := l.args()
	if len(args) == 0 {
		return ""
	}
	return strings.ToUpper(args[0])
}

// Params returns the tokens following the keyword.
func (l *Line) Params() []string {
	args := l.args()
	if len(args) < 2 {
		return []string{}
	}
	return slices.Clone(args[1:])
}

func (l *Line) IsEmpty() bool {
	return len(l.args()) == 0
}

// Tokenize splits raw on whitespace. A double-quoted run is a single token
// with the quotes removed. A quote with no closing partner is dropped and the
// rest of the input is read as bare words.
func Tokenize(raw string) []string {
	args := []string{}
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '"':
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				i++
				continue
			}
			args = append(args, raw[i+1:i+1+end])
			i += end + 2
		default:
			j := i
			for j < len(raw) {
				r, size := utf8.DecodeRuneInString(raw[j:])
				if r == '"' || unicode.IsSpace(r) {
					break
				}
				j += size
			}
			args = append(args, raw[i:j])
			i = j
		}
	}
	return args
}

// Quote wraps s so that Tokenize reads it back as one token. Embedded double
// quotes cannot be escaped on the wire and are replaced by single quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}

// Merge joins parts into a line, quoting the ones that contain whitespace.
func Merge(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, part := range parts {
		if part == "" || strings.ContainsFunc(part, unicode.IsSpace) || strings.Contains(part, `"`) {
			quoted[i] = Quote(part)
			continue
		}
		quoted[i] = part
	}
	return strings.Join(quoted, " ")
}
