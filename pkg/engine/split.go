package engine

import (
	"strings"
	"unicode"
)

// splitStatement returns the first complete SQL statement of query, its terminating
// semicolon included, and the remainder. Semicolons inside string literals, quoted
// identifiers, comments and CREATE TRIGGER bodies do not end a statement. Adapters
// whose driver does not report the unparsed tail use it to walk a script.
func splitStatement(query string) (head, tail string) {
	var (
		words     int
		create    bool
		trigger   bool
		lastWord  string
		wordStart = -1
	)
	endWord := func(i int) {
		if wordStart < 0 {
			return
		}
		w := strings.ToLower(query[wordStart:i])
		wordStart = -1
		words++
		switch {
		case words == 1 && w == "create":
			create = true
		case create && words <= 4 && w == "trigger":
			trigger = true
		}
		lastWord = w
	}

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			endWord(i)
			i = skipQuoted(query, i, c)
		case c == '[':
			endWord(i)
			i = skipQuoted(query, i, ']')
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			endWord(i)
			if j := strings.IndexByte(query[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(query)
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			endWord(i)
			if j := strings.Index(query[i+2:], "*/"); j >= 0 {
				i += j + 3
			} else {
				i = len(query)
			}
		case c == ';':
			endWord(i)
			if !trigger || lastWord == "end" {
				return query[:i+1], query[i+1:]
			}
			lastWord = ";"
		case c == '_' || c < 0x80 && (unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))):
			if wordStart < 0 {
				wordStart = i
			}
		default:
			endWord(i)
		}
	}
	return query, ""
}

// skipQuoted returns the index of the byte closing the quoted run that opens at
// query[start]. A doubled closing quote is an escaped quote.
func skipQuoted(query string, start int, closing byte) int {
	for i := start + 1; i < len(query); i++ {
		if query[i] != closing {
			continue
		}
		if closing != ']' && i+1 < len(query) && query[i+1] == closing {
			i++
			continue
		}
		return i
	}
	return len(query)
}
