package parse

import (
	"fmt"
	"unicode"

	"github.com/anmitsu/go-shlex"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPipe
	tokSemi
	tokNewline
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokWord:
		return "word"
	case tokPipe:
		return "`|`"
	case tokSemi:
		return "`;`"
	case tokNewline:
		return "newline"
	case tokLBrace:
		return "`{`"
	case tokRBrace:
		return "`}`"
	case tokLBracket:
		return "`[`"
	case tokRBracket:
		return "`]`"
	case tokComma:
		return "`,`"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	// raw is the word as written; text is the word with quotes removed.
	raw    string
	text   string
	quoted bool
	sp     span.Span
}

var punctuation = map[byte]tokenKind{
	'|':  tokPipe,
	';':  tokSemi,
	'\n': tokNewline,
	'{':  tokLBrace,
	'}':  tokRBrace,
	'[':  tokLBracket,
	']':  tokRBracket,
	',':  tokComma,
}

// lex splits src into tokens. Spans are shifted by base so they address the
// engine's cumulative source.
func lex(src []byte, base int) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '\n' || c == ';' || c == '|' || c == '{' || c == '}' || c == '[' || c == ']' || c == ',':
			toks = append(toks, token{kind: punctuation[c], raw: string(c), text: string(c), sp: span.New(base+i, base+i+1)})
			i++
		case c < 0x80 && unicode.IsSpace(rune(c)):
			i++
		default:
			tok, next, err := lexWord(src, i, base)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		}
	}
	return append(toks, token{kind: tokEOF, sp: span.New(base+len(src), base+len(src))}), nil
}

func isWordEnd(c byte) bool {
	if _, ok := punctuation[c]; ok {
		return true
	}
	return c == ' ' || c == '\t' || c == '\r'
}

// lexWord scans one word starting at start. Quoted sections may contain
// delimiters; the word's text is unquoted by shlex.
func lexWord(src []byte, start, base int) (token, int, error) {
	i := start
	quoted := false
	for i < len(src) && !isWordEnd(src[i]) {
		q := src[i]
		if q == '\\' && i+1 < len(src) {
			i += 2
			continue
		}
		if q != '"' && q != '\'' {
			i++
			continue
		}

		quoted = true
		open := i
		i++
		for i < len(src) && src[i] != q {
			if q == '"' && src[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(src) {
			return token{}, 0, shellerr.New(shellerr.ParseError, "Unclosed quote").
				WithLabel("this quote is never closed", span.New(base+open, base+len(src)))
		}
		i++
	}

	raw := string(src[start:i])
	sp := span.New(base+start, base+i)
	parts, err := shlex.Split(raw, true)
	if err != nil {
		return token{}, 0, shellerr.Newf(shellerr.ParseError, "Cannot read word: %v", err).
			WithLabel("malformed word", sp)
	}

	text := ""
	switch len(parts) {
	case 0:
	case 1:
		text = parts[0]
	default:
		return token{}, 0, shellerr.New(shellerr.ParseError, "Cannot read word").
			WithLabel("unexpected whitespace in word", sp)
	}
	return token{kind: tokWord, raw: raw, text: text, quoted: quoted, sp: sp}, i, nil
}
