package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/parser"
)

// TokenKind discriminates query tokens.
type TokenKind int

const (
	TokenIdent TokenKind = iota
	TokenString
	TokenInt
	TokenFloat
	TokenBool
	TokenDate
	TokenAnd
	TokenOr
	TokenMinus
	TokenEq
	TokenTilde
	TokenColon
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenLParen
	TokenRParen
)

func (k TokenKind) String() string {
	switch k {
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenInt:
		return "integer"
	case TokenFloat:
		return "float"
	case TokenBool:
		return "boolean"
	case TokenDate:
		return "date"
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenMinus:
		return "-"
	case TokenEq:
		return "="
	case TokenTilde:
		return "~"
	case TokenColon:
		return ":"
	case TokenLt:
		return "<"
	case TokenLe:
		return "<="
	case TokenGt:
		return ">"
	case TokenGe:
		return ">="
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	}
	return "unknown"
}

// Token is one lexed unit with its source span. Text holds the decoded
// value for strings and the literal spelling otherwise.
type Token struct {
	Kind TokenKind
	Text string
	Span parser.Span
}

// LexError reports a malformed query with the offending span.
type LexError struct {
	Description string
	At          parser.Span
}

func (e *LexError) Error() string {
	return fmt.Sprintf("invalid query at %d..%d: %s", e.At.Start, e.At.End, e.Description)
}

const dateLayout = "2006-01-02"

func isOperatorByte(b byte) bool {
	switch b {
	case '=', '~', ':', '<', '>', '(', ')':
		return true
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Lex tokenizes a query string. Bare words end at whitespace, an
// operator byte or a paren; quoted strings support backslash escapes
// and the raw form #"…"# takes its content verbatim.
func Lex(query string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(query) {
		b := query[i]
		switch {
		case isSpace(b):
			i++

		case b == '(':
			tokens = append(tokens, Token{Kind: TokenLParen, Text: "(", Span: parser.Span{Start: i, End: i + 1}})
			i++
		case b == ')':
			tokens = append(tokens, Token{Kind: TokenRParen, Text: ")", Span: parser.Span{Start: i, End: i + 1}})
			i++
		case b == '=':
			tokens = append(tokens, Token{Kind: TokenEq, Text: "=", Span: parser.Span{Start: i, End: i + 1}})
			i++
		case b == '~':
			tokens = append(tokens, Token{Kind: TokenTilde, Text: "~", Span: parser.Span{Start: i, End: i + 1}})
			i++
		case b == ':':
			tokens = append(tokens, Token{Kind: TokenColon, Text: ":", Span: parser.Span{Start: i, End: i + 1}})
			i++
		case b == '<' || b == '>':
			kind := TokenLt
			if b == '>' {
				kind = TokenGt
			}
			end := i + 1
			if end < len(query) && query[end] == '=' {
				if kind == TokenLt {
					kind = TokenLe
				} else {
					kind = TokenGe
				}
				end++
			}
			tokens = append(tokens, Token{Kind: kind, Text: query[i:end], Span: parser.Span{Start: i, End: end}})
			i = end
		case b == '-':
			tokens = append(tokens, Token{Kind: TokenMinus, Text: "-", Span: parser.Span{Start: i, End: i + 1}})
			i++

		case b == '"':
			tok, next, err := lexQuoted(query, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next

		case b == '#' && i+1 < len(query) && query[i+1] == '"':
			end := strings.Index(query[i+2:], `"#`)
			if end < 0 {
				return nil, &LexError{Description: "unterminated raw string", At: parser.Span{Start: i, End: len(query)}}
			}
			tokens = append(tokens, Token{
				Kind: TokenString,
				Text: query[i+2 : i+2+end],
				Span: parser.Span{Start: i, End: i + 2 + end + 2},
			})
			i += 2 + end + 2

		default:
			tok := lexWord(query, i)
			tokens = append(tokens, tok)
			i = tok.Span.End
		}
	}
	return tokens, nil
}

func lexQuoted(query string, start int) (Token, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(query) {
		switch query[i] {
		case '\\':
			if i+1 >= len(query) {
				return Token{}, 0, &LexError{Description: "unterminated escape", At: parser.Span{Start: i, End: len(query)}}
			}
			b.WriteByte(query[i+1])
			i += 2
		case '"':
			return Token{Kind: TokenString, Text: b.String(), Span: parser.Span{Start: start, End: i + 1}}, i + 1, nil
		default:
			b.WriteByte(query[i])
			i++
		}
	}
	return Token{}, 0, &LexError{Description: "unterminated string", At: parser.Span{Start: start, End: len(query)}}
}

// lexWord scans a bare word and classifies it as keyword, number, date,
// boolean or identifier. Digit-initial words may contain dashes and
// dots so dates and floats survive as single tokens.
func lexWord(query string, start int) Token {
	digits := query[start] >= '0' && query[start] <= '9'
	i := start
	for i < len(query) && !isSpace(query[i]) {
		b := query[i]
		if b == '-' && !digits {
			break
		}
		if isOperatorByte(b) {
			break
		}
		i++
	}
	text := query[start:i]
	span := parser.Span{Start: start, End: i}
	switch text {
	case "and":
		return Token{Kind: TokenAnd, Text: text, Span: span}
	case "or":
		return Token{Kind: TokenOr, Text: text, Span: span}
	case "true", "false":
		return Token{Kind: TokenBool, Text: text, Span: span}
	}
	if digits {
		if _, err := time.Parse(dateLayout, text); err == nil {
			return Token{Kind: TokenDate, Text: text, Span: span}
		}
		if isInt(text) {
			return Token{Kind: TokenInt, Text: text, Span: span}
		}
		if isFloat(text) {
			return Token{Kind: TokenFloat, Text: text, Span: span}
		}
	}
	return Token{Kind: TokenIdent, Text: text, Span: span}
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isFloat(s string) bool {
	dot := false
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			if dot {
				return false
			}
			dot = true
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return dot
}
