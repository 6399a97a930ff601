package search

import (
	"fmt"

	"github.com/conorfennell/recall/internal/parser"
)

// Tree is the parsed form of a query: either a leaf token or an
// operator applied to subtrees.
type Tree struct {
	Atom *Token
	Op   TokenKind
	Args []Tree
}

func atom(t Token) Tree { return Tree{Atom: &t} }

func cons(op TokenKind, args ...Tree) Tree { return Tree{Op: op, Args: args} }

// binding powers; a higher power binds tighter. Left/right pairs encode
// associativity.
func infixPower(k TokenKind) (int, int, bool) {
	switch k {
	case TokenAnd, TokenOr:
		return 3, 4, true
	case TokenLt, TokenLe, TokenGt, TokenGe:
		return 6, 5, true
	case TokenColon:
		return 9, 8, true
	case TokenEq, TokenTilde:
		return 11, 10, true
	}
	return 0, 0, false
}

const prefixMinusPower = 4

type treeParser struct {
	tokens []Token
	pos    int
}

func (p *treeParser) peek() (Token, bool) {
	if p.pos >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *treeParser) next() (Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// Parse lexes and parses a query into a Tree. Adjacent terms combine
// with an implied and.
func Parse(query string) (Tree, error) {
	tokens, err := Lex(query)
	if err != nil {
		return Tree{}, err
	}
	if len(tokens) == 0 {
		return Tree{}, &LexError{Description: "empty query", At: parser.Span{}}
	}
	p := &treeParser{tokens: tokens}
	tree, err := p.expr(0)
	if err != nil {
		return Tree{}, err
	}
	if t, ok := p.peek(); ok {
		return Tree{}, &LexError{Description: fmt.Sprintf("unexpected %s", t.Kind), At: t.Span}
	}
	return tree, nil
}

func (p *treeParser) expr(minPower int) (Tree, error) {
	t, ok := p.next()
	if !ok {
		return Tree{}, &LexError{Description: "unexpected end of query", At: parser.Span{}}
	}

	var lhs Tree
	switch t.Kind {
	case TokenLParen:
		inner, err := p.expr(0)
		if err != nil {
			return Tree{}, err
		}
		closing, ok := p.next()
		if !ok || closing.Kind != TokenRParen {
			return Tree{}, &LexError{Description: "missing closing paren", At: t.Span}
		}
		lhs = inner
	case TokenMinus:
		rhs, err := p.expr(prefixMinusPower)
		if err != nil {
			return Tree{}, err
		}
		lhs = cons(TokenMinus, rhs)
	case TokenIdent, TokenString, TokenInt, TokenFloat, TokenBool, TokenDate:
		lhs = atom(t)
	default:
		return Tree{}, &LexError{Description: fmt.Sprintf("unexpected %s", t.Kind), At: t.Span}
	}

	for {
		op, ok := p.peek()
		if !ok || op.Kind == TokenRParen {
			break
		}
		if left, right, isInfix := infixPower(op.Kind); isInfix {
			if left < minPower {
				break
			}
			p.pos++
			rhs, err := p.expr(right)
			if err != nil {
				return Tree{}, err
			}
			lhs = cons(op.Kind, lhs, rhs)
			continue
		}
		// adjacency is an implied and
		left, right, _ := infixPower(TokenAnd)
		if left < minPower {
			break
		}
		rhs, err := p.expr(right)
		if err != nil {
			return Tree{}, err
		}
		lhs = cons(TokenAnd, lhs, rhs)
	}
	return lhs, nil
}
