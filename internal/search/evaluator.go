package search

import (
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/conorfennell/recall/internal/domain"
)

// ReturnType selects what a compiled query yields.
type ReturnType int

const (
	ReturnNotes ReturnType = iota
	ReturnCards
)

// Compile turns a query into a parameterized SQL statement returning
// ids ordered ascending. The statement joins note and card so both
// namespaces are addressable from either return type.
func Compile(query string, ret ReturnType) (string, []interface{}, error) {
	tree, err := Parse(query)
	if err != nil {
		return "", nil, err
	}
	pred, err := compileNode(tree)
	if err != nil {
		return "", nil, err
	}

	var sb sq.SelectBuilder
	switch ret {
	case ReturnCards:
		sb = sq.Select("c.id").Distinct().
			From("card c").
			LeftJoin("note n ON n.id = c.note_id").
			Where(pred).
			OrderBy("c.id ASC")
	default:
		sb = sq.Select("n.id").Distinct().
			From("note n").
			LeftJoin("card c ON c.note_id = n.id").
			Where(pred).
			OrderBy("n.id ASC")
	}
	return sb.ToSql()
}

func compileNode(t Tree) (sq.Sqlizer, error) {
	if t.Atom != nil {
		switch t.Atom.Kind {
		case TokenIdent, TokenString:
			like := "%" + t.Atom.Text + "%"
			return sq.Or{
				sq.Like{"n.data": like},
				sq.Like{"n.keywords": like},
			}, nil
		}
		return nil, &LexError{Description: fmt.Sprintf("dangling %s", t.Atom.Kind), At: t.Atom.Span}
	}

	switch t.Op {
	case TokenAnd, TokenOr:
		left, err := compileNode(t.Args[0])
		if err != nil {
			return nil, err
		}
		right, err := compileNode(t.Args[1])
		if err != nil {
			return nil, err
		}
		if t.Op == TokenAnd {
			return sq.And{left, right}, nil
		}
		return sq.Or{left, right}, nil

	case TokenMinus:
		inner, err := compileNode(t.Args[0])
		if err != nil {
			return nil, err
		}
		sql, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT ("+sql+")", args...), nil

	case TokenEq, TokenTilde:
		return compileEquality(t.Args[0], t.Args[1], t.Op == TokenTilde)

	case TokenLt, TokenLe, TokenGt, TokenGe:
		return compileOrdered(t.Op, t.Args[0], t.Args[1])
	}
	return nil, &LexError{Description: fmt.Sprintf("cannot evaluate %s", t.Op)}
}

func sqlOp(k TokenKind) string {
	switch k {
	case TokenLt:
		return "<"
	case TokenLe:
		return "<="
	case TokenGt:
		return ">"
	case TokenGe:
		return ">="
	}
	return "="
}

// fieldRef is the left-hand side of a comparison: a named field or a
// JSON path into card custom data.
type fieldRef struct {
	name     string
	jsonPath string
}

func resolveField(t Tree) (fieldRef, error) {
	if t.Atom != nil {
		if t.Atom.Kind != TokenIdent {
			return fieldRef{}, &LexError{Description: "comparison needs a field name on the left", At: t.Atom.Span}
		}
		return fieldRef{name: t.Atom.Text}, nil
	}
	// custom_data:"$.path"
	if t.Op == TokenColon && len(t.Args) == 2 &&
		t.Args[0].Atom != nil && t.Args[0].Atom.Text == "custom_data" &&
		t.Args[1].Atom != nil {
		return fieldRef{name: "custom_data", jsonPath: t.Args[1].Atom.Text}, nil
	}
	return fieldRef{}, &LexError{Description: "unsupported field expression"}
}

func tokenValue(t Tree) (interface{}, *Token, error) {
	if t.Atom == nil {
		return nil, nil, &LexError{Description: "comparison needs a literal on the right"}
	}
	tok := t.Atom
	switch tok.Kind {
	case TokenInt:
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		return v, tok, err
	case TokenFloat:
		v, err := strconv.ParseFloat(tok.Text, 64)
		return v, tok, err
	case TokenDate:
		d, err := time.Parse(dateLayout, tok.Text)
		if err != nil {
			return nil, nil, &LexError{Description: "invalid date", At: tok.Span}
		}
		return d.UTC().Unix(), tok, nil
	case TokenBool:
		return tok.Text == "true", tok, nil
	default:
		return tok.Text, tok, nil
	}
}

// note columns open to direct comparison
func noteColumn(name string) (string, bool) {
	switch name {
	case "id":
		return "n.id", true
	case "created_at":
		return "n.created_at", true
	case "updated_at":
		return "n.updated_at", true
	}
	return "", false
}

// numeric card columns open to range comparison
func cardColumn(name string) (string, bool) {
	switch name {
	case "c.id":
		return "c.id", true
	case "c.created_at":
		return "c.created_at", true
	case "c.updated_at":
		return "c.updated_at", true
	case "c.state":
		return "c.state", true
	case "c.stability":
		return "c.stability", true
	case "c.difficulty":
		return "c.difficulty", true
	case "c.due":
		return "c.due", true
	case "c.order":
		return "c.card_order", true
	case "c.desired_retention":
		return "c.desired_retention", true
	case "c.back_type":
		return "c.back_type", true
	}
	return "", false
}

func compileEquality(lhs, rhs Tree, approximate bool) (sq.Sqlizer, error) {
	field, err := resolveField(lhs)
	if err != nil {
		return nil, err
	}
	value, tok, err := tokenValue(rhs)
	if err != nil {
		return nil, err
	}

	switch field.name {
	case "tag":
		name, _ := value.(string)
		cond := "t.name = ?"
		arg := interface{}(name)
		if approximate {
			cond = "t.name LIKE ?"
			arg = "%" + name + "%"
		}
		return sq.Expr(
			"EXISTS (SELECT 1 FROM note_tag nt JOIN tag t ON t.id = nt.tag_id WHERE nt.note_id = n.id AND "+cond+")",
			arg,
		), nil

	case "parser_name", "parser":
		name, _ := value.(string)
		return sq.Expr(
			"EXISTS (SELECT 1 FROM parser p WHERE p.id = n.parser_id AND p.name = ?)",
			name,
		), nil

	case "keyword":
		name, _ := value.(string)
		return sq.Like{"n.keywords": "%" + name + "%"}, nil

	case "data":
		if text, ok := value.(string); ok && approximate {
			return sq.Like{"n.data": "%" + text + "%"}, nil
		}
		return sq.Eq{"n.data": value}, nil

	case "linked_to":
		return sq.Expr(
			"EXISTS (SELECT 1 FROM note_link nl WHERE nl.parent_note_id = n.id AND nl.linked_note_id = ?)",
			value,
		), nil

	case "c.rated":
		if rated, isBool := value.(bool); isBool {
			cond := "EXISTS (SELECT 1 FROM review_log rl WHERE rl.card_id = c.id)"
			if !rated {
				cond = "NOT " + cond
			}
			return sq.Expr(cond), nil
		}
		return sq.Expr(
			"EXISTS (SELECT 1 FROM review_log rl WHERE rl.card_id = c.id AND rl.rating = ?)",
			value,
		), nil

	case "c.special_state":
		name, _ := value.(string)
		state, ok := domain.ParseSpecialState(name)
		if !ok {
			return nil, &LexError{Description: fmt.Sprintf("unknown special state %q", name), At: tok.Span}
		}
		return sq.Eq{"c.special_state": int(state)}, nil

	case "custom_data":
		return sq.Expr("json_extract(c.custom_data, ?) = ?", field.jsonPath, value), nil
	}

	if col, ok := noteColumn(field.name); ok {
		return sq.Eq{col: value}, nil
	}
	if col, ok := cardColumn(field.name); ok {
		if approximate {
			return sq.Expr(col+" LIKE ?", fmt.Sprintf("%%%v%%", value)), nil
		}
		return sq.Eq{col: value}, nil
	}
	if approximate {
		// unknown field with ~ degrades to free text
		like := fmt.Sprintf("%%%v%%", value)
		return sq.Or{sq.Like{"n.data": like}, sq.Like{"n.keywords": like}}, nil
	}
	return nil, &LexError{Description: fmt.Sprintf("unknown field %q", field.name)}
}

func compileOrdered(op TokenKind, lhs, rhs Tree) (sq.Sqlizer, error) {
	field, err := resolveField(lhs)
	if err != nil {
		return nil, err
	}
	value, _, err := tokenValue(rhs)
	if err != nil {
		return nil, err
	}
	if field.name == "custom_data" {
		return sq.Expr("json_extract(c.custom_data, ?) "+sqlOp(op)+" ?", field.jsonPath, value), nil
	}
	if field.name == "linked_to" {
		return sq.Expr(
			"EXISTS (SELECT 1 FROM note_link nl WHERE nl.parent_note_id = n.id AND nl.linked_note_id "+sqlOp(op)+" ?)",
			value,
		), nil
	}
	if field.name == "c.rated" {
		return sq.Expr(
			"EXISTS (SELECT 1 FROM review_log rl WHERE rl.card_id = c.id AND rl.rating "+sqlOp(op)+" ?)",
			value,
		), nil
	}
	if col, ok := noteColumn(field.name); ok {
		return sq.Expr(col+" "+sqlOp(op)+" ?", value), nil
	}
	col, ok := cardColumn(field.name)
	if !ok {
		return nil, &LexError{Description: fmt.Sprintf("field %q cannot be range-compared", field.name)}
	}
	return sq.Expr(col+" "+sqlOp(op)+" ?", value), nil
}
