package search

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestLex(t *testing.T) {
	t.Run("operators and fields", func(t *testing.T) {
		tokens, err := Lex(`tag=math -c.special_state=suspended c.stability>=2`)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		want := []TokenKind{
			TokenIdent, TokenEq, TokenIdent,
			TokenMinus, TokenIdent, TokenEq, TokenIdent,
			TokenIdent, TokenGe, TokenInt,
		}
		if diff := cmp.Diff(want, kinds(tokens)); diff != "" {
			t.Errorf("kinds mismatch (-want +got):\n%s", diff)
		}
		if tokens[4].Text != "c.special_state" {
			t.Errorf("field = %q", tokens[4].Text)
		}
	})

	t.Run("quoted string with escape", func(t *testing.T) {
		tokens, err := Lex(`tag="a \"b\" c"`)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		if len(tokens) != 3 || tokens[2].Kind != TokenString {
			t.Fatalf("tokens = %+v", tokens)
		}
		if tokens[2].Text != `a "b" c` {
			t.Errorf("text = %q", tokens[2].Text)
		}
	})

	t.Run("raw string keeps content verbatim", func(t *testing.T) {
		tokens, err := Lex(`#"a "quoted" b"#`)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		if len(tokens) != 1 || tokens[0].Text != `a "quoted" b` {
			t.Fatalf("tokens = %+v", tokens)
		}
	})

	t.Run("dates and numbers", func(t *testing.T) {
		tokens, err := Lex(`c.due<=2026-09-01 c.stability>1.5 c.state=2`)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		want := []TokenKind{
			TokenIdent, TokenLe, TokenDate,
			TokenIdent, TokenGt, TokenFloat,
			TokenIdent, TokenEq, TokenInt,
		}
		if diff := cmp.Diff(want, kinds(tokens)); diff != "" {
			t.Errorf("kinds mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unterminated string", func(t *testing.T) {
		var lexErr *LexError
		if _, err := Lex(`tag="open`); !errors.As(err, &lexErr) {
			t.Errorf("error = %v, want LexError", err)
		}
	})
}

func TestParseTree(t *testing.T) {
	t.Run("negation binds one term", func(t *testing.T) {
		tree, err := Parse(`tag=math -tag=bio`)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if tree.Op != TokenAnd {
			t.Fatalf("root = %v, want and", tree.Op)
		}
		if tree.Args[1].Op != TokenMinus {
			t.Errorf("right arm = %v, want negation", tree.Args[1].Op)
		}
		if tree.Args[1].Args[0].Op != TokenEq {
			t.Errorf("negated subtree = %v, want =", tree.Args[1].Args[0].Op)
		}
	})

	t.Run("colon binds tighter than comparison", func(t *testing.T) {
		tree, err := Parse(`custom_data:"$.seen" >= 2`)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if tree.Op != TokenGe {
			t.Fatalf("root = %v, want >=", tree.Op)
		}
		if tree.Args[0].Op != TokenColon {
			t.Errorf("lhs = %v, want :", tree.Args[0].Op)
		}
	})

	t.Run("parens group", func(t *testing.T) {
		tree, err := Parse(`(a or b) c`)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if tree.Op != TokenAnd || tree.Args[0].Op != TokenOr {
			t.Errorf("tree = %+v", tree)
		}
	})

	t.Run("missing close paren", func(t *testing.T) {
		if _, err := Parse(`(a or b`); err == nil {
			t.Error("Parse accepted an unbalanced paren")
		}
	})
}

func TestCompile(t *testing.T) {
	t.Run("tag equality over notes", func(t *testing.T) {
		sql, args, err := Compile(`tag=math`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "SELECT DISTINCT n.id") {
			t.Errorf("sql = %q", sql)
		}
		if !strings.Contains(sql, "EXISTS (SELECT 1 FROM note_tag") {
			t.Errorf("sql missing tag subquery: %q", sql)
		}
		if !strings.HasSuffix(sql, "ORDER BY n.id ASC") {
			t.Errorf("sql not ordered: %q", sql)
		}
		if diff := cmp.Diff([]interface{}{"math"}, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("cards return type", func(t *testing.T) {
		sql, _, err := Compile(`c.stability>=2`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "SELECT DISTINCT c.id") || !strings.Contains(sql, "c.stability >= ?") {
			t.Errorf("sql = %q", sql)
		}
	})

	t.Run("special state maps to its code", func(t *testing.T) {
		sql, args, err := Compile(`-c.special_state=suspended`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "NOT (") {
			t.Errorf("sql missing negation: %q", sql)
		}
		if len(args) != 1 || args[0] != 1 {
			t.Errorf("args = %v, want [1]", args)
		}
	})

	t.Run("free text matches data and keywords", func(t *testing.T) {
		sql, args, err := Compile(`mitochondria`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "n.data LIKE ?") || !strings.Contains(sql, "n.keywords LIKE ?") {
			t.Errorf("sql = %q", sql)
		}
		if diff := cmp.Diff([]interface{}{"%mitochondria%", "%mitochondria%"}, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("custom data path comparison", func(t *testing.T) {
		sql, args, err := Compile(`custom_data:"$.step" >= 1`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "json_extract(c.custom_data, ?) >= ?") {
			t.Errorf("sql = %q", sql)
		}
		if len(args) != 2 || args[0] != "$.step" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("note id and timestamps", func(t *testing.T) {
		sql, args, err := Compile(`id=3 created_at>=2020-01-01`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "n.id = ?") || !strings.Contains(sql, "n.created_at >= ?") {
			t.Errorf("sql = %q", sql)
		}
		if diff := cmp.Diff([]interface{}{int64(3), int64(1577836800)}, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("parser aliases parser_name", func(t *testing.T) {
		alias, aliasArgs, err := Compile(`parser=markdown`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		full, fullArgs, err := Compile(`parser_name=markdown`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if alias != full {
			t.Errorf("alias compiled differently:\n%s\n%s", alias, full)
		}
		if diff := cmp.Diff(fullArgs, aliasArgs); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("linked_to joins note links", func(t *testing.T) {
		sql, args, err := Compile(`linked_to=12`, ReturnNotes)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "FROM note_link nl") || !strings.Contains(sql, "nl.linked_note_id = ?") {
			t.Errorf("sql = %q", sql)
		}
		if diff := cmp.Diff([]interface{}{int64(12)}, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rated existence", func(t *testing.T) {
		sql, args, err := Compile(`c.rated=true`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "EXISTS (SELECT 1 FROM review_log rl WHERE rl.card_id = c.id)") {
			t.Errorf("sql = %q", sql)
		}
		if len(args) != 0 {
			t.Errorf("args = %v", args)
		}

		sql, _, err = Compile(`c.rated=false`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "NOT EXISTS (SELECT 1 FROM review_log") {
			t.Errorf("sql = %q", sql)
		}
	})

	t.Run("rated by rating value", func(t *testing.T) {
		sql, args, err := Compile(`c.rated=1`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if !strings.Contains(sql, "rl.rating = ?") {
			t.Errorf("sql = %q", sql)
		}
		if diff := cmp.Diff([]interface{}{int64(1)}, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		if _, _, err := Compile(`bogus=1`, ReturnNotes); err == nil {
			t.Error("Compile accepted an unknown field")
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _, err := Compile(`tag=math c.stability>=2`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		b, _, err := Compile(`tag=math c.stability>=2`, ReturnCards)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if a != b {
			t.Errorf("same query compiled differently:\n%s\n%s", a, b)
		}
	})
}

func TestExtractTagDependencies(t *testing.T) {
	deps, err := ExtractTagDependencies(`ball tag="A" -tag=b c.stability>=2`)
	if err != nil {
		t.Fatalf("ExtractTagDependencies: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "b"}, deps); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyFilteredTagQuery(t *testing.T) {
	filtered := func(name string) bool { return name == "A" }

	if err := VerifyFilteredTagQuery(`tag=math`, filtered); err != nil {
		t.Errorf("VerifyFilteredTagQuery: %v", err)
	}
	err := VerifyFilteredTagQuery(`ball tag="A"`, filtered)
	if !errors.Is(err, ErrFilteredTagDependency) {
		t.Errorf("error = %v, want ErrFilteredTagDependency", err)
	}
}
