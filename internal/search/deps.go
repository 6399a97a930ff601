package search

import (
	"errors"
	"fmt"
)

// ErrFilteredTagDependency marks a filtered-tag query that references
// another filtered tag. Allowing that would let rebuilds cascade or
// cycle.
var ErrFilteredTagDependency = errors.New("query depends on a filtered tag")

// ExtractTagDependencies collects every tag name the query compares
// against with tag=X.
func ExtractTagDependencies(query string) ([]string, error) {
	tokens, err := Lex(query)
	if err != nil {
		return nil, err
	}
	var deps []string
	for i := 0; i+3 <= len(tokens); i++ {
		if tokens[i].Kind == TokenIdent && tokens[i].Text == "tag" &&
			tokens[i+1].Kind == TokenEq &&
			(tokens[i+2].Kind == TokenIdent || tokens[i+2].Kind == TokenString) {
			deps = append(deps, tokens[i+2].Text)
		}
	}
	return deps, nil
}

// VerifyFilteredTagQuery rejects a filtered-tag query that depends on
// an existing filtered tag. isFiltered reports whether a tag name
// belongs to a filtered tag.
func VerifyFilteredTagQuery(query string, isFiltered func(name string) bool) error {
	deps, err := ExtractTagDependencies(query)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		if isFiltered(dep) {
			return fmt.Errorf("%w: %q", ErrFilteredTagDependency, dep)
		}
	}
	return nil
}
