package cards

import (
	"errors"
	"fmt"

	"github.com/conorfennell/recall/internal/parser"
)

// Error kinds raised while building cards from a note. Callers match on
// these with errors.Is; the structured types below carry spans and are
// reachable with errors.As.
var (
	ErrEmpty           = errors.New("card is empty")
	ErrEmptyCloze      = errors.New("cloze body is empty")
	ErrMissingField    = errors.New("card is missing a required field")
	ErrInvalidSettings = errors.New("invalid cloze settings")
	ErrInvalidInput    = errors.New("invalid card input")
	ErrDuplicateCards  = errors.New("multiple cards contain the same clozes")
	ErrNestedGrouping  = errors.New("nested clozes share a grouping")
)

// SettingsError reports a malformed settings string with its location.
type SettingsError struct {
	Description string
	At          parser.Span
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("invalid cloze settings at %d..%d: %s", e.At.Start, e.At.End, e.Description)
}

func (e *SettingsError) Unwrap() error { return ErrInvalidSettings }

// EmptyClozeError reports a cloze whose body covers no bytes.
type EmptyClozeError struct {
	At parser.Span
}

func (e *EmptyClozeError) Error() string {
	return fmt.Sprintf("empty cloze at %d..%d", e.At.Start, e.At.End)
}

func (e *EmptyClozeError) Unwrap() error { return ErrEmptyCloze }

// NestedGroupingError reports two clozes of the same grouping where one
// contains the other.
type NestedGroupingError struct {
	Outer parser.Span
	Inner parser.Span
}

func (e *NestedGroupingError) Error() string {
	return fmt.Sprintf("clozes at %d..%d and %d..%d are nested but share a grouping",
		e.Outer.Start, e.Outer.End, e.Inner.Start, e.Inner.End)
}

func (e *NestedGroupingError) Unwrap() error { return ErrNestedGrouping }

// DuplicateCardsError lists the cloze index sets of cards that came out
// identical.
type DuplicateCardsError struct {
	Duplicates [][]int
}

func (e *DuplicateCardsError) Error() string {
	return fmt.Sprintf("multiple cards contain the same clozes: %v", e.Duplicates)
}

func (e *DuplicateCardsError) Unwrap() error { return ErrDuplicateCards }
