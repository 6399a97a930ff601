// Package parser extracts cloze regions from note text. Each concrete
// parser understands one source syntax; they differ only in the lexical
// shape of the cloze delimiters and the optional inline settings slot.
package parser

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Find for an unknown parser name.
var ErrNotFound = errors.New("parser not found")

// Span is a half-open byte range [Start, End) into the note text.
type Span struct {
	Start int
	End   int
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool { return s.End <= s.Start }

// Len returns the number of bytes covered.
func (s Span) Len() int {
	if s.Empty() {
		return 0
	}
	return s.End - s.Start
}

// Of returns the text the span covers.
func (s Span) Of(text string) string {
	if s.Empty() {
		return ""
	}
	return text[s.Start:s.End]
}

// ClozeMatch locates one cloze in the note text. StartMatch covers the
// opening delimiter, EndMatch the closing delimiter (including a second
// settings argument when present), and SettingsMatch the settings text.
// SettingsMatch is the zero Span when the cloze carries no settings.
type ClozeMatch struct {
	StartMatch    Span
	EndMatch      Span
	SettingsMatch Span
}

// ClozeSettingsKeys are the key tokens a parser uses inside a cloze
// settings string.
type ClozeSettingsKeys struct {
	Order          string
	Grouping       string
	IncludeReverse string
	ReverseOnly    string
	IsSuspended    string
	Hint           string
	Hidden         string
	NoAnswer       string
	FrontConceal   string
	BackReveal     string
}

// DefaultClozeSettingsKeys is the key set shared by the built-in parsers.
func DefaultClozeSettingsKeys() ClozeSettingsKeys {
	return ClozeSettingsKeys{
		Order:          "o",
		Grouping:       "g",
		IncludeReverse: "r",
		ReverseOnly:    "ro",
		IsSuspended:    "s",
		Hint:           "h",
		Hidden:         "hide",
		NoAnswer:       "na",
		FrontConceal:   "f",
		BackReveal:     "b",
	}
}

// NoteSettingsKeys are the delimiters a parser uses when serializing
// settings strings.
type NoteSettingsKeys struct {
	SettingsDelim string
	KeyValueDelim string
}

// DefaultNoteSettingsKeys is the delimiter set shared by the built-in parsers.
func DefaultNoteSettingsKeys() NoteSettingsKeys {
	return NoteSettingsKeys{SettingsDelim: ";", KeyValueDelim: ":"}
}

// Parseable is the contract a concrete parser implements. Clozes is the
// only method whose implementation differs meaningfully per syntax.
type Parseable interface {
	// Name is the parser's registry name, lowercase and dash only.
	Name() string
	// Clozes returns all cloze matches in text, ordered by the start of
	// their opening delimiter. For nested clozes the outer cloze comes
	// before its inner clozes. Unmatched open delimiters emit nothing;
	// unmatched close delimiters are ignored.
	Clozes(text string) []ClozeMatch
	ClozeSettingsKeys() ClozeSettingsKeys
	NoteSettingsKeys() NoteSettingsKeys
	// ConstructCloze builds the delimiter pair wrapping a cloze body with
	// the given serialized settings string.
	ConstructCloze(settings string) (prefix, suffix string)
	ConstructComment(text string) string
	ConstructSetting(key, value string) string
	FileExtension() string
}

var registry = []Parseable{
	&Typst{},
	&Markdown{},
}

// All returns the registered parsers.
func All() []Parseable {
	out := make([]Parseable, len(registry))
	copy(out, registry)
	return out
}

// Find returns the parser registered under name.
func Find(name string) (Parseable, error) {
	for _, p := range registry {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// ValidateName reports whether a parser name is lowercase-and-dash only.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("parser name is empty")
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && c != '-' {
			return fmt.Errorf("parser name %q: only lowercase letters and dashes allowed", name)
		}
	}
	return nil
}

// scanner is a byte-offset cursor over note text. Delimiters are all
// ASCII, so scanning byte-wise keeps offsets exact for UTF-8 input.
type scanner struct {
	src string
	pos int
}

func (s *scanner) eat() (byte, bool) {
	if s.pos >= len(s.src) {
		return 0, false
	}
	c := s.src[s.pos]
	s.pos++
	return c, true
}

func (s *scanner) uneat() {
	if s.pos > 0 {
		s.pos--
	}
}

func (s *scanner) eatIf(c byte) bool {
	if s.pos < len(s.src) && s.src[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) eatIfStr(prefix string) bool {
	if len(s.src)-s.pos >= len(prefix) && s.src[s.pos:s.pos+len(prefix)] == prefix {
		s.pos += len(prefix)
		return true
	}
	return false
}

// eatWhile consumes bytes matching pred and returns them.
func (s *scanner) eatWhile(pred func(byte) bool) string {
	start := s.pos
	for s.pos < len(s.src) && pred(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// eatUntil advances to the next occurrence of sub without consuming it.
// If sub does not occur, the cursor moves to the end of input.
func (s *scanner) eatUntil(sub string) {
	for s.pos < len(s.src) {
		if len(s.src)-s.pos >= len(sub) && s.src[s.pos:s.pos+len(sub)] == sub {
			return
		}
		s.pos++
	}
}
