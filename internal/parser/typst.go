package parser

import (
	"fmt"
	"sort"
)

const typstClozeFunc = "cl"

// Typst parses notes written in a typst-like syntax. A cloze is a
// function call `#cl[body]` or, with settings, the two-argument form
// `#cl[body][settings]`. Line comments start with `//`, a backslash
// escapes the next character, and `$` toggles math mode in which no
// delimiter is recognized.
type Typst struct{}

func (*Typst) Name() string { return "typst" }

func (*Typst) ClozeSettingsKeys() ClozeSettingsKeys { return DefaultClozeSettingsKeys() }

func (*Typst) NoteSettingsKeys() NoteSettingsKeys { return DefaultNoteSettingsKeys() }

func (*Typst) ConstructCloze(settings string) (string, string) {
	if settings == "" {
		return "#" + typstClozeFunc + "[", "]"
	}
	return "#" + typstClozeFunc + "[", fmt.Sprintf("][%s]", settings)
}

func (*Typst) ConstructComment(text string) string { return "// " + text }

func (*Typst) ConstructSetting(key, value string) string {
	return fmt.Sprintf("// %s: %s", key, value)
}

func (*Typst) FileExtension() string { return "typ" }

type typstOpenCloze struct {
	start       Span
	firstArgEnd Span
	hasFirstArg bool
}

// Clozes scans text for `#cl` calls. Square brackets opened inside a
// cloze argument must close before the argument can end, so settings
// strings tolerate inner `[...]` pairs. An unmatched `#cl[` left open at
// the end of input emits nothing.
func (*Typst) Clozes(text string) []ClozeMatch {
	s := scanner{src: text}
	mathMode := false
	openBrackets := 0
	var stack []typstOpenCloze
	var all []ClozeMatch

	for {
		cursorStart := s.pos
		c, ok := s.eat()
		if !ok {
			break
		}
		switch {
		case c == '/' && s.eatIf('/'):
			s.eatUntil("\n")
		case c == '\\':
			s.eat()
		case c == '$':
			mathMode = !mathMode
		case c == '#' && !mathMode:
			name := s.eatWhile(func(b byte) bool {
				return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '-'
			})
			_, ate := s.eat() // the argument opener
			if name == typstClozeFunc {
				stack = append(stack, typstOpenCloze{start: Span{cursorStart, s.pos}})
			} else if ate {
				s.uneat()
			}
		case c == '[' && !mathMode && len(stack) > 0:
			openBrackets++
		case c == ']' && !mathMode && openBrackets == 0:
			if s.eatIf('[') {
				// `][` starts the second (settings) argument.
				if n := len(stack); n > 0 {
					stack[n-1].firstArgEnd = Span{cursorStart, s.pos}
					stack[n-1].hasFirstArg = true
				}
				continue
			}
			n := len(stack)
			if n == 0 {
				continue
			}
			open := stack[n-1]
			stack = stack[:n-1]
			closing := Span{cursorStart, s.pos}
			m := ClozeMatch{StartMatch: open.start, EndMatch: closing}
			if open.hasFirstArg {
				m.EndMatch = Span{open.firstArgEnd.Start, closing.End}
				if settings := (Span{open.firstArgEnd.Start + 2, closing.Start}); !settings.Empty() {
					m.SettingsMatch = settings
				}
			}
			all = append(all, m)
		case c == ']' && !mathMode:
			openBrackets--
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartMatch.Start < all[j].StartMatch.Start
	})
	return all
}
