package parser

import (
	"fmt"
	"sort"
)

// Markdown parses notes written in markdown. A cloze is `{{body}}` or,
// with settings, `{{[settings] body}}`. Comments are `<!--- ... --->`,
// a backslash escapes the next character, and `$...$`, `$$...$$` and
// ```` ```math ```` blocks suspend delimiter recognition.
type Markdown struct{}

func (*Markdown) Name() string { return "markdown" }

func (*Markdown) ClozeSettingsKeys() ClozeSettingsKeys { return DefaultClozeSettingsKeys() }

func (*Markdown) NoteSettingsKeys() NoteSettingsKeys { return DefaultNoteSettingsKeys() }

func (*Markdown) ConstructCloze(settings string) (string, string) {
	if settings == "" {
		return "{{", "}}"
	}
	return fmt.Sprintf("{{[%s] ", settings), "}}"
}

func (*Markdown) ConstructComment(text string) string {
	return fmt.Sprintf("<!--- %s --->", text)
}

func (*Markdown) ConstructSetting(key, value string) string {
	return fmt.Sprintf("<!--- %s: %s --->", key, value)
}

func (*Markdown) FileExtension() string { return "md" }

type markdownOpenCloze struct {
	start    Span
	settings Span
}

// Clozes scans text for `{{ ... }}` pairs. The settings slot, when
// present, must directly follow the opening braces as `[settings]`.
func (*Markdown) Clozes(text string) []ClozeMatch {
	s := scanner{src: text}
	mathMode := false
	var stack []markdownOpenCloze
	var all []ClozeMatch

	for {
		cursorStart := s.pos
		c, ok := s.eat()
		if !ok {
			break
		}
		switch {
		case c == '<' && s.eatIfStr("!---"):
			s.eatUntil("--->")
		case c == '\\':
			s.eat()
		case c == '$':
			s.eatIf('$')
			mathMode = !mathMode
		case c == '`' && !mathMode && s.eatIfStr("``math"):
			mathMode = true
		case c == '`' && mathMode && s.eatIfStr("``"):
			mathMode = false
		case c == '{':
			// The second brace is consumed even in math mode so a `{{`
			// inside a formula cannot half-open a cloze.
			if !s.eatIf('{') || mathMode {
				continue
			}
			open := markdownOpenCloze{start: Span{cursorStart, s.pos}}
			if s.eatIf('[') {
				settingsStart := s.pos
				s.eatUntil("]")
				settings := Span{settingsStart, s.pos}
				open.start.End = settings.End + 1
				if !settings.Empty() {
					open.settings = settings
				}
			}
			stack = append(stack, open)
		case c == '}':
			if !s.eatIf('}') || mathMode {
				continue
			}
			n := len(stack)
			if n == 0 {
				continue
			}
			open := stack[n-1]
			stack = stack[:n-1]
			all = append(all, ClozeMatch{
				StartMatch:    open.start,
				EndMatch:      Span{cursorStart, s.pos},
				SettingsMatch: open.settings,
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartMatch.Start < all[j].StartMatch.Start
	})
	return all
}
