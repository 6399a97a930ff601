package domain

import (
	"strings"
	"time"
)

// NoteID identifies a note row.
type NoteID int64

// Note is a unit of user-written study material. Its Data is text in a
// parser-specific syntax; parsing the data determines how many cards
// the note owns and in what order.
type Note struct {
	ID   NoteID
	Data string
	// Keywords is a comma-joined keyword string used by the link index.
	Keywords string
	ParserID int64
	// CustomData is an opaque key-value JSON blob.
	CustomData string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KeywordList splits the comma-joined keyword string, dropping empties.
func (n Note) KeywordList() []string {
	var out []string
	for _, k := range strings.Split(n.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// NoteLink is a directed reference discovered by matching a searched
// keyword against the keyword index. LinkedNoteID is nil when the
// keyword matched nothing; unmatched links are still persisted so a
// later render can resolve them. Links are regenerated as a set.
type NoteLink struct {
	ParentNoteID    NoteID
	LinkedNoteID    *NoteID
	Order           int
	SearchedKeyword string
	MatchedKeyword  *string
}

// ParserRow names a concrete parser implementation in the store.
type ParserRow struct {
	ID   int64
	Name string
}
