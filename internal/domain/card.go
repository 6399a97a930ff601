package domain

import "time"

// CardID identifies a card row.
type CardID int64

// BackType selects what the back side of a card shows.
type BackType int

const (
	// BackFullNote shows the entire note on the back.
	BackFullNote BackType = 1
	// BackOnlyAnswered shows only the answered clozes on the back.
	BackOnlyAnswered BackType = 2
)

// SpecialState is an orthogonal lifecycle flag on a card. A suspended
// card is excluded from review regardless of its scheduling state.
type SpecialState int

const (
	SpecialNone SpecialState = iota
	Suspended
	UserBuried
	SchedulerBuried
)

func (s SpecialState) String() string {
	switch s {
	case SpecialNone:
		return "none"
	case Suspended:
		return "suspended"
	case UserBuried:
		return "user_buried"
	case SchedulerBuried:
		return "scheduler_buried"
	}
	return "unknown"
}

// ParseSpecialState maps the query-language spelling to a SpecialState.
func ParseSpecialState(s string) (SpecialState, bool) {
	switch s {
	case "suspended":
		return Suspended, true
	case "user_buried":
		return UserBuried, true
	case "scheduler_buried":
		return SchedulerBuried, true
	}
	return SpecialNone, false
}

// Card is one question-answer pair owned by a note. The pair
// (NoteID, Order) identifies the card's semantic slot; Order values of
// a note's cards always form the contiguous sequence 1..N.
type Card struct {
	ID     CardID
	NoteID NoteID
	// Order is the 1-based position within the note.
	Order    int
	BackType BackType

	Stability        float64
	Difficulty       float64
	DesiredRetention float64
	State            State
	Due              time.Time

	SpecialState SpecialState
	// CustomData is scheduler-private JSON; the core treats it as opaque.
	CustomData string

	CreatedAt time.Time
	UpdatedAt time.Time
}
