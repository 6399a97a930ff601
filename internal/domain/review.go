package domain

import (
	"fmt"
	"time"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

func (r Rating) String() string {
	switch r {
	case Again:
		return "Again"
	case Hard:
		return "Hard"
	case Good:
		return "Good"
	case Easy:
		return "Easy"
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// Valid reports whether r is one of the four known ratings.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown rating %d", int(r))
	}
	return []byte(r.String()), nil
}

// State is the scheduling state of a card.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Learning:
		return "Learning"
	case Review:
		return "Review"
	case Relearning:
		return "Relearning"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < New || s > Relearning {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

// ReviewLog is an append-only record of one review event. A card's
// current memory state is the fold of its review-log chain under the
// scheduler.
type ReviewLog struct {
	ID            int64
	CardID        CardID
	ReviewedAt    time.Time
	Rating        Rating
	SchedulerName string
	// ScheduledTime is the seconds until the next due date as of this review.
	ScheduledTime int64
	// Duration is the seconds the user spent answering.
	Duration      int64
	PreviousState State
}
