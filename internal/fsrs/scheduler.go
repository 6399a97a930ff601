package fsrs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// customData is the scheduler-private state carried in
// card.CustomData. Only this package interprets it.
type customData struct {
	// Step is the position within the learning or relearning steps.
	Step int `json:"step,omitempty"`
}

func loadCustomData(card *domain.Card) customData {
	var cd customData
	if card.CustomData != "" {
		// corrupt custom data falls back to step zero
		_ = json.Unmarshal([]byte(card.CustomData), &cd)
	}
	return cd
}

func storeCustomData(card *domain.Card, cd customData) {
	if cd == (customData{}) {
		card.CustomData = ""
		return
	}
	raw, _ := json.Marshal(cd)
	card.CustomData = string(raw)
}

// Schedule applies one review to a card and returns the updated card
// with the matching review log. It is a pure function of its inputs
// while fuzz is disabled. last is the card's most recent review log,
// nil for a first review.
func (s *Scheduler) Schedule(card domain.Card, last *domain.ReviewLog, rating domain.Rating, reviewedAt time.Time, duration time.Duration) (domain.Card, domain.ReviewLog, error) {
	if !rating.Valid() {
		return card, domain.ReviewLog{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(rating))
	}
	if card.SpecialState == domain.Suspended {
		return card, domain.ReviewLog{}, ErrSuspended
	}
	if card.State < domain.New || card.State > domain.Relearning {
		return card, domain.ReviewLog{}, fmt.Errorf("%w: %d", ErrInvalidState, int(card.State))
	}

	var elapsed time.Duration
	if last != nil {
		elapsed = reviewedAt.Sub(last.ReviewedAt)
	}
	elapsedDays := elapsed.Hours() / 24

	previousState := card.State
	cd := loadCustomData(&card)
	retention := card.DesiredRetention
	if retention <= 0 || retention >= 1 {
		retention = s.DesiredRetention
	}

	switch card.State {
	case domain.New:
		card.Stability = s.initStability(rating)
		card.Difficulty = s.initDifficulty(rating)
		if rating == domain.Easy {
			card.State = domain.Review
		} else {
			card.State = domain.Learning
			cd.Step = 0
			if rating == domain.Good {
				cd.Step = 1
			}
		}

	case domain.Learning, domain.Relearning:
		card.Stability = s.shortTermStability(card.Stability, rating)
		steps := s.LearningSteps
		if card.State == domain.Relearning {
			steps = s.RelearningSteps
		}
		switch rating {
		case domain.Again:
			cd.Step = 0
		case domain.Hard:
			// repeat the current step
		case domain.Good:
			cd.Step++
			if cd.Step >= len(steps) {
				card.State = domain.Review
			}
		case domain.Easy:
			card.State = domain.Review
		}

	case domain.Review:
		retrievability := s.ForgettingCurve(elapsedDays, card.Stability)
		if rating == domain.Again {
			card.Stability = s.nextForgetStability(card.Difficulty, card.Stability, retrievability)
			card.State = domain.Relearning
			cd.Step = 0
		} else {
			card.Stability = s.nextRecallStability(card.Difficulty, card.Stability, retrievability, rating)
		}
		card.Difficulty = s.nextDifficulty(card.Difficulty, rating)
	}

	if card.State == domain.Review {
		cd.Step = 0
		ivl := s.NextInterval(card.Stability, retention)
		ivl = s.fuzzedInterval(ivl, elapsedDays)
		card.Due = reviewedAt.Add(time.Duration(ivl * 24 * float64(time.Hour)))
	} else {
		steps := s.LearningSteps
		if card.State == domain.Relearning {
			steps = s.RelearningSteps
		}
		step := cd.Step
		if step >= len(steps) {
			step = len(steps) - 1
		}
		card.Due = reviewedAt.Add(steps[step])
	}

	// a review lifts burial
	if card.SpecialState == domain.UserBuried || card.SpecialState == domain.SchedulerBuried {
		card.SpecialState = domain.SpecialNone
	}
	storeCustomData(&card, cd)
	card.UpdatedAt = reviewedAt

	log := domain.ReviewLog{
		CardID:        card.ID,
		ReviewedAt:    reviewedAt,
		Rating:        rating,
		SchedulerName: SchedulerName,
		ScheduledTime: int64(card.Due.Sub(reviewedAt).Seconds()),
		Duration:      int64(duration.Seconds()),
		PreviousState: previousState,
	}
	return card, log, nil
}

// Bury takes a card out of the review queue until it is unburied or
// reviewed again.
func Bury(card domain.Card) (domain.Card, error) {
	switch card.SpecialState {
	case domain.Suspended:
		return card, ErrSuspended
	case domain.UserBuried, domain.SchedulerBuried:
		return card, ErrAlreadyBuried
	}
	card.SpecialState = domain.UserBuried
	return card, nil
}

// Ratings describes the rating scale for display layers.
func Ratings() []struct {
	ID          domain.Rating
	Description string
} {
	return []struct {
		ID          domain.Rating
		Description string
	}{
		{domain.Again, "Again"},
		{domain.Hard, "Hard"},
		{domain.Good, "Good"},
		{domain.Easy, "Easy"},
	}
}

// ComputeMemoryState folds a full review history through the scheduler
// from a fresh card. Fuzz is ignored so the result is deterministic.
func (s *Scheduler) ComputeMemoryState(logs []domain.ReviewLog) (domain.Card, error) {
	plain := *s
	plain.EnableFuzz = false
	card := domain.Card{State: domain.New}
	var last *domain.ReviewLog
	for i := range logs {
		next, _, err := plain.Schedule(card, last, logs[i].Rating, logs[i].ReviewedAt, 0)
		if err != nil {
			return card, err
		}
		card = next
		last = &logs[i]
	}
	return card, nil
}
