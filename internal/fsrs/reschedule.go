package fsrs

import (
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// RescheduleItem pairs a card with its complete review history, oldest
// first.
type RescheduleItem struct {
	Card domain.Card
	Logs []domain.ReviewLog
}

// Reschedule recomputes each card's memory state from its full history
// and derives a fresh due date from the last review. Cards without
// history keep their stored state. Identity and lifecycle fields are
// preserved; only the scheduling fields change.
func (s *Scheduler) Reschedule(items []RescheduleItem) ([]domain.Card, error) {
	out := make([]domain.Card, 0, len(items))
	for _, item := range items {
		if len(item.Logs) == 0 {
			out = append(out, item.Card)
			continue
		}
		recomputed, err := s.ComputeMemoryState(item.Logs)
		if err != nil {
			return nil, fmt.Errorf("reschedule card %d: %w", item.Card.ID, err)
		}
		card := item.Card
		card.Stability = recomputed.Stability
		card.Difficulty = recomputed.Difficulty
		card.State = recomputed.State
		card.CustomData = recomputed.CustomData

		last := item.Logs[len(item.Logs)-1]
		if card.State == domain.Review {
			retention := card.DesiredRetention
			if retention <= 0 || retention >= 1 {
				retention = s.DesiredRetention
			}
			ivl := s.NextInterval(card.Stability, retention)
			card.Due = last.ReviewedAt.Add(time.Duration(ivl * 24 * float64(time.Hour)))
		} else {
			card.Due = recomputed.Due
		}
		out = append(out, card)
	}
	return out, nil
}
