package fsrs

import (
	"math"
	"sort"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// Safety thresholds for moving a due date. Below the threshold the
// retention change is considered harmless.
const (
	advanceSafety  = 0.13
	postponeSafety = 0.15

	// postponeElapsedFactor inflates elapsed time when judging a
	// postponement, modeling the extra wait.
	postponeElapsedFactor = 0.075
)

// Candidate is a card eligible for advancing or postponing, with its
// latest review time.
type Candidate struct {
	Card           domain.Card
	LastReviewedAt time.Time
}

func (s *Scheduler) retention(c Candidate) float64 {
	if r := c.Card.DesiredRetention; r > 0 && r < 1 {
		return r
	}
	return s.DesiredRetention
}

// odds converts retention to recall odds; the safety formulas compare
// odds ratios.
func odds(r float64) float64 {
	return 1/r - 1
}

// advanceCost is the relative retention loss of reviewing at `to`
// instead of the scheduled due date. Negative or small values are safe.
func (s *Scheduler) advanceCost(c Candidate, to time.Time) float64 {
	elapsed := to.Sub(c.LastReviewedAt).Hours() / 24
	rNow := s.ForgettingCurve(elapsed, c.Card.Stability)
	return 1 - odds(rNow)/odds(s.retention(c))
}

// postponeCost is the relative retention loss of waiting past the
// scheduled due date, with the elapsed time inflated by the scheduled
// interval.
func (s *Scheduler) postponeCost(c Candidate, to time.Time) float64 {
	scheduled := c.Card.Due.Sub(c.LastReviewedAt).Hours() / 24
	elapsed := to.Sub(c.LastReviewedAt).Hours()/24 + postponeElapsedFactor*scheduled
	rPost := s.ForgettingCurve(elapsed, c.Card.Stability)
	return odds(rPost)/odds(s.retention(c)) - 1
}

// AdvanceSafeCount reports how many candidates can be advanced to `to`
// without a meaningful retention change.
func (s *Scheduler) AdvanceSafeCount(cands []Candidate, to time.Time) int {
	n := 0
	for _, c := range cands {
		if s.advanceCost(c, to) < advanceSafety {
			n++
		}
	}
	return n
}

// PostponeSafeCount reports how many candidates can be postponed past
// their due date without a meaningful retention change.
func (s *Scheduler) PostponeSafeCount(cands []Candidate, to time.Time) int {
	n := 0
	for _, c := range cands {
		if s.postponeCost(c, to) < postponeSafety {
			n++
		}
	}
	return n
}

func (s *Scheduler) pick(cands []Candidate, count int, cost func(Candidate) float64) []Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(a, b int) bool {
		ca, cb := cost(sorted[a]), cost(sorted[b])
		if ca != cb {
			return ca < cb
		}
		return sorted[a].Card.Stability > sorted[b].Card.Stability
	})
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// Advance pulls up to count cards forward to `to`. The safest moves are
// chosen first; when fewer than count are safe the least unsafe fill
// the remainder.
func (s *Scheduler) Advance(cands []Candidate, count int, to time.Time) []domain.Card {
	chosen := s.pick(cands, count, func(c Candidate) float64 { return s.advanceCost(c, to) })
	out := make([]domain.Card, 0, len(chosen))
	for _, c := range chosen {
		card := c.Card
		card.Due = to
		card.UpdatedAt = to
		out = append(out, card)
	}
	return out
}

// Postpone pushes up to count cards past `to`, extending each scheduled
// interval by five to ten percent plus the accumulated delay, bounded
// by the card's interval limits.
func (s *Scheduler) Postpone(cands []Candidate, count int, to time.Time) []domain.Card {
	chosen := s.pick(cands, count, func(c Candidate) float64 { return s.postponeCost(c, to) })
	out := make([]domain.Card, 0, len(chosen))
	for _, c := range chosen {
		scheduled := c.Card.Due.Sub(c.LastReviewedAt).Hours() / 24
		delay := to.Sub(c.Card.Due).Hours() / 24
		if delay < 0 {
			delay = 0
		}
		jitter := 1.05
		if s.EnableFuzz && s.Rand != nil {
			jitter += 0.05 * s.Rand.Float64()
		}
		next := scheduled*jitter + delay
		next = math.Min(math.Max(next, 1), s.MaximumInterval)
		card := c.Card
		card.Due = c.LastReviewedAt.Add(time.Duration(next * 24 * float64(time.Hour)))
		card.UpdatedAt = to
		out = append(out, card)
	}
	return out
}
