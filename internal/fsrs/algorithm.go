package fsrs

import (
	"math"

	"github.com/conorfennell/recall/internal/domain"
)

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

// ForgettingCurve is the probability of recall after elapsedDays with
// the given stability.
func (s *Scheduler) ForgettingCurve(elapsedDays, stability float64) float64 {
	return math.Pow(1+s.factor()*elapsedDays/stability, s.decay())
}

func (s *Scheduler) initStability(r domain.Rating) float64 {
	return math.Min(math.Max(s.W[int(r)-1], minStability), maxInitStability)
}

// rawInitDifficulty is kept unclamped for the mean reversion target.
func (s *Scheduler) rawInitDifficulty(r domain.Rating) float64 {
	return s.W[4] - math.Exp(s.W[5]*(float64(r)-1)) + 1
}

func (s *Scheduler) initDifficulty(r domain.Rating) float64 {
	return clampDifficulty(s.rawInitDifficulty(r))
}

// nextDifficulty applies the rating delta and reverts toward the Easy
// anchor.
func (s *Scheduler) nextDifficulty(d float64, r domain.Rating) float64 {
	deltaD := -s.W[6] * (float64(r) - 3)
	linear := d + deltaD*(10-d)/9
	reverted := s.W[7]*s.rawInitDifficulty(domain.Easy) + (1-s.W[7])*linear
	return clampDifficulty(reverted)
}

// nextRecallStability grows stability after a successful review.
func (s *Scheduler) nextRecallStability(d, stability, retrievability float64, r domain.Rating) float64 {
	hardPenalty := 1.0
	if r == domain.Hard {
		hardPenalty = s.W[15]
	}
	easyBonus := 1.0
	if r == domain.Easy {
		easyBonus = s.W[16]
	}
	grow := math.Exp(s.W[8]) *
		(11 - d) *
		math.Pow(stability, -s.W[9]) *
		(math.Exp((1-retrievability)*s.W[10]) - 1) *
		hardPenalty *
		easyBonus
	return clampStability(stability * (1 + grow))
}

// nextForgetStability shrinks stability after a lapse.
func (s *Scheduler) nextForgetStability(d, stability, retrievability float64) float64 {
	longTerm := s.W[11] *
		math.Pow(d, -s.W[12]) *
		(math.Pow(stability+1, s.W[13]) - 1) *
		math.Exp((1-retrievability)*s.W[14])
	shortTerm := stability / math.Exp(s.W[17]*s.W[18])
	return clampStability(math.Min(longTerm, shortTerm))
}

// shortTermStability updates stability for same-day reviews during the
// learning steps.
func (s *Scheduler) shortTermStability(stability float64, r domain.Rating) float64 {
	inc := math.Exp(s.W[17]*(float64(r)-3+s.W[18])) * math.Pow(stability, -s.W[19])
	if r >= domain.Good {
		inc = math.Max(inc, 1)
	}
	return clampStability(stability * inc)
}

// NextInterval converts stability to the interval, in whole days, at
// which retrievability decays to the desired retention.
func (s *Scheduler) NextInterval(stability, desiredRetention float64) float64 {
	ivl := stability / s.factor() * (math.Pow(desiredRetention, 1/s.decay()) - 1)
	return math.Min(math.Max(math.Round(ivl), 1), s.MaximumInterval)
}
