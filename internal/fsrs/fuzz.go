package fsrs

import "math"

// fuzzBand widens the fuzz window proportionally to the part of the
// interval falling inside the band.
type fuzzBand struct {
	start, end, factor float64
}

var fuzzBands = [...]fuzzBand{
	{start: 2.5, end: 7, factor: 0.15},
	{start: 7, end: 20, factor: 0.10},
	{start: 20, end: math.MaxFloat64, factor: 0.05},
}

// FuzzRange is the inclusive day window around interval within which a
// due date may fall. Intervals under 2.5 days are never fuzzed. The
// lower bound stays a full day past elapsedDays so a fuzzed interval
// cannot re-ask earlier than the time already waited.
func (s *Scheduler) FuzzRange(interval, elapsedDays float64) (minIvl, maxIvl float64) {
	if interval < 2.5 {
		return interval, interval
	}
	delta := 1.0
	for _, b := range fuzzBands {
		delta += b.factor * math.Max(math.Min(interval, b.end)-b.start, 0)
	}
	minIvl = math.Max(math.Round(interval-delta), 2)
	maxIvl = math.Min(math.Round(interval+delta), s.MaximumInterval)
	if interval > elapsedDays {
		minIvl = math.Max(minIvl, elapsedDays+1)
	}
	minIvl = math.Min(minIvl, maxIvl)
	return minIvl, maxIvl
}

// fuzzedInterval picks an interval inside the fuzz range, or the exact
// interval when fuzz is off.
func (s *Scheduler) fuzzedInterval(interval, elapsedDays float64) float64 {
	if !s.EnableFuzz || s.Rand == nil {
		return interval
	}
	minIvl, maxIvl := s.FuzzRange(interval, elapsedDays)
	if maxIvl <= minIvl {
		return minIvl
	}
	return math.Floor(s.Rand.Float64()*(maxIvl-minIvl+1)) + minIvl
}
