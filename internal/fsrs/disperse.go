package fsrs

import (
	"math"
	"sort"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// Window is an inclusive range a due point may fall in. Units are the
// caller's; DisperseSiblings uses days.
type Window struct {
	Start, End float64
}

// Disperse picks one point per window maximizing the minimum pairwise
// gap. It returns the points in input order with the achieved gap, or
// ok=false when some window is inverted.
func Disperse(windows []Window) (points []float64, minGap float64, ok bool) {
	if len(windows) == 0 {
		return nil, 0, true
	}
	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		wa, wb := windows[order[a]], windows[order[b]]
		if wa.End != wb.End {
			return wa.End < wb.End
		}
		return wa.Start < wb.Start
	})
	sorted := make([]Window, len(windows))
	for i, idx := range order {
		sorted[i] = windows[idx]
		if sorted[i].Start > sorted[i].End {
			return nil, 0, false
		}
	}

	// greedy left-to-right placement oracle for a candidate gap
	place := func(gap float64) ([]float64, bool) {
		out := make([]float64, len(sorted))
		prev := math.Inf(-1)
		for i, w := range sorted {
			p := math.Max(prev+gap, w.Start)
			if p > w.End {
				return nil, false
			}
			out[i] = p
			prev = p
		}
		return out, true
	}

	lo, hi := 0.0, 0.0
	for _, w := range sorted {
		hi = math.Max(hi, w.End)
	}
	hi -= sorted[0].Start
	if hi < 0 {
		hi = 0
	}
	best, feasible := place(0)
	if !feasible {
		return nil, 0, false
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if assignment, ok := place(mid); ok {
			best, lo = assignment, mid
		} else {
			hi = mid
		}
	}
	minGap = lo

	// pull points right so siblings land as late as their windows and the
	// gap allow
	limit := math.Inf(1)
	for i := len(sorted) - 1; i >= 0; i-- {
		best[i] = math.Min(sorted[i].End, limit)
		limit = best[i] - minGap
	}

	points = make([]float64, len(windows))
	for i, idx := range order {
		points[idx] = best[i]
	}
	return points, minGap, true
}

// DisperseSiblings spreads the due dates of one note's review cards as
// far apart as their fuzz windows allow. lastReviews maps each card to
// its latest review time; cards without one are skipped. The latest
// review acts as an anchor so nothing is scheduled right after it.
func (s *Scheduler) DisperseSiblings(cards []domain.Card, lastReviews map[domain.CardID]time.Time, now time.Time) (map[domain.CardID]time.Time, bool) {
	var latest time.Time
	type sibling struct {
		id   domain.CardID
		last time.Time
	}
	var siblings []sibling
	for _, c := range cards {
		last, ok := lastReviews[c.ID]
		if !ok || c.State != domain.Review || c.SpecialState != domain.SpecialNone {
			continue
		}
		siblings = append(siblings, sibling{id: c.ID, last: last})
		if last.After(latest) {
			latest = last
		}
	}
	if len(siblings) == 0 {
		return map[domain.CardID]time.Time{}, true
	}

	nowDays := float64(now.Unix()) / 86400
	windows := make([]Window, 0, len(siblings)+1)
	anchor := float64(latest.Unix()) / 86400
	windows = append(windows, Window{Start: anchor, End: anchor})
	byCard := make([]domain.CardID, 0, len(siblings))
	for _, c := range cards {
		last, ok := lastReviews[c.ID]
		if !ok || c.State != domain.Review || c.SpecialState != domain.SpecialNone {
			continue
		}
		interval := c.Due.Sub(last).Hours() / 24
		elapsed := now.Sub(last).Hours() / 24
		minIvl, maxIvl := s.FuzzRange(interval, elapsed)
		lastDays := float64(last.Unix()) / 86400
		w := Window{Start: lastDays + minIvl, End: lastDays + maxIvl}
		if w.Start < nowDays {
			w.Start = nowDays
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		windows = append(windows, w)
		byCard = append(byCard, c.ID)
	}

	points, _, ok := Disperse(windows)
	if !ok {
		return nil, false
	}
	out := make(map[domain.CardID]time.Time, len(byCard))
	for i, id := range byCard {
		sec := int64(math.Round(points[i+1] * 86400))
		out[id] = time.Unix(sec, 0).UTC()
	}
	return out, true
}
