package fsrs

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func days(d float64) time.Duration {
	return time.Duration(d * 24 * float64(time.Hour))
}

func approx(t *testing.T, name string, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, eps)
	}
}

func TestScheduleNewCard(t *testing.T) {
	s := NewScheduler()

	t.Run("good enters learning", func(t *testing.T) {
		card, log, err := s.Schedule(domain.Card{State: domain.New}, nil, domain.Good, t0, 3*time.Second)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if card.State != domain.Learning {
			t.Errorf("state = %v, want Learning", card.State)
		}
		approx(t, "stability", card.Stability, s.W[2], 1e-9)
		approx(t, "difficulty", card.Difficulty, s.initDifficulty(domain.Good), 1e-9)
		if wantDue := t0.Add(10 * time.Minute); !card.Due.Equal(wantDue) {
			t.Errorf("due = %v, want %v", card.Due, wantDue)
		}
		if log.PreviousState != domain.New || log.Rating != domain.Good {
			t.Errorf("log = %+v", log)
		}
		if log.ScheduledTime != int64(card.Due.Sub(t0).Seconds()) {
			t.Errorf("scheduled time = %d", log.ScheduledTime)
		}
	})

	t.Run("again starts at the first step", func(t *testing.T) {
		card, _, err := s.Schedule(domain.Card{State: domain.New}, nil, domain.Again, t0, 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if card.State != domain.Learning {
			t.Errorf("state = %v, want Learning", card.State)
		}
		if wantDue := t0.Add(time.Minute); !card.Due.Equal(wantDue) {
			t.Errorf("due = %v, want %v", card.Due, wantDue)
		}
	})

	t.Run("easy graduates immediately", func(t *testing.T) {
		card, _, err := s.Schedule(domain.Card{State: domain.New}, nil, domain.Easy, t0, 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if card.State != domain.Review {
			t.Errorf("state = %v, want Review", card.State)
		}
		if !card.Due.After(t0.Add(days(1) - time.Second)) {
			t.Errorf("due = %v, want at least a day out", card.Due)
		}
	})
}

func TestScheduleLearningGraduates(t *testing.T) {
	s := NewScheduler()
	card, log, err := s.Schedule(domain.Card{State: domain.New}, nil, domain.Good, t0, 0)
	if err != nil {
		t.Fatalf("first review: %v", err)
	}
	at := t0.Add(10 * time.Minute)
	card, _, err = s.Schedule(card, &log, domain.Good, at, 0)
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if card.State != domain.Review {
		t.Errorf("state = %v, want Review", card.State)
	}
	if card.Due.Before(at.Add(days(1) - time.Minute)) {
		t.Errorf("due = %v, want at least a day past %v", card.Due, at)
	}
	if card.CustomData != "" {
		t.Errorf("custom data = %q, want empty after graduating", card.CustomData)
	}
}

func TestScheduleReview(t *testing.T) {
	s := NewScheduler()
	review := domain.Card{
		State:      domain.Review,
		Stability:  10,
		Difficulty: 5,
		Due:        t0.Add(days(10)),
	}
	last := domain.ReviewLog{ReviewedAt: t0, Rating: domain.Good}

	t.Run("success grows stability", func(t *testing.T) {
		card, _, err := s.Schedule(review, &last, domain.Good, t0.Add(days(10)), 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if card.State != domain.Review {
			t.Errorf("state = %v, want Review", card.State)
		}
		if card.Stability <= review.Stability {
			t.Errorf("stability = %v, want growth past %v", card.Stability, review.Stability)
		}
	})

	t.Run("lapse shrinks stability and relearns", func(t *testing.T) {
		card, _, err := s.Schedule(review, &last, domain.Again, t0.Add(days(10)), 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if card.State != domain.Relearning {
			t.Errorf("state = %v, want Relearning", card.State)
		}
		if card.Stability >= review.Stability {
			t.Errorf("stability = %v, want decay below %v", card.Stability, review.Stability)
		}
		if wantDue := t0.Add(days(10)).Add(10 * time.Minute); !card.Due.Equal(wantDue) {
			t.Errorf("due = %v, want %v", card.Due, wantDue)
		}
	})

	t.Run("hard is smaller than good is smaller than easy", func(t *testing.T) {
		var stabilities []float64
		for _, r := range []domain.Rating{domain.Hard, domain.Good, domain.Easy} {
			card, _, err := s.Schedule(review, &last, r, t0.Add(days(10)), 0)
			if err != nil {
				t.Fatalf("Schedule(%v): %v", r, err)
			}
			stabilities = append(stabilities, card.Stability)
		}
		if !(stabilities[0] < stabilities[1] && stabilities[1] < stabilities[2]) {
			t.Errorf("stabilities = %v, want strictly increasing", stabilities)
		}
	})
}

func TestScheduleErrors(t *testing.T) {
	s := NewScheduler()
	if _, _, err := s.Schedule(domain.Card{State: domain.New}, nil, domain.Rating(9), t0, 0); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("error = %v, want ErrInvalidRating", err)
	}
	suspended := domain.Card{State: domain.Review, SpecialState: domain.Suspended}
	if _, _, err := s.Schedule(suspended, nil, domain.Good, t0, 0); !errors.Is(err, ErrSuspended) {
		t.Errorf("error = %v, want ErrSuspended", err)
	}
	if _, _, err := s.Schedule(domain.Card{State: domain.State(7)}, nil, domain.Good, t0, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestBury(t *testing.T) {
	card, err := Bury(domain.Card{})
	if err != nil {
		t.Fatalf("Bury: %v", err)
	}
	if card.SpecialState != domain.UserBuried {
		t.Errorf("special state = %v, want UserBuried", card.SpecialState)
	}
	if _, err := Bury(card); !errors.Is(err, ErrAlreadyBuried) {
		t.Errorf("error = %v, want ErrAlreadyBuried", err)
	}
	if _, err := Bury(domain.Card{SpecialState: domain.Suspended}); !errors.Is(err, ErrSuspended) {
		t.Errorf("error = %v, want ErrSuspended", err)
	}
}

func TestFuzzRange(t *testing.T) {
	s := NewScheduler()

	t.Run("short intervals are exact", func(t *testing.T) {
		minIvl, maxIvl := s.FuzzRange(2, 0)
		if minIvl != 2 || maxIvl != 2 {
			t.Errorf("range = [%v, %v], want [2, 2]", minIvl, maxIvl)
		}
	})

	t.Run("width grows with the interval", func(t *testing.T) {
		prev := 0.0
		for _, ivl := range []float64{3, 5, 8, 15, 30, 100} {
			minIvl, maxIvl := s.FuzzRange(ivl, 0)
			width := maxIvl - minIvl
			if width < prev {
				t.Errorf("width(%v) = %v, narrower than the previous band", ivl, width)
			}
			if minIvl > ivl || maxIvl < ivl {
				t.Errorf("range [%v, %v] does not contain %v", minIvl, maxIvl, ivl)
			}
			prev = width
		}
	})

	t.Run("lower bound respects elapsed time", func(t *testing.T) {
		minIvl, _ := s.FuzzRange(10, 8)
		if minIvl < 9 {
			t.Errorf("min = %v, want at least elapsed+1", minIvl)
		}
	})
}

func TestScheduleDeterministicWithoutFuzz(t *testing.T) {
	s := NewScheduler()
	card := domain.Card{State: domain.Review, Stability: 7, Difficulty: 6, Due: t0.Add(days(7))}
	last := domain.ReviewLog{ReviewedAt: t0}
	a, _, err := s.Schedule(card, &last, domain.Good, t0.Add(days(7)), 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	b, _, err := s.Schedule(card, &last, domain.Good, t0.Add(days(7)), 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if a != b {
		t.Errorf("two identical schedules diverge: %+v vs %+v", a, b)
	}
}

func TestComputeMemoryStateMatchesSequentialReviews(t *testing.T) {
	s := NewScheduler()
	reviews := []struct {
		rating domain.Rating
		at     time.Time
	}{
		{domain.Good, t0},
		{domain.Good, t0.Add(days(2))},
		{domain.Again, t0.Add(days(5))},
	}

	card := domain.Card{State: domain.New}
	var logs []domain.ReviewLog
	var last *domain.ReviewLog
	for _, r := range reviews {
		next, log, err := s.Schedule(card, last, r.rating, r.at, 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		card = next
		logs = append(logs, log)
		last = &logs[len(logs)-1]
	}

	recomputed, err := s.ComputeMemoryState(logs)
	if err != nil {
		t.Fatalf("ComputeMemoryState: %v", err)
	}
	approx(t, "stability", recomputed.Stability, card.Stability, 1e-9)
	approx(t, "difficulty", recomputed.Difficulty, card.Difficulty, 1e-9)
	if recomputed.State != card.State {
		t.Errorf("state = %v, want %v", recomputed.State, card.State)
	}
}

func TestDisperse(t *testing.T) {
	t.Run("three siblings spread a day apart", func(t *testing.T) {
		windows := []Window{{0, 0}, {0, 2}, {0, 2}}
		points, minGap, ok := Disperse(windows)
		if !ok {
			t.Fatal("Disperse: infeasible")
		}
		approx(t, "min gap", minGap, 1, 1e-6)
		for i, p := range points {
			if p < windows[i].Start-1e-9 || p > windows[i].End+1e-9 {
				t.Errorf("point %d = %v outside window %+v", i, p, windows[i])
			}
		}
		for i := range points {
			for j := i + 1; j < len(points); j++ {
				if gap := math.Abs(points[i] - points[j]); gap < minGap-1e-6 {
					t.Errorf("points %d and %d are %v apart, want at least %v", i, j, gap, minGap)
				}
			}
		}
	})

	t.Run("pinned windows collapse the gap", func(t *testing.T) {
		_, minGap, ok := Disperse([]Window{{0, 0}, {0, 0}})
		if !ok {
			t.Fatal("Disperse: infeasible")
		}
		approx(t, "min gap", minGap, 0, 1e-9)
	})

	t.Run("inverted window fails", func(t *testing.T) {
		if _, _, ok := Disperse([]Window{{2, 1}}); ok {
			t.Error("Disperse accepted an inverted window")
		}
	})
}

func TestAdvancePostpone(t *testing.T) {
	s := NewScheduler()
	card := domain.Card{ID: 1, State: domain.Review, Stability: 10, Due: t0.Add(days(10))}
	cand := Candidate{Card: card, LastReviewedAt: t0}

	t.Run("advance near the due date is safe", func(t *testing.T) {
		if got := s.AdvanceSafeCount([]Candidate{cand}, t0.Add(days(9.5))); got != 1 {
			t.Errorf("safe count = %d, want 1", got)
		}
	})

	t.Run("advancing far ahead is unsafe", func(t *testing.T) {
		if got := s.AdvanceSafeCount([]Candidate{cand}, t0.Add(days(5))); got != 0 {
			t.Errorf("safe count = %d, want 0", got)
		}
	})

	t.Run("short postponement is safe", func(t *testing.T) {
		if got := s.PostponeSafeCount([]Candidate{cand}, t0.Add(days(11))); got != 1 {
			t.Errorf("safe count = %d, want 1", got)
		}
	})

	t.Run("long postponement is unsafe", func(t *testing.T) {
		if got := s.PostponeSafeCount([]Candidate{cand}, t0.Add(days(20))); got != 0 {
			t.Errorf("safe count = %d, want 0", got)
		}
	})

	t.Run("advance moves the due date", func(t *testing.T) {
		to := t0.Add(days(9))
		moved := s.Advance([]Candidate{cand}, 1, to)
		if len(moved) != 1 || !moved[0].Due.Equal(to) {
			t.Errorf("moved = %+v, want due %v", moved, to)
		}
	})

	t.Run("postpone extends the interval", func(t *testing.T) {
		to := t0.Add(days(12))
		moved := s.Postpone([]Candidate{cand}, 1, to)
		if len(moved) != 1 {
			t.Fatalf("moved = %d cards, want 1", len(moved))
		}
		// scheduled 10d * 1.05 + 2d delay = 12.5d
		want := t0.Add(days(12.5))
		if diff := moved[0].Due.Sub(want); diff < -time.Hour || diff > time.Hour {
			t.Errorf("due = %v, want about %v", moved[0].Due, want)
		}
	})
}

func TestReschedule(t *testing.T) {
	s := NewScheduler()
	card := domain.Card{ID: 7, State: domain.New}
	var logs []domain.ReviewLog
	var last *domain.ReviewLog
	for _, r := range []struct {
		rating domain.Rating
		at     time.Time
	}{
		{domain.Good, t0},
		{domain.Good, t0.Add(days(1))},
		{domain.Good, t0.Add(days(4))},
	} {
		next, log, err := s.Schedule(card, last, r.rating, r.at, 0)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		card = next
		logs = append(logs, log)
		last = &logs[len(logs)-1]
	}

	// perturb the stored scheduling fields, then restore them from history
	stored := card
	stored.Stability = 1
	stored.Difficulty = 9
	stored.Due = t0

	out, err := s.Reschedule([]RescheduleItem{{Card: stored, Logs: logs}})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("out = %d cards, want 1", len(out))
	}
	approx(t, "stability", out[0].Stability, card.Stability, 1e-9)
	approx(t, "difficulty", out[0].Difficulty, card.Difficulty, 1e-9)
	if out[0].State != card.State {
		t.Errorf("state = %v, want %v", out[0].State, card.State)
	}
	if out[0].ID != stored.ID {
		t.Errorf("identity changed: %d", out[0].ID)
	}

	t.Run("no history keeps the card", func(t *testing.T) {
		out, err := s.Reschedule([]RescheduleItem{{Card: stored}})
		if err != nil {
			t.Fatalf("Reschedule: %v", err)
		}
		if out[0] != stored {
			t.Errorf("card changed without history: %+v", out[0])
		}
	})
}
