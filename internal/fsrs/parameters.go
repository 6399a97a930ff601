package fsrs

import (
	"math"
	"math/rand"
	"time"
)

// NumWeights is the size of the FSRS-6 weight vector.
const NumWeights = 21

// DefaultWeights are the published FSRS-6 default parameters, used until
// a user optimizes their own.
var DefaultWeights = [NumWeights]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

const (
	// SchedulerName tags review logs produced by this scheduler.
	SchedulerName = "fsrs"

	DefaultDesiredRetention = 0.9
	// DefaultMaximumInterval caps intervals at one hundred years of days.
	DefaultMaximumInterval = 36500.0

	minStability     = 0.001
	maxInitStability = 100.0
	minDifficulty    = 1.0
	maxDifficulty    = 10.0
)

// Scheduler evaluates the FSRS memory model. The zero value is not
// usable; construct with NewScheduler.
type Scheduler struct {
	W                [NumWeights]float64
	DesiredRetention float64
	// MaximumInterval bounds review intervals, in days.
	MaximumInterval float64
	// EnableFuzz jitters review intervals inside the fuzz range. Rand
	// supplies the jitter; with EnableFuzz off Rand is never consulted and
	// scheduling is a total function of its inputs.
	EnableFuzz bool
	Rand       *rand.Rand

	// LearningSteps and RelearningSteps drive the short-term schedule
	// before a card graduates to Review.
	LearningSteps   []time.Duration
	RelearningSteps []time.Duration
}

// NewScheduler returns a scheduler with the default FSRS-6 parameters
// and fuzz disabled.
func NewScheduler() *Scheduler {
	return &Scheduler{
		W:                DefaultWeights,
		DesiredRetention: DefaultDesiredRetention,
		MaximumInterval:  DefaultMaximumInterval,
		LearningSteps:    []time.Duration{time.Minute, 10 * time.Minute},
		RelearningSteps:  []time.Duration{10 * time.Minute},
	}
}

func (s *Scheduler) decay() float64 {
	return -s.W[20]
}

// factor makes forgettingCurve(stability, stability) equal 0.9 exactly.
func (s *Scheduler) factor() float64 {
	return math.Pow(0.9, 1/s.decay()) - 1
}
