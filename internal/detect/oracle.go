// Package detect decides, once per detection tick, whether a squat
// repetition happened and how it looked. The session state machine only
// sees the Oracle interface, so the simulated oracle here can be swapped
// for a real pose-based detector without touching session logic.
package detect

import (
	"math"
	"math/rand"
)

// Quality classifies a detected repetition.
type Quality int

const (
	QualityGood    Quality = iota // Clean rep
	QualityWarning                // Rep counted, form needs attention
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Outcome is the result of one detection tick.
// When Repetition is false the other fields are meaningless.
type Outcome struct {
	Repetition bool
	Quality    Quality
	Message    string
}

// Oracle converts one detection tick into an Outcome.
type Oracle interface {
	Detect() Outcome
}

// Config holds tuning for the random oracle.
type Config struct {
	// RepProbability is the chance a repetition is reported on any tick (0.0-1.0).
	RepProbability float64

	// GoodProbability is the chance a detected rep is classified good (0.0-1.0).
	GoodProbability float64
}

// DefaultConfig returns the reference oracle tuning.
func DefaultConfig() Config {
	return Config{
		RepProbability:  0.3,
		GoodProbability: 0.75,
	}
}

// Verify RandomOracle implements Oracle
var _ Oracle = (*RandomOracle)(nil)

// RandomOracle simulates detection with independent uniform draws.
// The rand source is injected so runs are reproducible under a fixed seed.
type RandomOracle struct {
	rng          *rand.Rand
	repThreshold float64
	qualityPool  []Quality
}

// NewRandomOracle creates a RandomOracle. rng must be non nil.
func NewRandomOracle(rng *rand.Rand, config Config) *RandomOracle {
	if rng == nil {
		panic("RandomOracle: rng cannot be nil")
	}

	// Quality is drawn uniformly from a small weighted pool, e.g. the
	// default 0.75 gives {good, good, good, warning}
	poolSize := 4
	goodCount := int(math.Round(config.GoodProbability * float64(poolSize)))
	if goodCount < 0 {
		goodCount = 0
	}
	if goodCount > poolSize {
		goodCount = poolSize
	}
	pool := make([]Quality, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		if i < goodCount {
			pool = append(pool, QualityGood)
		} else {
			pool = append(pool, QualityWarning)
		}
	}

	return &RandomOracle{
		rng:          rng,
		repThreshold: 1.0 - config.RepProbability,
		qualityPool:  pool,
	}
}

// Detect draws whether a rep occurred on this tick and, if so, its quality
// and one feedback message from the catalog for that quality.
func (o *RandomOracle) Detect() Outcome {
	if o.rng.Float64() <= o.repThreshold {
		return Outcome{}
	}

	quality := o.qualityPool[o.rng.Intn(len(o.qualityPool))]

	catalog := MessagesFor(quality)
	message := catalog[o.rng.Intn(len(catalog))]

	return Outcome{
		Repetition: true,
		Quality:    quality,
		Message:    message,
	}
}
