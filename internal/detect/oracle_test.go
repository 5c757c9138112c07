package detect

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomOracle_NilRngPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRandomOracle(nil, DefaultConfig())
	})
}

func TestRandomOracle_Reproducible(t *testing.T) {
	oracleA := NewRandomOracle(rand.New(rand.NewSource(42)), DefaultConfig())
	oracleB := NewRandomOracle(rand.New(rand.NewSource(42)), DefaultConfig())

	for i := 0; i < 200; i++ {
		assert.Equal(t, oracleA.Detect(), oracleB.Detect(), "tick %d diverged", i)
	}
}

func TestRandomOracle_RepFrequency(t *testing.T) {
	oracle := NewRandomOracle(rand.New(rand.NewSource(1)), DefaultConfig())

	const draws = 10000
	reps := 0
	for i := 0; i < draws; i++ {
		if oracle.Detect().Repetition {
			reps++
		}
	}

	// P(rep) = 0.3; allow generous slack for a fixed seed
	assert.InDelta(t, 0.3, float64(reps)/draws, 0.03)
}

func TestRandomOracle_QualityMix(t *testing.T) {
	oracle := NewRandomOracle(rand.New(rand.NewSource(7)), DefaultConfig())

	good, warning := 0, 0
	for i := 0; i < 20000; i++ {
		outcome := oracle.Detect()
		if !outcome.Repetition {
			continue
		}
		switch outcome.Quality {
		case QualityGood:
			good++
		case QualityWarning:
			warning++
		}
	}

	total := good + warning
	require.Greater(t, total, 0)
	// 3-in-4 good
	assert.InDelta(t, 0.75, float64(good)/float64(total), 0.05)
}

func TestRandomOracle_MessagesMatchQuality(t *testing.T) {
	oracle := NewRandomOracle(rand.New(rand.NewSource(3)), DefaultConfig())

	seen := 0
	for i := 0; i < 2000 && seen < 50; i++ {
		outcome := oracle.Detect()
		if !outcome.Repetition {
			continue
		}
		seen++
		require.NotEmpty(t, outcome.Message)
		assert.Contains(t, MessagesFor(outcome.Quality), outcome.Message)
	}
	require.Greater(t, seen, 0)
}

func TestRandomOracle_ExtremeProbabilities(t *testing.T) {
	never := NewRandomOracle(rand.New(rand.NewSource(9)), Config{RepProbability: 0, GoodProbability: 0.75})
	for i := 0; i < 500; i++ {
		assert.False(t, never.Detect().Repetition)
	}

	always := NewRandomOracle(rand.New(rand.NewSource(9)), Config{RepProbability: 1, GoodProbability: 0})
	for i := 0; i < 500; i++ {
		outcome := always.Detect()
		require.True(t, outcome.Repetition)
		assert.Equal(t, QualityWarning, outcome.Quality)
	}
}

func TestCatalogs(t *testing.T) {
	assert.Len(t, MessagesFor(QualityGood), 6)
	assert.Len(t, MessagesFor(QualityWarning), 5)
	for _, msg := range append(MessagesFor(QualityGood), MessagesFor(QualityWarning)...) {
		assert.NotEmpty(t, msg)
	}
}
