package scoring_test

import (
	"math"
	"testing"

	"snatcher/internal/scoring"
)

func TestCombineWithBothScores(t *testing.T) {
	combiner := scoring.NewCombiner(0.3)
	reasoning := 0.85
	got := combiner.Combine(0.78, &reasoning)
	if math.Abs(got-0.829) > 1e-9 {
		t.Fatalf("expected 0.829, got %v", got)
	}
}

func TestCombineTreatsSkippedReasoningAsZero(t *testing.T) {
	combiner := scoring.NewCombiner(0.3)
	got := combiner.Combine(0.42, nil)
	if math.Abs(got-0.126) > 1e-9 {
		t.Fatalf("expected 0.126, got %v", got)
	}
}

func TestCombineIsDeterministic(t *testing.T) {
	combiner := scoring.NewCombiner(0.3)
	reasoning := 0.6180339887
	first := combiner.Combine(0.7071067811, &reasoning)
	for i := 0; i < 100; i++ {
		if got := combiner.Combine(0.7071067811, &reasoning); got != first {
			t.Fatalf("combine drifted on call %d: %v != %v", i, got, first)
		}
	}
}
