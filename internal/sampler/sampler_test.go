package sampler

import "testing"

// TestRepeatPenaltySignAware mirrors spec scenario 4: logits [-2.0,2.0],
// last_n_tokens=[0], repeat_penalty=2 scales id0 to -4.0 (negative logit
// multiplied) while id1 is untouched. At temp=1 the draw then gives id1
// about 99.75% of the mass, and seed 1 picks it.
func TestRepeatPenaltySignAware(t *testing.T) {
	s := New(1)
	logits := []float32{-2.0, 2.0}
	got := s.Sample(logits, []int{0}, Params{TopK: 0, TopP: 1, Temp: 1, RepeatPenalty: 2})
	if got != 1 {
		t.Errorf("Sample() = %d, want 1", got)
	}
}

func TestArgmaxFastPathIgnoresPenalty(t *testing.T) {
	s := New(1)
	logits := []float32{-2.0, 2.0, 5.0}
	got := s.Sample(logits, []int{2}, Params{Temp: 0, RepeatPenalty: 2})
	if got != 2 {
		t.Errorf("Sample() with temp<=0 = %d, want argmax 2", got)
	}
}

func TestTopKTruncatesToSingleCandidate(t *testing.T) {
	s := New(1)
	logits := []float32{1, 5, 2, 9, 3}
	for i := 0; i < 20; i++ {
		got := s.Sample(logits, nil, Params{TopK: 1, TopP: 1, Temp: 1, RepeatPenalty: 1})
		if got != 3 {
			t.Fatalf("Sample() with TopK=1 = %d, want 3 (highest logit)", got)
		}
	}
}

func TestTopPNarrowCutoffConvergesToTopCandidate(t *testing.T) {
	s := New(1)
	logits := []float32{0, 0, 100}
	for i := 0; i < 20; i++ {
		got := s.Sample(logits, nil, Params{TopK: 0, TopP: 0.01, Temp: 1, RepeatPenalty: 1})
		if got != 2 {
			t.Fatalf("Sample() with tight TopP = %d, want 2", got)
		}
	}
}

func TestSeedLessThanOrEqualZeroUsesWallClock(t *testing.T) {
	s1 := New(0)
	s2 := New(-5)
	if s1.rng == nil || s2.rng == nil {
		t.Fatal("New() with seed<=0 did not initialize rng")
	}
}
