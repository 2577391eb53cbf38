package scoring

import (
	"math"
	"sync"
	"testing"
)

func TestAggregator_Mean(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   float64
	}{
		{"empty returns minimum", nil, 1.0},
		{"single", []int{4}, 4},
		{"mixed", []int{3, 3, 4, 4, 5, 5, 4, 4, 3, 3}, 3.8},
		{"all max", []int{5, 5, 5}, 5},
		{"unmapped label counts as zero", []int{0, 4}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var a Aggregator
			a.Open()
			for _, s := range tc.scores {
				if !a.Submit(s) {
					t.Fatalf("Submit(%d) rejected", s)
				}
			}
			if got := a.Close(); got != tc.want {
				t.Errorf("Close() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAggregator_Lifecycle(t *testing.T) {
	var a Aggregator
	if a.Submit(3) {
		t.Error("Submit before Open should be rejected")
	}
	a.Open()
	if a.Submit(6) || a.Submit(-1) {
		t.Error("out-of-range scores should be rejected")
	}
	a.Submit(2)
	if got := a.Close(); got != 2 {
		t.Fatalf("Close() = %v, want 2", got)
	}

	// Frozen after close.
	if a.Submit(5) {
		t.Error("Submit after Close should be rejected")
	}
	a.Open()
	if a.Submit(5) {
		t.Error("reopening a closed aggregator should have no effect")
	}
	if got := a.Close(); got != 2 {
		t.Errorf("second Close() = %v, want 2", got)
	}
	if len(a.scores) != 1 || a.scores[0] != 2 {
		t.Errorf("scores = %v, want [2]", a.scores)
	}
}

func TestAggregator_ConcurrentSubmit(t *testing.T) {
	var a Aggregator
	a.Open()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			for range 100 {
				a.Submit(score)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	if a.Len() != 800 {
		t.Fatalf("Len() = %d, want 800", a.Len())
	}
	// Scores 1,2,3,4,5,1,2,3 each 100 times.
	want := float64(1+2+3+4+5+1+2+3) / 8
	if got := a.Close(); got != want {
		t.Errorf("Close() = %v, want %v", got, want)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		mean float64
		want float64
	}{
		{1.0, 0},
		{5.0, 100},
		{3.0, 50},
		{3.8, 70},
		{0, 0},
		{7, 100},
	}
	for _, tc := range tests {
		if got := Percentage(tc.mean); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Percentage(%v) = %v, want %v", tc.mean, got, tc.want)
		}
	}
}

func TestLabelPoints(t *testing.T) {
	tests := []struct {
		label Label
		want  int
	}{
		{LabelVeryRelaxed, 5},
		{LabelRelaxed, 4},
		{LabelMildlyAnxious, 3},
		{LabelAnxious, 2},
		{LabelVeryAnxious, 1},
		{" Relaxed ", 4},
		{"surprised", 0},
		{"", 0},
	}
	for _, tc := range tests {
		if got := LabelPoints(tc.label); got != tc.want {
			t.Errorf("LabelPoints(%q) = %d, want %d", tc.label, got, tc.want)
		}
	}
}
