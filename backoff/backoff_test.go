package backoff_test

import (
	"testing"
	"time"

	"github.com/flowline-dev/flowline/backoff"
)

func TestNone(t *testing.T) {
	var s backoff.None
	for _, attempt := range []int{1, 2, 10} {
		if d := s.Delay(attempt); d != 0 {
			t.Errorf("Delay(%d) = %v, want 0", attempt, d)
		}
	}
}

func TestFixed(t *testing.T) {
	s := backoff.NewFixed(2 * time.Second)
	for _, attempt := range []int{1, 3, 7} {
		if d := s.Delay(attempt); d != 2*time.Second {
			t.Errorf("Delay(%d) = %v, want 2s", attempt, d)
		}
	}
}

func TestExponential(t *testing.T) {
	s := backoff.NewExponential(time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, time.Minute}, // capped
	}
	for _, tt := range tests {
		if d := s.Delay(tt.attempt); d != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, d, tt.want)
		}
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	s := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	for range 100 {
		d := s.Delay(3)
		if d < 0 || d > 4*time.Second {
			t.Fatalf("Delay(3) = %v, want within [0, 4s]", d)
		}
	}
}

func TestDefaultIsNone(t *testing.T) {
	if d := backoff.Default().Delay(5); d != 0 {
		t.Errorf("Default().Delay(5) = %v, want 0", d)
	}
}
