package main

import (
	"testing"
	"time"
)

func TestDurationFromSecondsDefaultsWhenNonPositive(t *testing.T) {
	for _, s := range []float64{0, -1, -30} {
		if got := durationFromSeconds(s); got != 30*time.Second {
			t.Fatalf("durationFromSeconds(%v) = %v, want the 30s default", s, got)
		}
	}
}

func TestDurationFromSecondsScalesPositiveValues(t *testing.T) {
	if got := durationFromSeconds(2.5); got != 2500*time.Millisecond {
		t.Fatalf("durationFromSeconds(2.5) = %v, want 2.5s", got)
	}
}
