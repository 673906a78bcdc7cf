package main

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// TestSpeedEstimator_SingleInterval tests the degenerate one-notch estimate.
func TestSpeedEstimator_SingleInterval(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	// 40 ms with empty history: one notch over 40 ms.
	got := e.estimate(40 * time.Millisecond)
	if !almostEqual(got, 1000, 1e-9) {
		t.Errorf("expected 1000, got %f", got)
	}
	if len(e.intervals) != 1 {
		t.Errorf("expected 1 recorded interval, got %d", len(e.intervals))
	}
}

// TestSpeedEstimator_LongIntervalClearsHistory tests that an interval wider
// than the window discards history and is not recorded itself.
func TestSpeedEstimator_LongIntervalClearsHistory(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	e.estimate(40 * time.Millisecond)
	e.estimate(40 * time.Millisecond)

	got := e.estimate(300 * time.Millisecond)
	want := 40.0 / 0.3
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("expected %f, got %f", want, got)
	}
	if len(e.intervals) != 0 {
		t.Errorf("expected cleared history, got %d intervals", len(e.intervals))
	}
}

// TestSpeedEstimator_UniformNotches tests that a steady notch rate estimates
// the steady speed regardless of how much history accumulated.
func TestSpeedEstimator_UniformNotches(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	for i := 0; i < 10; i++ {
		got := e.estimate(40 * time.Millisecond)
		if !almostEqual(got, 1000, 1e-6) {
			t.Errorf("notch %d: expected 1000, got %f", i, got)
		}
	}
}

// TestSpeedEstimator_FractionalContribution tests the partial credit for the
// interval straddling the window edge.
func TestSpeedEstimator_FractionalContribution(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	e.estimate(150 * time.Millisecond)

	// 100 ms new + 150 ms history: 150+100 > 200, so the historical interval
	// contributes (200-100)/150 of a notch and duration caps at the window.
	got := e.estimate(100 * time.Millisecond)
	want := 40 * (1 + 100.0/150.0) / 0.2
	if !almostEqual(got, want, 1e-6) {
		t.Errorf("expected %f, got %f", want, got)
	}
}

// TestSpeedEstimator_PushFeedsNextEstimate tests that intervals recorded via
// push (braking dejitter) count toward the next estimate.
func TestSpeedEstimator_PushFeedsNextEstimate(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	e.push(50 * time.Millisecond)

	// 150 ms new + 50 ms pushed = exactly the window: two notches in 200 ms.
	got := e.estimate(150 * time.Millisecond)
	if !almostEqual(got, 400, 1e-6) {
		t.Errorf("expected 400, got %f", got)
	}
}

// TestSpeedEstimator_HistoryStaysBounded tests pruning.
func TestSpeedEstimator_HistoryStaysBounded(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	for i := 0; i < 1000; i++ {
		e.estimate(10 * time.Millisecond)
	}
	// A window walk needs at most ceil(200/10)+1 entries.
	if len(e.intervals) > 25 {
		t.Errorf("history not pruned: %d intervals", len(e.intervals))
	}

	// Zero-length intervals (clamped non-monotonic timestamps) cannot grow
	// the history without bound either.
	for i := 0; i < 1000; i++ {
		e.push(0)
	}
	if len(e.intervals) > maxTrackedIntervals {
		t.Errorf("hard cap not applied: %d intervals", len(e.intervals))
	}
}

// TestSpeedEstimator_Reset tests that reset clears history.
func TestSpeedEstimator_Reset(t *testing.T) {
	e := newSpeedEstimator(40, 200*time.Millisecond)

	e.estimate(40 * time.Millisecond)
	e.estimate(40 * time.Millisecond)
	e.reset()

	if len(e.intervals) != 0 {
		t.Errorf("expected empty history after reset, got %d", len(e.intervals))
	}
}
