package main

import "time"

// maxTrackedIntervals bounds the history against pathological streams of
// zero-length intervals (non-monotonic device timestamps clamp to zero).
const maxTrackedIntervals = 256

// speedEstimator converts the most recent inter-notch interval plus recent
// history into a target scroll speed.
//
// It counts how many full and partial notches fall within a trailing window,
// divided by the wall time they span. The trailing interval that straddles
// the window edge contributes fractionally, which makes the estimate much
// smoother than a single-interval reciprocal.
//
// Single-owner: only the smoother touches it, from the dispatch goroutine.
type speedEstimator struct {
	factor    float64
	window    time.Duration
	intervals []time.Duration
}

func newSpeedEstimator(factor float64, window time.Duration) *speedEstimator {
	return &speedEstimator{
		factor:    factor,
		window:    window,
		intervals: make([]time.Duration, 0, 16),
	}
}

// reset discards the interval history. Called when a gesture (re)starts.
func (e *speedEstimator) reset() {
	e.intervals = e.intervals[:0]
}

// push records an interval without producing an estimate. The braking
// dejitter path uses this so suppressed taps still feed the next estimate.
func (e *speedEstimator) push(interval time.Duration) {
	e.intervals = append(e.intervals, interval)
	e.prune()
}

// estimate returns the target speed for the newest inter-notch interval and
// records it in the history.
//
// An interval longer than the window stands alone: the history is cleared
// and the estimate degrades to a single-interval reciprocal.
func (e *speedEstimator) estimate(interval time.Duration) float64 {
	if interval > e.window {
		e.intervals = e.intervals[:0]
		return e.factor / interval.Seconds()
	}

	count := 1.0
	duration := interval

	for i := len(e.intervals) - 1; i >= 0; i-- {
		iv := e.intervals[i]
		if iv+duration > e.window {
			count += (e.window - duration).Seconds() / iv.Seconds()
			duration = e.window
			break
		}
		duration += iv
		count++
	}

	e.intervals = append(e.intervals, interval)
	e.prune()

	return e.factor * count / duration.Seconds()
}

// prune drops history a window walk can never reach: everything older than
// the first interval that crosses the window, plus a hard length cap.
func (e *speedEstimator) prune() {
	var total time.Duration
	for i := len(e.intervals) - 1; i >= 0; i-- {
		total += e.intervals[i]
		if total > e.window {
			e.intervals = append(e.intervals[:0], e.intervals[i:]...)
			break
		}
	}
	if len(e.intervals) > maxTrackedIntervals {
		e.intervals = append(e.intervals[:0], e.intervals[len(e.intervals)-maxTrackedIntervals:]...)
	}
}
