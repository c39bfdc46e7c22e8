// Package timeline provides time interval types shared by silence detection
// and segment planning, and the planner that turns silences into keep ranges.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Static errors for interval validation.
var (
	// ErrInvertedInterval is returned when an interval ends before it starts.
	ErrInvertedInterval = errors.New("interval end is before start")
	// ErrNegativeStart is returned when an interval starts before zero.
	ErrNegativeStart = errors.New("interval starts before zero")
	// ErrOverlap is returned when a list is unordered or has overlapping intervals.
	ErrOverlap = errors.New("intervals overlap or are out of order")
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End - i.Start
}

// Validate checks the interval invariants.
func (i Interval) Validate() error {
	if i.Start < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeStart, i.Start)
	}
	if i.End < i.Start {
		return fmt.Errorf("%w: [%v, %v)", ErrInvertedInterval, i.Start, i.End)
	}
	return nil
}

// Contains reports whether t falls inside [Start, End).
func (i Interval) Contains(t time.Duration) bool {
	return t >= i.Start && t < i.End
}

func (i Interval) String() string {
	return fmt.Sprintf("[%.3fs, %.3fs)", i.Start.Seconds(), i.End.Seconds())
}

// List is an ordered sequence of intervals. It is used both for silence
// lists and keep lists.
type List []Interval

// Validate checks that every interval is valid and that consecutive
// intervals satisfy list[i].End <= list[i+1].Start.
func (l List) Validate() error {
	for i, iv := range l {
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("interval %d: %w", i, err)
		}
		if i > 0 && l[i-1].End > iv.Start {
			return fmt.Errorf("%w: %v then %v", ErrOverlap, l[i-1], iv)
		}
	}
	return nil
}

// Total returns the summed duration of every interval.
func (l List) Total() time.Duration {
	var total time.Duration
	for _, iv := range l {
		total += iv.Duration()
	}
	return total
}

// Clip returns the portion of the list that lies within [0, limit].
func (l List) Clip(limit time.Duration) List {
	var out List
	for _, iv := range l {
		if iv.Start >= limit {
			break
		}
		if iv.End > limit {
			iv.End = limit
		}
		out = append(out, iv)
	}
	return out
}

// Seconds converts a fractional number of seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
