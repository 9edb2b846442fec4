package scheduler

import (
	"fmt"
	"time"
)

// Every runs a job at a fixed interval measured from the previous slot.
type Every struct {
	Interval time.Duration
}

var _ Schedule = Every{}

// NewEvery validates the interval.
func NewEvery(interval time.Duration) (Every, error) {
	if interval < time.Second {
		return Every{}, fmt.Errorf("interval must be at least 1s, got %s", interval)
	}
	return Every{Interval: interval}, nil
}

// Next implements Schedule.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(e.Interval)
}

// String implements Schedule.
func (e Every) String() string {
	return "@every " + e.Interval.String()
}
