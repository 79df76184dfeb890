package services

import "time"

// Clock abstracts wall-clock time so scheduler tests can simulate cron
// boundaries and poll ticks without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall-clock implementation used in production.
func RealClock() Clock { return realClock{} }
