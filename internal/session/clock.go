package session

import "time"

// Timer is the cancellable handle for a scheduled forfeiture.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so disconnect-grace behavior is testable without
// real waiting.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
