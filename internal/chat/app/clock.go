package app

import "time"

// Timer stop a scheduled func
type Timer interface {
	Stop() bool
}

// Clock time source for retries / debounce / expiry
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock wall clock
var SystemClock Clock = systemClock{}
