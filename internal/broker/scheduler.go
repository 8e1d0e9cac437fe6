package broker

import "time"

// Timer is a pending scheduled call
type Timer interface {
	// Stop cancels the call; it reports false if the call already ran
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on the runtime timer
var SystemScheduler Scheduler = systemScheduler{}
