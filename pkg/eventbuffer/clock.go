package eventbuffer

import "time"

// Clock supplies the time source and timers used by a Buffer.
//
// Now must carry a monotonic reading (time.Now does) so extensions are not
// skewed by wall-clock adjustments.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer a Buffer needs.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock returns the Clock backed by package time.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
