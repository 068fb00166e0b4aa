package atmcache

import "time"

// clock abstracts the ability to get the current time
type clock interface {
	Now() time.Time
}

// systemClock is a clock implementation that use time.Now() to get the current time
type systemClock struct{}

var _ clock = systemClock{}

func (systemClock) Now() time.Time {
	return time.Now()
}
