package aggregator

import "time"

// Clock abstracts time.Now for record timestamps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
