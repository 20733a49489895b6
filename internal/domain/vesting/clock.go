package vesting

import "time"

// Clock supplies the current time for vesting arithmetic. Services sample
// it exactly once per operation and reuse that value for every calculation
// within the operation.
type Clock interface {
	Now() int64 // unix seconds
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}
