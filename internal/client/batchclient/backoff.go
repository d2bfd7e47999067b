package batchclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LinearBackOff waits Unit after the first failure, 2*Unit after the
// second, and so on.
type LinearBackOff struct {
	Unit    time.Duration
	attempt int64
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.Unit
}

func (b *LinearBackOff) Reset() { b.attempt = 0 }
