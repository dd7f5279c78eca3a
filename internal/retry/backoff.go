package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff waits Base*attempt, capped at Cap, and never stops on its own.
type LinearBackOff struct {
	Base time.Duration
	Cap  time.Duration

	attempt int
}

// NewLinearBackOff returns a linear backoff starting at base.
func NewLinearBackOff(base, maxDelay time.Duration) *LinearBackOff {
	return &LinearBackOff{Base: base, Cap: maxDelay}
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.Base * time.Duration(b.attempt)
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

var _ backoff.BackOff = (*LinearBackOff)(nil)
