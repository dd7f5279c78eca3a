package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/spherical/verbatim/internal/domain"
)

// Paced spaces out calls to a recognizer so a run stays under a request quota.
type Paced struct {
	next    domain.Recognizer
	limiter *rate.Limiter
}

// NewPaced allows perMinute calls per minute. A non-positive rate returns next unchanged.
func NewPaced(next domain.Recognizer, perMinute int) domain.Recognizer {
	if perMinute <= 0 {
		return next
	}
	return &Paced{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Recognize waits for a slot, then delegates.
func (p *Paced) Recognize(ctx context.Context, unit domain.Unit, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.TransportError("rate limiter", err)
	}
	return p.next.Recognize(ctx, unit, prompt)
}
