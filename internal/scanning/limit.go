package scanning

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/zombor/receipt2json/internal/document"
)

// Limited spaces out calls to a Scanner, e.g. to stay under a hosted
// model's requests-per-minute quota. Retries count against the limit.
type Limited struct {
	next    Scanner
	limiter *rate.Limiter
}

// NewLimited wraps next so it is called at most perSecond times a second,
// with bursts of up to burst calls.
func NewLimited(next Scanner, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limited) Generate(ctx context.Context, prompt string, img *document.Image) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}
	return l.next.Generate(ctx, prompt, img)
}

func (l *Limited) Close() error {
	return l.next.Close()
}
