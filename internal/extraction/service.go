package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/scanning"
)

// CollaboratorError is returned when the scanner could not produce a reply,
// either after exhausting its attempts or because the context ended.
type CollaboratorError struct {
	Attempts int
	Err      error
}

func (e *CollaboratorError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("waiting for scanner: %v", e.Err)
	}
	return fmt.Sprintf("scanner failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Options tunes a Service.
type Options struct {
	// Prompt is sent with every image. Defaults to scanning.ReceiptPrompt.
	Prompt string
	// CallTimeout bounds a single scanner attempt.
	CallTimeout time.Duration
	// MaxAttempts bounds scanner attempts per extraction, including the first.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the exponential delay between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Prompt:         scanning.ReceiptPrompt,
		CallTimeout:    60 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Prompt == "" {
		o.Prompt = def.Prompt
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	return o
}

// Result is the outcome of one extraction.
type Result struct {
	Record      scanning.Record
	Image       *document.Image
	Fingerprint document.Fingerprint
	// Cached is true when the record came from the cache without a scanner call.
	Cached bool
}

// Service turns source documents into records, calling the scanner at most
// once per distinct image for the life of its cache.
type Service struct {
	normalizer *document.Normalizer
	cache      *Cache
	scanner    scanning.Scanner
	opts       Options
	inflight   singleflight.Group
}

// NewService creates a Service. The cache is owned by the caller and may
// be shared by several services in one session.
func NewService(normalizer *document.Normalizer, cache *Cache, scanner scanning.Scanner, opts Options) *Service {
	return &Service{
		normalizer: normalizer,
		cache:      cache,
		scanner:    scanner,
		opts:       opts.withDefaults(),
	}
}

// Extract normalizes doc, then returns the cached record for its
// fingerprint or asks the scanner for a new one. The cache is only written
// after a reply parses successfully.
//
// Concurrent calls for the same fingerprint share one scanner call. The
// shared call runs under the context of the caller that started it; other
// callers stop waiting when their own context ends.
func (s *Service) Extract(ctx context.Context, doc document.SourceDocument) (*Result, error) {
	img, err := s.normalizer.Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}

	fp, err := document.FingerprintOf(img)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting image: %w", err)
	}

	if rec, ok := s.cache.Get(fp); ok {
		slog.Info("extraction cache hit", "fingerprint", fp.String())
		return &Result{Record: rec, Image: img, Fingerprint: fp, Cached: true}, nil
	}
	slog.Info("extraction cache miss", "fingerprint", fp.String(), "width", img.Width(), "height", img.Height())

	ch := s.inflight.DoChan(fp.String(), func() (any, error) {
		// A call for the same key may have finished since the lookup above.
		if rec, ok := s.cache.Get(fp); ok {
			return rec, nil
		}

		raw, err := s.generate(ctx, img)
		if err != nil {
			return nil, err
		}

		// The caller may have given up while a scanner that ignores
		// cancellation was still working; its reply is discarded.
		if ctx.Err() != nil {
			return nil, &CollaboratorError{Err: ctx.Err()}
		}

		rec, err := scanning.Sanitize(raw)
		if err != nil {
			return nil, err
		}

		s.cache.Put(fp, rec)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return nil, &CollaboratorError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec := res.Val.(scanning.Record)
		return &Result{Record: rec.Clone(), Image: img, Fingerprint: fp}, nil
	}
}

// generate calls the scanner with a per-attempt timeout, retrying with
// exponential backoff.
func (s *Service) generate(ctx context.Context, img *document.Image) (string, error) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()

		raw, err := s.scanner.Generate(callCtx, s.opts.Prompt, img)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialBackoff
	policy.MaxInterval = s.opts.MaxBackoff

	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Warn("retrying scanner call", "attempt", attempts, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		return "", &CollaboratorError{Attempts: attempts, Err: err}
	}
	return raw, nil
}

func retryable(err error) bool {
	var statusErr *scanning.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
