package pipeline

// limiter.go implements concurrency control for upload processing.
//
// A semaphore restricts parallel uploads to a configurable maximum so a
// burst of large CSV files cannot exhaust connections or disk. When all
// slots are occupied, new requests wait up to maxWait before failing
// with ErrTooManyUploads. Note this bounds concurrency ACROSS requests;
// row writes WITHIN one request are serialized by the ingest loop
// itself.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyUploads is returned when all upload slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// Limiter bounds concurrent upload processing.
type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration
}

// NewLimiter creates a limiter allowing at most maxConcurrent
// simultaneous uploads. Requests that cannot acquire a slot within
// maxWait receive ErrTooManyUploads.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire claims an upload slot, waiting up to the configured maximum.
// The caller must Release when the upload settles (use defer).
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTooManyUploads
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	select {
	case <-l.semaphore:
	default:
	}
}
