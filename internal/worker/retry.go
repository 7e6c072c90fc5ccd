package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/voxreel/voxreel/internal/jobs"
	"github.com/voxreel/voxreel/internal/services"
)

const (
	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 60 * time.Second
)

// retryDelay returns the backoff before re-enqueueing attempt n (0-based):
// exponential with a 0-25% jitter so retries from parallel workers spread out.
func retryDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			delay = retryMaxDelay
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}

// failureDisposition decides what a pipeline error means for the job.
type failureDisposition int

const (
	// dispositionAbandon: the job reached a terminal state elsewhere
	// (cancellation); write nothing.
	dispositionAbandon failureDisposition = iota
	// dispositionFail: permanent; transition to FAILURE now.
	dispositionFail
	// dispositionRetry: transient; requeue if the retry budget allows.
	dispositionRetry
)

// classify maps a pipeline error to its disposition. Validation problems and
// permanent provider rejections never heal on retry; timeouts burn the whole
// budget again so they fail immediately; everything else is assumed transient.
func classify(err error) failureDisposition {
	if errors.Is(err, jobs.ErrAlreadyTerminal) {
		return dispositionAbandon
	}

	var vErr *jobs.ValidationError
	if errors.As(err, &vErr) {
		return dispositionFail
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return dispositionFail
	}

	var pErr *services.ProviderError
	if errors.As(err, &pErr) && pErr.Kind == services.FailurePermanent {
		return dispositionFail
	}

	return dispositionRetry
}
