package ocrworker

import (
	"errors"
	"time"

	"github.com/aws/smithy-go"

	"github.com/analytiqhub/docrouter/internal/apperr"
)

// backoffSchedule is the capped exponential backoff the OCR worker applies
// between provider retries: 1s, 2s, 4s, 8s, 16s, then holds at 16s.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// backoffFor returns the delay before retrying a job that has failed
// attempts times so far (1-indexed, as queue.Job.Attempts counts it).
func backoffFor(attempts int) time.Duration {
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(backoffSchedule) {
		i = len(backoffSchedule) - 1
	}
	return backoffSchedule[i]
}

// retryableError wraps a transient provider failure with the backoff delay
// the queue driver should wait before re-leasing the job. It satisfies the
// unexported retryDelayer interface pkg/queue's Driver checks for via
// errors.As.
type retryableError struct {
	err   error
	delay time.Duration
}

func (e *retryableError) Error() string            { return e.err.Error() }
func (e *retryableError) Unwrap() error             { return e.err }
func (e *retryableError) RetryDelay() time.Duration { return e.delay }

// classifyTextractError maps an AWS SDK error to apperr.ProviderTransient
// (throttling, 5xx, timeouts — worth retrying) or apperr.ProviderPermanent
// (malformed document, unsupported format — retrying won't help).
func classifyTextractError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException",
			"InternalServerError", "LimitExceededException", "ServiceUnavailableException":
			return apperr.Wrap(apperr.ProviderTransient, "textract throttled or unavailable", err)
		}
	}
	return apperr.Wrap(apperr.ProviderPermanent, "textract rejected document", err)
}
