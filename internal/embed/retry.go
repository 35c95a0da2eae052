package embed

import (
	"context"
	"log/slog"
	"time"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// retryDelay picks the wait before the next attempt: rate limits back
// off exponentially, other retryable failures wait the base delay.
func retryDelay(kind FailureKind, base time.Duration, attempt int) time.Duration {
	if kind == FailureRateLimit {
		return base << uint(attempt)
	}
	return base
}

// withRetry runs fn up to maxRetries+1 times. Auth and fatal failures
// abort immediately; rate limits and transient failures keep retrying
// until the budget runs out, with the per-kind delay from retryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, logger *slog.Logger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.New(apperr.ErrCodeTaskCancelled, "embedding cancelled", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		kind := Classify(err)
		if kind == FailureAuth {
			return apperr.New(apperr.ErrCodeEmbeddingAuth, "embedding API authentication failed", err)
		}
		if kind == FailureFatal {
			return apperr.New(apperr.ErrCodeEmbeddingFailed, "embedding request rejected", err)
		}
		if attempt >= maxRetries {
			break
		}

		delay := retryDelay(kind, baseDelay, attempt)
		logger.Warn("embedding request failed, retrying",
			"attempt", attempt+1, "max_retries", maxRetries,
			"delay", delay.String(), "rate_limited", kind == FailureRateLimit,
			"error", err)

		select {
		case <-ctx.Done():
			return apperr.New(apperr.ErrCodeTaskCancelled, "embedding cancelled", ctx.Err())
		case <-time.After(delay):
		}
	}

	code := apperr.ErrCodeEmbeddingTransient
	if Classify(lastErr) == FailureRateLimit {
		code = apperr.ErrCodeEmbeddingRateLimited
	}
	return apperr.Wrap(code, lastErr)
}
