package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// RetryPredicate decides whether a failed attempt should be retried.
type RetryPredicate func(err error) bool

const DefaultMaxRetries = 3

// Try retries an operation on duplicate key errors, e.g. an id collision on insert.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op up to maxRetries+1 times while shouldRetry accepts the error.
// Each retry sleeps a little longer than the last.
func WithRetries(op Operation, maxRetries int, shouldRetry RetryPredicate) error {
	return WithBackoff(context.Background(), op, maxRetries, 50*time.Millisecond, shouldRetry)
}

// WithBackoff is WithRetries with a configurable base delay and cancellation.
// The delay before attempt n+1 is base*(n+1).
func WithBackoff(ctx context.Context, op Operation, maxRetries int, base time.Duration, shouldRetry RetryPredicate) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !shouldRetry(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base * time.Duration(attempt+1)):
		}
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	return err != nil && mongo.IsDuplicateKeyError(err)
}

// IsTransientError reports errors worth retrying: network failures, timeouts and
// server-labelled transient transaction errors.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var le mongo.LabeledError
	if errors.As(err, &le) {
		return le.HasErrorLabel("TransientTransactionError") || le.HasErrorLabel("RetryableWriteError")
	}
	return false
}
