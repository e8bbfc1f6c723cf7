// Package retry provides bounded exponential backoff for transient failures.
//
// Retryability is decided by the substrate's error classification: transient
// errors are retried, invalid and fatal ones abort immediately. Unclassified
// errors count as transient, so a plain error from a driver or the network
// is retried by default.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/delmic/odemis-sub003/errors"
)

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (<=0 means run once)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Cap on the backoff delay
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	Jitter       bool          // Add up to 25% randomness to each delay
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Dial returns a config tuned for connection establishment, where the peer
// may simply not be up yet.
func Dial() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do executes fn with exponential backoff. It stops on success, on a
// non-transient error, when ctx ends, or after MaxAttempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Classify(err) != errors.ErrorTransient {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter {
			sleep += time.Duration(rand.Int63n(int64(delay/4) + 1))
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
