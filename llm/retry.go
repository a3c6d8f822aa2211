package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Breaker gates calls to the underlying provider. *breaker.Breaker
// satisfies this interface.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// reaching the provider.
var ErrCircuitOpen = errors.New("llm: circuit open")

// RetryConfig controls the retry decorator.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 2.
	MaxRetries int

	// BaseDelay is the first backoff delay. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay. Default: 10s.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// RetryClient wraps a Client with bounded exponential backoff on
// transient failures. Malformed-output errors are never retried here;
// whether to re-ask the model is the caller's decision.
type RetryClient struct {
	inner   Client
	config  RetryConfig
	breaker Breaker

	// sleep is replaceable for tests.
	sleep func(context.Context, time.Duration) error
}

// NewRetryClient wraps inner with retry behavior.
func NewRetryClient(inner Client, config RetryConfig) *RetryClient {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	return &RetryClient{
		inner:  inner,
		config: config,
		sleep:  sleepCtx,
	}
}

// SetBreaker installs a circuit breaker consulted before every
// attempt. The breaker instance is shared; its state is mutated, never
// replaced.
func (c *RetryClient) SetBreaker(b Breaker) {
	c.breaker = b
}

// Complete implements Client.
func (c *RetryClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	var out *Completion
	err := c.do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.inner.Complete(ctx, req)
		return callErr
	})
	return out, err
}

// CompleteStructured implements Client.
func (c *RetryClient) CompleteStructured(ctx context.Context, req Request, schema Schema) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.inner.CompleteStructured(ctx, req, schema)
		return callErr
	})
	return out, err
}

func (c *RetryClient) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}

		if c.breaker != nil && !c.breaker.Allow() {
			lastErr = ErrCircuitOpen
			continue
		}

		err := call(ctx)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return nil
		}

		if c.breaker != nil && Retryable(err) {
			c.breaker.RecordFailure()
		}

		if !Retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// backoff returns the delay before the given attempt (1-based), with
// full jitter.
func (c *RetryClient) backoff(attempt int) time.Duration {
	delay := c.config.BaseDelay << (attempt - 1)
	if delay > c.config.MaxDelay || delay <= 0 {
		delay = c.config.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(delay)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
