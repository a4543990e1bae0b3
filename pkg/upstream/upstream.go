// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upstream bounds calls to remote services (language model,
// similarity search, Open Library) with a fixed retry schedule and a
// per-attempt timeout, and reports exhaustion as a single error kind.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrTransient marks a remote dependency as unavailable after retries.
var ErrTransient = errors.New("upstream unavailable")

// DefaultBackoffs is the wait schedule between attempts. One final attempt
// follows the last wait, so the default policy makes four attempts.
var DefaultBackoffs = []time.Duration{300 * time.Millisecond, 700 * time.Millisecond, 1200 * time.Millisecond}

// DefaultTimeout bounds a single attempt.
const DefaultTimeout = 15 * time.Second

// Error is returned when a remote call fails for good.
type Error struct {
	Service  string
	Op       string
	Attempts int
	// Permanent is set when the remote rejected the request outright
	// (4xx other than 429) and retrying could not help.
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	if e.Permanent {
		return fmt.Sprintf("%s %s: rejected: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v after %d attempts: %v", e.Service, e.Op, ErrTransient, e.Attempts, e.Err)
}

// Unwrap exposes both the cause and, for retry exhaustion, ErrTransient.
func (e *Error) Unwrap() []error {
	if e.Permanent {
		return []error{e.Err}
	}
	return []error{ErrTransient, e.Err}
}

// StatusError is a non-2xx HTTP response from a remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports 429 and 5xx as retryable.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy configures Do.
type Policy struct {
	// Backoffs are the waits between attempts; len(Backoffs)+1 attempts are made.
	Backoffs []time.Duration
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	Logger  *zap.Logger
}

// DefaultPolicy returns the 300ms/700ms/1.2s schedule with a 15s timeout.
func DefaultPolicy() Policy {
	b := make([]time.Duration, len(DefaultBackoffs))
	copy(b, DefaultBackoffs)
	return Policy{Backoffs: b, Timeout: DefaultTimeout}
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	return len(p.Backoffs) + 1
}

// WithTimeout returns a copy of p with a different per-attempt timeout.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

// schedule is a backoff.BackOff over a fixed list of waits.
type schedule struct {
	waits []time.Duration
	next  int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.waits) {
		return backoff.Stop
	}
	d := s.waits[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }

// Do runs fn under the policy. Errors wrapped with Permanent stop retries
// immediately. Context cancellation is returned as is.
func Do[T any](ctx context.Context, p Policy, service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := 0
	operation := func() (T, error) {
		attempts++
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		return fn(attemptCtx)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&schedule{waits: p.Backoffs}),
		backoff.WithMaxTries(uint(p.Attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug("retrying upstream call",
				zap.String("service", service),
				zap.String("op", op),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err == nil {
		return res, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}

	// backoff unwraps *PermanentError before returning, so classify again.
	permanent := false
	var statusErr *StatusError
	if errors.As(err, &statusErr) && !statusErr.Retryable() {
		permanent = true
	} else if attempts < p.Attempts() {
		permanent = true
	}

	logger.Warn("upstream call failed",
		zap.String("service", service),
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Bool("permanent", permanent),
		zap.Error(err))

	return zero, &Error{Service: service, Op: op, Attempts: attempts, Permanent: permanent, Err: err}
}

// ReadStatus turns a non-2xx response into an error, marking non-retryable
// statuses as permanent. The caller still owns resp.Body.
func ReadStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	err := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if !err.Retryable() {
		return Permanent(err)
	}
	return err
}
