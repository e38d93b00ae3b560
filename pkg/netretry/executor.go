package netretry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultTimeout  = 12 * time.Second
	DefaultBackoff  = 400 * time.Millisecond
)

// Options tunes a retry executor. Zero values fall back to the defaults.
type Options struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// Executor runs an HTTP call with bounded retries, a per-attempt timeout,
// and linear backoff. Transport-level failures are retried; everything
// else propagates immediately without consuming remaining attempts.
type Executor struct {
	attempts int
	timeout  time.Duration
	backoff  time.Duration
}

// New builds an executor. Attempts are clamped to at least 1.
func New(opts Options) *Executor {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	if attempts < 1 {
		attempts = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backoff := opts.Backoff
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	return &Executor{attempts: attempts, timeout: timeout, backoff: backoff}
}

// Call performs one attempt. It must honor the attempt context.
type Call func(ctx context.Context) (*http.Response, error)

// Do runs the call until it succeeds, fails fatally, or attempts run out.
// Each attempt gets a fresh context that expires after the configured
// timeout; between retryable failures the executor waits backoff × attempt
// number. The last error is returned when attempts are exhausted.
func (e *Executor) Do(ctx context.Context, call Call) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		resp, err := call(attemptCtx)
		if err == nil {
			// The attempt context must outlive the body read.
			if resp != nil && resp.Body != nil {
				resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			} else {
				cancel()
			}
			return resp, nil
		}
		cancel()
		lastErr = err

		// A parent cancellation is not an attempt failure to retry.
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !Retryable(err) {
			return nil, lastErr
		}
		if attempt == e.attempts {
			break
		}
		wait := e.backoff * time.Duration(attempt)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
		}
	}
	return nil, lastErr
}

// transportSignatures are the failure shapes worth a retry. These cover
// the strings Go's net stack produces for reset, refused, and timed-out
// connections plus the generic fetch wording some proxies emit.
var transportSignatures = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"fetch failed",
	"network timeout",
	"i/o timeout",
	"no such host",
}

// Retryable classifies an attempt error. A per-attempt deadline expiry is
// retryable by definition here, so a timed-out attempt never depends on
// how the transport happens to word its cancellation error.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transportSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
