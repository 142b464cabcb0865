package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider failures the generation layer retries on.
var (
	ErrTimeout         = errors.New("model call timed out")
	ErrRateLimited     = errors.New("model rate limited")
	ErrContentRejected = errors.New("model rejected content")
)

// StatusError is a non-2xx reply from an OpenAI-compatible endpoint.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.StatusCode == http.StatusBadRequest && mentionsContentFilter(e.Body):
		return ErrContentRejected
	}
	return nil
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func mentionsContentFilter(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "content_policy") ||
		strings.Contains(lower, "safety")
}

// classifyTransport marks deadline and network timeouts as ErrTimeout.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// IsRetryable reports whether err is one of the transient provider failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrContentRejected)
}
