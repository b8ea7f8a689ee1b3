package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/infrastructure/resilience"
)

// StatusError is a non-2xx answer from a model endpoint.
type StatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	msg := fmt.Sprintf("%s %s status: %d %s", e.Provider, e.Operation, e.StatusCode, http.StatusText(e.StatusCode))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// retryableStatus lists answers worth another attempt. 529 is Anthropic's "overloaded".
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	529:                            true,
}

// Temporary reports whether the provider may answer differently on retry.
func (e *StatusError) Temporary() bool {
	return e != nil && retryableStatus[e.StatusCode]
}

// Classify maps a provider error onto retry and breaker decisions. Client errors (4xx other
// than 408/429) neither retry nor count against the breaker: the request itself is wrong.
func Classify(err error) resilience.ErrorClassification {
	var (
		statusErr *StatusError
		netErr    net.Error
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		if !statusErr.Temporary() {
			return resilience.ErrorClassification{}
		}
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: statusErr.RetryAfter}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// asTemporary tags retryable failures with domain.ErrTemporary so callers can surface 503.
func asTemporary(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || !Classify(err).Retryable {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}

// RetryAfter reads a Retry-After header in delta-seconds or HTTP-date form.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
