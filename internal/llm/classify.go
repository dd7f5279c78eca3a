package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spherical/verbatim/internal/domain"
)

// classifyStatus maps an HTTP status of a failed call to a domain error.
func classifyStatus(status int, detail string) error {
	msg := fmt.Sprintf("HTTP %d", status)
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + truncate(detail, 300)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return domain.RateLimitError(msg, nil)
	case status == http.StatusRequestTimeout:
		return domain.TransportError(msg, nil)
	case status >= 500:
		return domain.TransportError(msg, nil)
	case status >= 400:
		return domain.RequestError(msg, nil)
	default:
		return domain.TransportError("unexpected "+msg, nil)
	}
}

// classifyCallError turns an error returned by an SDK or HTTP call into a
// domain error. parent is the caller's context; a per-request timeout is
// transient, cancellation of parent is not.
func classifyCallError(parent context.Context, err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.TransportError(fmt.Sprintf("request timed out after %s", timeout), nil)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(*apiErrPtr)
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.TransportError("call failed", err)
}

func classifyAPIError(e genai.APIError) error {
	if e.Status == "RESOURCE_EXHAUSTED" {
		return domain.RateLimitError(fmt.Sprintf("%s: %s", e.Status, truncate(e.Message, 300)), nil)
	}
	detail := e.Message
	if e.Status != "" {
		detail = e.Status + ": " + detail
	}
	return classifyStatus(e.Code, detail)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
