package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// WebhookError classifies webhook call failures as transient or permanent.
type WebhookError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *WebhookError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "webhook error")

	if e.Endpoint != "" {
		parts = append(parts, e.Endpoint)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *WebhookError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed delivery may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var webhookErr *WebhookError
	if errors.As(err, &webhookErr) {
		return webhookErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	return false
}
