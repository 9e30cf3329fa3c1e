package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	baseRetryDelay        = 200 * time.Millisecond
)

// WebhookNotifier posts a summary of every finished batch run to an HTTP endpoint.
type WebhookNotifier struct {
	client      *resty.Client
	endpoint    string
	maxAttempts int
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewWebhookNotifier(endpoint string, logger *zap.Logger) (*WebhookNotifier, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookNotifierWithClient(endpoint, client, logger)
}

func NewWebhookNotifierWithClient(endpoint string, client *resty.Client, logger *zap.Logger) (*WebhookNotifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:      client,
		endpoint:    trimmedEndpoint,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
		sleep:       sleepContext,
	}, nil
}

// NotifyRunFinished delivers the run summary, retrying transient failures with backoff.
func (n *WebhookNotifier) NotifyRunFinished(ctx context.Context, op domain.BatchOperation) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("webhook notifier is not initialized")
	}
	if !op.Status.IsTerminal() {
		return fmt.Errorf("%w: operation %s is not finished", domain.ErrValidation, op.ID)
	}

	summary := NewRunSummary(op)
	delay := baseRetryDelay

	var err error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		err = n.post(ctx, summary)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == n.maxAttempts {
			break
		}

		n.logger.Warn("run webhook failed, retrying",
			zap.String("operationId", op.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if sleepErr := n.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}

	return err
}

func (n *WebhookNotifier) post(ctx context.Context, summary RunSummary) error {
	response, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event-Type", summary.Event).
		SetBody(summary).
		Post(n.endpoint)
	if err != nil {
		return &WebhookError{
			Endpoint:  n.endpoint,
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &WebhookError{
			Endpoint:  n.endpoint,
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &WebhookError{
		Endpoint:   n.endpoint,
		StatusCode: statusCode,
		Message:    webhookErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
