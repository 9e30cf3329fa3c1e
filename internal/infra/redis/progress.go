package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProgressChannel       = "slab:batches:progress"
	defaultPublishTimeout = 2 * time.Second
)

// ProgressPublisher fans batch run snapshots out over Redis pub/sub so that every
// API instance can stream progress to its clients.
type ProgressPublisher struct {
	client  *goredis.Client
	channel string
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

type progressOperation struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Errors    []string   `json:"errors"`
}

type progressEvent struct {
	PublishedAt time.Time           `json:"publishedAt"`
	Operations  []progressOperation `json:"operations"`
}

func NewProgressPublisher(client *goredis.Client, logger *zap.Logger) (*ProgressPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProgressPublisher{
		client:  client,
		channel: ProgressChannel,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}, nil
}

func (p *ProgressPublisher) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Publish has the orchestrator subscriber signature. Failures are logged and
// counted; they never propagate to the run loop.
func (p *ProgressPublisher) Publish(ops []domain.BatchOperation) {
	if err := p.publish(context.Background(), ops); err != nil {
		p.metrics.IncProgressPublishFailure()
		p.logger.Warn("failed to publish batch progress",
			zap.String("channel", p.channel),
			zap.Error(err),
		)
	}
}

func (p *ProgressPublisher) publish(ctx context.Context, ops []domain.BatchOperation) error {
	event := progressEvent{
		PublishedAt: time.Now().UTC(),
		Operations:  make([]progressOperation, 0, len(ops)),
	}
	for _, op := range ops {
		errs := op.Errors
		if errs == nil {
			errs = []string{}
		}
		event.Operations = append(event.Operations, progressOperation{
			ID:        op.ID,
			Kind:      op.Kind.String(),
			Title:     op.Title,
			Total:     op.Total,
			Completed: op.Completed,
			Failed:    op.Failed,
			Status:    op.Status.String(),
			StartTime: op.StartTime,
			EndTime:   op.EndTime,
			Errors:    errs,
		})
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	return nil
}
