package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

const (
	// TransitionQueue carries slab status change events.
	TransitionQueue = "slab.transitions"
	// BatchQueue carries batch commands for the batch worker.
	BatchQueue = "slab.batches"
)

var workQueues = []string{
	TransitionQueue,
	BatchQueue,
}

// Publisher publishes slab events and batch commands.
type Publisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
	PublishBatch(ctx context.Context, msg BatchMessage) error
	Close() error
}

// MessageHandler handles a consumed batch command.
type MessageHandler func(ctx context.Context, msg BatchMessage) error

// Consumer consumes batch commands from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.slab.batches.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

// DLQNames returns the dead-letter queue of every work queue.
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, q := range workQueues {
		queues = append(queues, DLQName(q))
	}
	return queues
}
