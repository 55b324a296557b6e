package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RaufCode/venella-pharmacy/internal/aws"
)

// QueueSink enqueues notifications on SQS; the worker persists them.
type QueueSink struct {
	publisher *aws.Publisher
}

func NewQueueSink(publisher *aws.Publisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

func (q *QueueSink) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{
		"notification_id": n.ID,
		"type":            string(n.Type),
		"audience":        string(n.Audience),
	}
	if err := q.publisher.Send(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("enqueue notification %s: %w", n.ID, err)
	}
	return nil
}

// Decode parses a queued notification body.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("invalid notification body: %w", err)
	}
	if n.ID == "" || n.Type == "" || n.Audience == "" {
		return n, fmt.Errorf("invalid notification body: id, type and audience are required")
	}
	return n, nil
}
