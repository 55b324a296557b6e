package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

// Processor persists notification events published by the API's queue sink.
type Processor struct {
	store notifications.Sink
}

// NewProcessor creates a worker processor writing through store.
func NewProcessor(store notifications.Sink) *Processor {
	return &Processor{store: store}
}

// Handle receives an SQS batch event and processes each message. Writes are
// idempotent by notification id, so a redelivered batch is harmless.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	log.Printf("[worker] received %d SQS messages", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("[worker] message=%s: %v", rec.MessageId, err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	n, err := notifications.Decode([]byte(rec.Body))
	if err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if err := p.store.Notify(ctx, n); err != nil {
		return fmt.Errorf("persist notification %s: %w", n.ID, err)
	}
	log.Printf("[worker] stored notification=%s type=%s audience=%s", n.ID, n.Type, n.Audience)
	return nil
}
