// Package notifications records and delivers customer and staff notifications.
package notifications

import (
	"context"
	"errors"
	"log"
)

// Sink receives notifications. Orchestrators treat delivery as fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers n and only logs failures.
func Send(ctx context.Context, sink Sink, n Notification) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, n); err != nil {
		log.Printf("[notifications] deliver %s id=%s: %v", n.Type, n.ID, err)
	}
}
