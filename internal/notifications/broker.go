package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// BrokerSink publishes notifications to a RabbitMQ topic exchange so other
// services (email, SMS) can subscribe by routing key.
type BrokerSink struct {
	pool     *channelPool
	exchange string
	timeout  time.Duration
}

// DialBroker connects to url and declares exchange as a durable topic exchange.
func DialBroker(url, exchange string, size int) (*BrokerSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	open := func() (brokerChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, err
		}
		return ch, nil
	}
	pool, err := newChannelPool(size, open, func() { conn.Close() })
	if err != nil {
		return nil, err
	}
	log.Printf("[notifications] broker sink ready exchange=%s channels=%d", exchange, size)
	return &BrokerSink{pool: pool, exchange: exchange, timeout: publishTimeout}, nil
}

// Notify gives up after the publish timeout, including the wait for a channel.
func (b *BrokerSink) Notify(ctx context.Context, n Notification) error {
	msg, err := publishing(n)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch, err := b.pool.get(ctx)
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	defer b.pool.put(ch)

	if err := ch.PublishWithContext(ctx, b.exchange, RoutingKey(n), false, false, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

func (b *BrokerSink) Close() {
	b.pool.close()
}

// RoutingKey is notifications.<audience>.<type>, lower-cased.
func RoutingKey(n Notification) string {
	return "notifications." + string(n.Audience) + "." + strings.ToLower(string(n.Type))
}

func publishing(n Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal notification: %w", err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    n.ID,
		Type:         string(n.Type),
		Timestamp:    n.CreatedAt,
		Body:         body,
	}, nil
}

// brokerChannel is the part of *amqp.Channel the sink uses.
type brokerChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// channelPool hands out pre-configured channels over one connection. A slot
// holding nil is reopened lazily by the next get, so the pool never shrinks.
type channelPool struct {
	slots    chan brokerChannel
	open     func() (brokerChannel, error)
	shutdown func()
	mu       sync.Mutex
	closed   bool
}

func newChannelPool(size int, open func() (brokerChannel, error), shutdown func()) (*channelPool, error) {
	if size < 1 {
		size = 1
	}
	p := &channelPool{
		slots:    make(chan brokerChannel, size),
		open:     open,
		shutdown: shutdown,
	}
	for i := 0; i < size; i++ {
		ch, err := open()
		if err != nil {
			p.close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		p.slots <- ch
	}
	return p, nil
}

// get waits for a free slot, reopening a channel the server closed. When the
// reopen fails the slot goes back empty and the error is returned.
func (p *channelPool) get(ctx context.Context) (brokerChannel, error) {
	select {
	case ch, ok := <-p.slots:
		if !ok {
			return nil, fmt.Errorf("channel pool closed")
		}
		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}
		nc, err := p.open()
		if err != nil {
			p.release(nil)
			return nil, fmt.Errorf("reopen broker channel: %w", err)
		}
		return nc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *channelPool) put(ch brokerChannel) {
	if ch != nil && ch.IsClosed() {
		ch = nil
	}
	p.release(ch)
}

func (p *channelPool) release(ch brokerChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if ch != nil {
			ch.Close()
		}
		return
	}
	select {
	case p.slots <- ch:
	default:
		if ch != nil {
			ch.Close()
		}
	}
}

func (p *channelPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.slots)
	for ch := range p.slots {
		if ch != nil {
			ch.Close()
		}
	}
	if p.shutdown != nil {
		p.shutdown()
	}
}
