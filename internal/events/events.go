// Package events publishes loan domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Routing keys.
const (
	LoanIssued   = "loan.issued"
	LoanReturned = "loan.returned"
	LoanExtended = "loan.extended"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is the envelope written to the exchange.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher sends events. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// New dials url, or returns a Noop publisher when url is empty.
func New(url, exchange string, logger zerolog.Logger) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	return Dial(url, exchange, logger)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange, using the event type as routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func Dial(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	logger.Info().Str("exchange", exchange).Msg("publishing domain events")
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	ev := Event{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Type:         eventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.logger.Debug().Str("event", eventType).Str("event_id", ev.ID).Msg("event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, eventType string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC(), Data: data})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
