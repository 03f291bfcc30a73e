package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"quiz-battle-service/internal/domain"
)

// Routing keys on the events exchange.
const (
	KeyAnswerRecorded     = "match.answer_recorded"
	KeySuspiciousActivity = "anticheat.suspicious_activity"
	KeyMatchCompleted     = "match.completed"
)

// Envelope is the message body for every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is an app.EventSink that forwards collaborator events to RabbitMQ
// for the economy and audit consumers.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	now      func() time.Time

	mu sync.Mutex
	ch channel
}

// Dial connects and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // delete when unused
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := newPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}
}

func (p *Publisher) AnswerRecorded(ctx context.Context, ev domain.AnswerEvent) error {
	return p.publish(ctx, KeyAnswerRecorded, ev)
}

func (p *Publisher) SuspiciousActivityFlagged(ctx context.Context, act domain.SuspiciousActivity) error {
	return p.publish(ctx, KeySuspiciousActivity, act)
}

func (p *Publisher) MatchCompleted(ctx context.Context, result domain.MatchResult) error {
	return p.publish(ctx, KeyMatchCompleted, result)
}

func (p *Publisher) publish(ctx context.Context, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       key,
		OccurredAt: p.now(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		key,
		false,
		false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Type:         key,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
