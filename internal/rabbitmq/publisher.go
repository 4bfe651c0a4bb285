package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"calendar-sync/internal/observability"
	"calendar-sync/internal/telemetry"
)

const appID = "calendar-sync"

// redialInterval bounds how often a lost broker connection is retried.
const redialInterval = 5 * time.Second

// ErrDisconnected is returned while the broker connection is down.
var ErrDisconnected = errors.New("rabbitmq: not connected")

// Publisher publishes audit and session events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker and declares the topic exchange. When
// AMQP is disabled or unreachable at startup a noop publisher is returned.
func NewPublisher(amqpURL, exchange string, log *slog.Logger) Publisher {
	if amqpURL == "" {
		log.Info("rabbitmq disabled, using noop", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url", log: log}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange, log: log}
	if err := p.connectLocked(); err != nil {
		log.Warn("rabbitmq disabled, using noop", "reason", err)
		return noopPublisher{reason: err.Error(), log: log}
	}
	log.Info("rabbitmq connected", "exchange", exchange)
	return p
}

// amqpPublisher keeps one channel. A dropped connection is redialled lazily
// by the next Publish, at most once per redialInterval.
type amqpPublisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	lastDial time.Time
	closed   bool
}

func (p *amqpPublisher) connectLocked() error {
	p.lastDial = time.Now()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn, p.ch = conn, ch
	go p.watch(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

func (p *amqpPublisher) watch(conn *amqp.Connection, notify <-chan *amqp.Error) {
	err, ok := <-notify
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return
	}
	p.conn, p.ch = nil, nil
	if ok && err != nil {
		p.log.Warn("rabbitmq connection lost", "err", err)
	}
}

func (p *amqpPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrDisconnected
	}
	if p.ch != nil {
		return p.ch, nil
	}
	if time.Since(p.lastDial) < redialInterval {
		return nil, ErrDisconnected
	}
	if err := p.connectLocked(); err != nil {
		p.log.Warn("rabbitmq redial failed", "err", err)
		return nil, ErrDisconnected
	}
	p.log.Info("rabbitmq reconnected", "exchange", p.exchange)
	return p.ch, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ch, err := p.channel()
	if err == nil {
		err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Type:         eventType(event),
			AppId:        appID,
			Body:         body,
		})
	}
	if err != nil {
		observability.IncAMQPPublishError()
		p.log.Warn("rabbitmq publish failed", "routing_key", routingKey, "err", err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	conn := p.conn
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.conn, p.ch = nil, nil
	if conn != nil {
		return conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.log.Debug("rabbitmq noop publish", "routing_key", routingKey, "type", eventType(event))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// eventType names an event for the AMQP type property and logs.
func eventType(event any) string {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType
	case observability.EventEnvelope:
		return envelope.EventType + "." + envelope.EventName
	default:
		return ""
	}
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
