// Package notify forwards refresh events to a RabbitMQ exchange so other
// systems can react when new well data is published.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pocos-map/pkg/refresh"
)

// Config describes the broker side.
type Config struct {
	URL      string
	Exchange string // fanout exchange, declared when missing
	// RoutingKeyPrefix is joined with the event kind, e.g. "pocos.refreshed".
	RoutingKeyPrefix string
	Logf             func(string, ...any)
}

// channel is the subset of *amqp.Channel used here.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements refresh.Notifier.
type Publisher struct {
	cfg  Config
	conn *amqp.Connection
	ch   channel
}

// Dial connects and declares the exchange.
func Dial(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: broker URL is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "pocos.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %q: %w", cfg.Exchange, err)
	}
	p := newPublisher(cfg, ch)
	p.conn = conn
	return p, nil
}

func newPublisher(cfg Config, ch channel) *Publisher {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Publisher{cfg: cfg, ch: ch}
}

// RoutingKey names the key an event is published under.
func (p *Publisher) RoutingKey(kind string) string {
	if p.cfg.RoutingKeyPrefix == "" {
		return kind
	}
	return p.cfg.RoutingKeyPrefix + "." + kind
}

// Notify publishes ev as JSON.
func (p *Publisher) Notify(ctx context.Context, ev refresh.Event) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errors.New("notify: connection closed")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.RunID,
		Type:         ev.Kind,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.RoutingKey(ev.Kind), false, false, msg); err != nil {
		return fmt.Errorf("notify: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.cfg.Logf("notify: publisher closed")
	return errors.Join(errs...)
}
