package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridedispatch/internal/logger"
)

const amqpReconnectInterval = 10 * time.Second

// AMQPPublisher publishes events to a RabbitMQ topic exchange. The routing
// key is the channel with ':' replaced by '.', e.g. "ride.<id>" or "user.<id>",
// so consumers can bind with patterns such as "user.*".
type AMQPPublisher struct {
	url      string
	exchange string
	log      logger.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	done         chan struct{}
	closeOnce    sync.Once
}

// NewAMQPPublisher dials the broker, declares the exchange and enables
// publisher confirms.
func NewAMQPPublisher(url, exchange string, log logger.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
		log:      log.Action("amqp_publisher"),
		done:     make(chan struct{}),
	}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return p, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, channel string, ev Event) error {
	p.mu.Lock()
	ch := p.ch
	down := p.linkDownLocked()
	p.mu.Unlock()

	if down {
		go p.reconnect()
		return errors.New("rabbitmq channel is closed")
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, p.exchange, routingKey(channel), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Type),
		Body:         body,
	})
}

// IsAlive reports whether the connection and channel are open.
func (p *AMQPPublisher) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.linkDownLocked()
}

// closable is satisfied by *amqp.Connection and *amqp.Channel.
type closable interface {
	IsClosed() bool
}

// linkDown reports whether publishing needs a reconnect. A channel closed by
// a broker exception leaves the connection open, so both are checked.
func linkDown(conn, ch closable) bool {
	return conn == nil || ch == nil || conn.IsClosed() || ch.IsClosed()
}

func (p *AMQPPublisher) linkDownLocked() bool {
	var conn, ch closable
	if p.conn != nil {
		conn = p.conn
	}
	if p.ch != nil {
		ch = p.ch
	}
	return linkDown(conn, ch)
}

// Close stops reconnect attempts and closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// connect opens a channel, reusing the current connection when only the
// channel was lost.
func (p *AMQPPublisher) connect() error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	dialed := false
	if conn == nil || conn.IsClosed() {
		var err error
		if conn, err = amqp.Dial(p.url); err != nil {
			return err
		}
		dialed = true
	}
	fail := func(err error) error {
		if dialed {
			conn.Close()
		}
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fail(err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fail(err)
	}
	if err := ch.Confirm(false); err != nil {
		return fail(err)
	}

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()
	return nil
}

func (p *AMQPPublisher) reconnect() {
	p.mu.Lock()
	if p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	t := time.NewTicker(amqpReconnectInterval)
	defer t.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			if err := p.connect(); err != nil {
				p.log.Warn("rabbitmq reconnect failed", "error", err.Error())
				continue
			}
			p.log.Info("rabbitmq reconnected")
			return
		}
	}
}

func routingKey(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}
