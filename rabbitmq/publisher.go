// Package rabbitmq publishes appraisal lifecycle events so downstream
// consumers (notifications, analytics) can react without polling the API.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"appraisal-service/models"
)

// AppraisalEvent is the message body published when an appraisal completes.
type AppraisalEvent struct {
	AppraisalID string      `json:"appraisal_id"`
	UserID      string      `json:"user_id,omitempty"`
	Tier        models.Tier `json:"tier"`
	Source      string      `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Publisher maintains an AMQP connection and publishes events to a topic
// exchange. Publishing is best-effort; a failed publish is logged and the
// connection is torn down so the next publish reconnects.
type Publisher struct {
	url        string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher connects to RabbitMQ and declares the exchange. The connection
// is verified eagerly so misconfiguration surfaces at startup.
func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange, routingKey: routingKey}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	log.Infof("connected to RabbitMQ, exchange %s", p.exchange)
	return nil
}

// PublishAppraisalCompleted emits one completion event.
func (p *Publisher) PublishAppraisalCompleted(ctx context.Context, event AppraisalEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		// Drop the broken connection; the next publish dials fresh.
		p.closeLocked()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
