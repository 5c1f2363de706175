package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event kinds carried by MeasureEvent
const (
	EventMeasureRecorded  = "measure.recorded"
	EventMeasureConfirmed = "measure.confirmed"
)

// MeasureEvent is published after a measure is recorded or confirmed
type MeasureEvent struct {
	Event        string `json:"event"`
	MeasureUUID  string `json:"measure_uuid"`
	CustomerCode string `json:"customer_code"`
	MeasureType  string `json:"measure_type"`
	Value        int    `json:"value"`
	MeasureDate  string `json:"measure_date"`
}

// Publisher publishes measure events. The AMQP implementation is used when
// RabbitMQ is configured; NopPublisher otherwise.
type Publisher interface {
	PublishMeasureEvent(ctx context.Context, event MeasureEvent, routingKey string) error
	Close() error
}

// AMQPPublisher publishes measure events to a RabbitMQ topic exchange
type AMQPPublisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishMeasureEvent publishes a measure event
func (p *AMQPPublisher) PublishMeasureEvent(ctx context.Context, event MeasureEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published measure event",
		zap.String("routing_key", routingKey),
		zap.String("event", event.Event),
		zap.String("measure_uuid", event.MeasureUUID),
	)

	return nil
}

// Close closes the publisher channel
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NopPublisher discards all events
type NopPublisher struct{}

// NewNopPublisher creates a publisher that discards all events
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// PublishMeasureEvent does nothing
func (p *NopPublisher) PublishMeasureEvent(ctx context.Context, event MeasureEvent, routingKey string) error {
	return nil
}

// Close does nothing
func (p *NopPublisher) Close() error {
	return nil
}
