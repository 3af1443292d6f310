package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RoutingKeyBookingConfirmed is the routing key of published confirmation events.
const RoutingKeyBookingConfirmed = "booking.confirmed"

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes confirmations as JSON events so that mail and chat workers
// downstream can pick them up.
type AMQPNotifier struct {
	channel  amqpPublisher
	exchange string
	logger   zerolog.Logger
}

// AMQPConnection owns the broker connection behind an AMQPNotifier.
type AMQPConnection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}
	return &AMQPConnection{conn: conn, channel: channel}, nil
}

func (c *AMQPConnection) Close() error {
	if c == nil || c.channel == nil {
		return nil
	}
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

func (c *AMQPConnection) Notifier(exchange string, logger zerolog.Logger) *AMQPNotifier {
	return NewAMQPNotifier(c.channel, exchange, logger)
}

func NewAMQPNotifier(channel amqpPublisher, exchange string, logger zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		channel:  channel,
		exchange: exchange,
		logger:   logger.With().Str("notifier", "amqp").Logger(),
	}
}

func (n *AMQPNotifier) NotifyBookingConfirmed(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("amqp: encode booking %s: %w", msg.BookingID, err)
	}

	err = n.channel.PublishWithContext(ctx, n.exchange, RoutingKeyBookingConfirmed, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.BookingID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish booking %s: %w", msg.BookingID, err)
	}
	n.logger.Debug().Str("booking_id", msg.BookingID).Str("exchange", n.exchange).Msg("event published")
	return nil
}
