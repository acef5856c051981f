package notify

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/dto"
)

// AMQPConfig holds RabbitMQ publisher settings.
type AMQPConfig struct {
	URL              string
	Exchange         string
	RoutingKeyPrefix string
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes notifications to a topic exchange with routing key
// "<prefix>.<action>".
type AMQPSink struct {
	cfg  AMQPConfig
	conn *amqp.Connection
	ch   amqpChannel
}

// DialAMQP connects and declares the exchange.
func DialAMQP(cfg AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info().Msgf("RabbitMQ initialized: exchange=%s, routing_key_prefix=%s", cfg.Exchange, cfg.RoutingKeyPrefix)

	return &AMQPSink{cfg: cfg, conn: conn, ch: ch}, nil
}

func (s *AMQPSink) Name() string { return "rabbitmq" }

// RoutingKey returns the key a notification is published under.
func (s *AMQPSink) RoutingKey(action string) string {
	if s.cfg.RoutingKeyPrefix == "" {
		return action
	}
	return s.cfg.RoutingKeyPrefix + "." + action
}

func (s *AMQPSink) Publish(ctx context.Context, n dto.Notification, body []byte) error {
	if s.ch == nil {
		return nil
	}
	// Level samples are too frequent to be worth persisting.
	if n.Name() == dto.ActionAudioData {
		return nil
	}

	return s.ch.PublishWithContext(ctx,
		s.cfg.Exchange,         // exchange
		s.RoutingKey(n.Name()), // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         n.Name(),
		},
	)
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
