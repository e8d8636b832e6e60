package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSender publishes notifications as persistent JSON messages on a
// durable queue.
type AMQPSender struct {
	mu      sync.Mutex
	channel publisher
	closer  func() error
	queue   string
}

func NewAMQPSender(conn *amqp091.Connection, queue string) (*AMQPSender, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPSender{channel: channel, closer: channel.Close, queue: queue}, nil
}

func (s *AMQPSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	message := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    n.At,
		Type:         string(n.Kind),
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.PublishWithContext(ctx, "", s.queue, false, false, message); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (s *AMQPSender) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
