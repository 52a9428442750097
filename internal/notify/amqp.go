package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPMailer publishes emails as JSON onto a durable RabbitMQ queue consumed by the mail relay.
type AMQPMailer struct {
	mu      sync.Mutex
	channel *amqp091.Channel
	queue   string
}

func DialAMQP(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

func NewAMQPMailer(conn *amqp091.Connection, queue string) (*AMQPMailer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPMailer{channel: ch, queue: queue}, nil
}

func (m *AMQPMailer) Send(ctx context.Context, e Email) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.channel.PublishWithContext(ctx, "", m.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

func (m *AMQPMailer) Close() error {
	return m.channel.Close()
}
