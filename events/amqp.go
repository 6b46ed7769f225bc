package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeType = "topic"

// AMQPPublisher publica eventos numa exchange topic do RabbitMQ.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

var _ Publisher = (*AMQPPublisher)(nil)

// DialAMQP conecta ao broker, tentando até attempts vezes, e declara a exchange.
func DialAMQP(ctx context.Context, url, exchange string, attempts int, log *zap.Logger) (*AMQPPublisher, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("falha ao conectar ao RabbitMQ", zap.Int("attempt", i+1), zap.Error(err))
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("não foi possível conectar ao RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("não foi possível abrir o canal: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("não foi possível declarar a exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish envia o evento com routing key purchase.<assetId>.
func (p *AMQPPublisher) Publish(ctx context.Context, ev PurchaseEvent) error {
	body, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("falha ao serializar evento: %w", err)
	}

	return p.ch.PublishWithContext(ctx,
		p.exchange,     // exchange
		routingKey(ev), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Type:         ev.Type,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		},
	)
}

// Close fecha canal e conexão.
func (p *AMQPPublisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}

func routingKey(ev PurchaseEvent) string {
	return fmt.Sprintf("purchase.%d", ev.Transaction.AssetID)
}
