package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaBatchTimeout = 10 * time.Millisecond

// KafkaPublisher publica eventos num tópico Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher cria o producer. A conexão com os brokers é aberta na primeira escrita.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// Mesma chave, mesma partição: eventos de um ativo chegam em ordem.
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		// O padrão de 1s seguraria cada evento à espera de um lote.
		BatchTimeout: kafkaBatchTimeout,
	}
	return &KafkaPublisher{writer: writer}
}

// Publish envia o evento com o ID do ativo como chave.
func (p *KafkaPublisher) Publish(ctx context.Context, ev PurchaseEvent) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("falha ao publicar no kafka: %w", err)
	}
	return nil
}

// Close descarrega mensagens pendentes e fecha o producer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessage(ev PurchaseEvent) (kafka.Message, error) {
	body, err := ev.Encode()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("falha ao serializar evento: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.Transaction.AssetID, 10)),
		Value: body,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	}, nil
}
