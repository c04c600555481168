package kafkasink

import (
	"context"
	"time"

	"realtime-chart-engine/internal/config"
	"realtime-chart-engine/internal/logger"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher republishes hub payloads to a Kafka topic, keyed by the tracked symbol.
// It registers with the broadcast hub like any other subscriber.
type Publisher struct {
	writer messageWriter
	symbol func() string
	logger logger.Interface
}

// NewPublisher creates an async Kafka writer for cfg. symbol supplies the message key.
func NewPublisher(cfg config.KafkaConfig, symbol func() string, log logger.Interface) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	})
	return newPublisher(w, symbol, log)
}

func newPublisher(w messageWriter, symbol func() string, log logger.Interface) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher{writer: w, symbol: symbol, logger: log}
}

// Send writes one message. Write failures are logged and the update dropped; the sink
// stays registered so a broker outage does not detach it.
func (p *Publisher) Send(ctx context.Context, payload []byte) error {
	msg := kafka.Message{
		Value:   payload,
		Headers: []kafka.Header{{Key: "type", Value: []byte("bar_update")}},
		Time:    time.Now(),
	}
	if p.symbol != nil {
		msg.Key = []byte(p.symbol())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(err,
			logger.NewField("sink", "kafka"),
			logger.NewField("key", string(msg.Key)),
		)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
