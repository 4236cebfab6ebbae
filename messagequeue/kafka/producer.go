// Package kafka 基于 kafka-go 发布归因报告、消费成交消息，消息头携带 W3C 追踪上下文。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/tracing"
)

const defaultMaxAttempts = 5

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer 实现 messagequeue.EventPublisher。写入失败的消息在启用死信时转投死信主题。
type Producer struct {
	writer   messageWriter
	dlq      messageWriter
	dlqTopic string
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

func NewProducer(cfg config.KafkaConfig, logger *logging.Logger, m *metrics.Metrics) *Producer {
	if logger == nil {
		logger = logging.Default()
	}
	transport := &kafkago.Transport{DialTimeout: cfg.DialTimeout}

	acks := kafkago.RequireAll
	if cfg.RequiredAcks != 0 {
		acks = kafkago.RequiredAcks(cfg.RequiredAcks)
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	primary := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  attempts,
		RequiredAcks: acks,
		Async:        cfg.Async,
	}

	var dlq messageWriter
	dlqTopic := ""
	if cfg.DLQEnabled {
		dlqTopic = cfg.DLQTopic
		if dlqTopic == "" {
			dlqTopic = cfg.Topic + ".dlq"
		}
		dlq = &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Transport:    transport,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
		}
	}
	return newProducer(primary, dlq, dlqTopic, logger, m)
}

func newProducer(w, dlq messageWriter, dlqTopic string, logger *logging.Logger, m *metrics.Metrics) *Producer {
	return &Producer{writer: w, dlq: dlq, dlqTopic: dlqTopic, logger: logger, metrics: m}
}

// Publish 以 JSON 编码 event，key 决定分区。
func (p *Producer) Publish(ctx context.Context, topic string, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	return p.PublishRaw(ctx, topic, []byte(key), value)
}

// PublishRaw 发布已编码的消息。
func (p *Producer) PublishRaw(ctx context.Context, topic string, key, value []byte) error {
	ctx, span := tracing.StartKindSpan(ctx, "Kafka.Publish", trace.SpanKindProducer,
		attribute.String("messaging.destination", topic))
	defer span.End()

	msg := kafkago.Message{Topic: topic, Key: key, Value: value, Time: time.Now()}
	tracing.Inject(ctx, (*headerCarrier)(&msg.Headers))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.Published(topic, "error")
		tracing.SetError(ctx, err)
		p.logger.ErrorContext(ctx, "kafka publish failed", "topic", topic, "error", err)
		p.deadLetter(ctx, msg)
		return err
	}
	p.metrics.Published(topic, "success")
	return nil
}

func (p *Producer) deadLetter(ctx context.Context, msg kafkago.Message) {
	if p.dlq == nil {
		return
	}
	from := msg.Topic
	msg.Topic = p.dlqTopic
	if err := p.dlq.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "dead letter write failed", "from", from, "topic", p.dlqTopic, "error", err)
		return
	}
	p.logger.WarnContext(ctx, "message moved to dead letter topic", "from", from, "topic", p.dlqTopic)
}

func (p *Producer) Close() error {
	var errs []error
	if p.dlq != nil {
		errs = append(errs, p.dlq.Close())
	}
	errs = append(errs, p.writer.Close())
	return errors.Join(errs...)
}
