package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/tracing"
)

// Handler 处理一条消息。返回错误时该消息不提交位点。
type Handler func(ctx context.Context, msg kafkago.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer 以消费组方式读取单个主题，逐条处理并同步提交。
type Consumer struct {
	reader  messageReader
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewConsumer(cfg config.KafkaConfig, topic string, logger *logging.Logger, m *metrics.Metrics) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		Dialer:   &kafkago.Dialer{Timeout: cfg.DialTimeout},
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return &Consumer{reader: r, logger: logger, metrics: m}
}

// Consume 阻塞到 ctx 结束或读取端关闭(io.EOF)。单条消息处理失败只记录，不中断消费。
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF):
			return err
		case err != nil:
			c.logger.ErrorContext(ctx, "kafka fetch failed", "error", err)
			continue
		}
		c.handle(ctx, msg, handler)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message, handler Handler) {
	mctx, span := tracing.StartKindSpan(tracing.Extract(ctx, (*headerCarrier)(&msg.Headers)), "Kafka.Consume",
		trace.SpanKindConsumer, attribute.String("messaging.source", msg.Topic))
	defer span.End()

	if err := handler(mctx, msg); err != nil {
		tracing.SetError(mctx, err)
		c.metrics.Consumed(msg.Topic, "failed", msg.Time)
		c.logger.ErrorContext(mctx, "message rejected", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(mctx, "kafka commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
	c.metrics.Consumed(msg.Topic, "success", msg.Time)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
