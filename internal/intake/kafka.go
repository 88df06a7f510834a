package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	logx "sitedigest/pkg/logx"
)

// KafkaConfig selects the topic events are consumed from. Each message
// value is one JSON Payload.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds a Kafka topic into the queue. Offsets are committed only
// after the event is stored; undecodable or rejected messages are logged
// and committed so they do not block the partition.
type Consumer struct {
	r     messageReader
	acc   *Acceptor
	log   logx.Logger
	retry time.Duration
}

func NewConsumer(cfg KafkaConfig, acc *Acceptor, log logx.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka intake requires brokers and topic")
	}
	group := strings.TrimSpace(cfg.GroupID)
	if group == "" {
		group = "sitedigest"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newConsumer(r, acc, log), nil
}

func newConsumer(r messageReader, acc *Acceptor, log logx.Logger) *Consumer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Consumer{r: r, acc: acc, log: log.With(logx.String("comp", "intake.kafka")), retry: 2 * time.Second}
}

// Run consumes until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.r.Close()
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// handle stores one message, retrying store failures until ctx ends.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var p Payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		c.log.Warn("kafka message dropped: bad payload", logx.Int("partition", msg.Partition), logx.Int64("offset", msg.Offset), logx.Err(err))
		return nil
	}
	for {
		_, err := c.acc.Accept(ctx, p)
		switch {
		case err == nil:
			return nil
		case Rejected(err):
			c.log.Warn("kafka message dropped: rejected", logx.Int64("offset", msg.Offset), logx.Err(err))
			return nil
		}
		c.log.Error("kafka intake store failed; retrying", logx.Int64("offset", msg.Offset), logx.Err(err))
		t := time.NewTimer(c.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
