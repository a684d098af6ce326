package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/config"
)

const writeTimeout = 10 * time.Second

// messageWriter is the subset of *kafka.Writer the publisher uses.
// Abstracted so tests can capture messages without a broker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka buffers history records and writes them to a Kafka topic.
// Publish never blocks; Run must be called in a goroutine to drain the buffer.
type Kafka struct {
	topic string
	buf   chan types.HistoryRecord
	w     messageWriter
	now   func() time.Time // injectable for deterministic tests
}

// NewKafka creates a publisher for cfg. cfg must be enabled.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultPublishBufferSize
	}
	return &Kafka{
		topic: cfg.Topic,
		buf:   make(chan types.HistoryRecord, size),
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		now: time.Now,
	}
}

// Publish enqueues rec. If the buffer is full the oldest record is evicted.
func (k *Kafka) Publish(rec types.HistoryRecord) {
	select {
	case k.buf <- rec:
	default:
		select {
		case <-k.buf:
			slog.Warn("publish: buffer full, evicted oldest record",
				"checkpoint", rec.CheckpointID, "buffer_cap", cap(k.buf))
		default:
		}
		select {
		case k.buf <- rec:
		default:
		}
	}
}

// Run drains the buffer until ctx is cancelled, then closes the writer.
// Failed writes are retried with backoff; the record stays at the head of the
// queue until it is delivered or ctx ends.
func (k *Kafka) Run(ctx context.Context) {
	defer func() {
		if err := k.w.Close(); err != nil {
			slog.Warn("publish: close writer", "err", err)
		}
	}()
	slog.Info("publish: kafka publisher started", "topic", k.topic)

	bo := newBackoff()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-k.buf:
			for {
				err := k.write(ctx, rec)
				if err == nil {
					bo.reset()
					break
				}
				if ctx.Err() != nil {
					return
				}
				wait := bo.next()
				slog.Error("publish: write failed, will retry",
					"topic", k.topic, "checkpoint", rec.CheckpointID,
					"err", err, "retry_in", wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
	}
}

// message is the JSON value of a published record.
type message struct {
	EventID     string `json:"event_id"`
	PublishedAt string `json:"published_at"` // RFC3339
	types.HistoryRecord
}

func (k *Kafka) write(ctx context.Context, rec types.HistoryRecord) error {
	id := uuid.New().String()
	value, err := json.Marshal(message{
		EventID:       id,
		PublishedAt:   k.now().UTC().Format(time.RFC3339),
		HistoryRecord: rec,
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = k.w.WriteMessages(wctx, kafka.Message{
		Key:   []byte(rec.CheckpointID),
		Value: value,
		Time:  rec.Minute,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-id", Value: []byte(id)},
		},
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", k.topic, err)
	}
	slog.Debug("publish: record delivered", "checkpoint", rec.CheckpointID, "minute", rec.Minute)
	return nil
}
