// Package kafka carries "outbox has work" nudges between the API and the
// sync worker. Messages only name a target; the outbox stays the source of
// truth, so a lost or duplicated trigger costs at most one idle batch.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1B
	MaxBytes       int           // default 1MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 500ms
	WriteTimeout   time.Duration // default 2s
	MaxAttempts    int           // default 2
}

// Trigger is the message body published after an outbox row commits.
type Trigger struct {
	Target  model.Target `json:"target"`
	EventID string       `json:"event_id,omitempty"`
	At      time.Time    `json:"at"`
}

// Writer publishes triggers keyed by target.
type Writer struct {
	w *kafka.Writer
}

// NewWriter keeps retries short: a trigger is published on the request path
// and the worker's ticker covers any that are lost.
func NewWriter(c Config) *Writer {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 2 * time.Second
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	return &Writer{w: &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           wt,
		MaxAttempts:            attempts,
		WriteBackoffMax:        100 * time.Millisecond,
	}}
}

func (w *Writer) Notify(ctx context.Context, target model.Target, eventID string) error {
	b, err := json.Marshal(Trigger{Target: target, EventID: eventID, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return w.w.WriteMessages(ctx, kafka.Message{Key: []byte(target), Value: b, Time: time.Now()})
}

func (w *Writer) Close() error { return w.w.Close() }

// Reader is a thin wrapper around a consumer-group kafka-go Reader.
type Reader struct {
	r *kafka.Reader
}

func NewReader(c Config) *Reader {
	min := c.MinBytes
	if min <= 0 {
		min = 1
	}
	max := c.MaxBytes
	if max <= 0 {
		max = 1 << 20 // 1MB
	}
	ci := c.CommitInterval
	if ci <= 0 {
		ci = time.Second
	}
	mw := c.MaxWait
	if mw <= 0 {
		mw = 500 * time.Millisecond
	}

	return &Reader{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       min,
		MaxBytes:       max,
		CommitInterval: ci,
		MaxWait:        mw,
	})}
}

type Message = kafka.Message

func (r *Reader) Fetch(ctx context.Context) (Message, error) {
	return r.r.FetchMessage(ctx)
}

func (r *Reader) Commit(ctx context.Context, m Message) error {
	return r.r.CommitMessages(ctx, m)
}

func (r *Reader) Close() error { return r.r.Close() }

// DecodeTrigger parses a message body; unknown targets are rejected.
func DecodeTrigger(m Message) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(m.Value, &t); err != nil {
		return Trigger{}, fmt.Errorf("decode trigger: %w", err)
	}
	if !t.Target.Valid() {
		return Trigger{}, fmt.Errorf("decode trigger: unknown target %q", t.Target)
	}
	return t, nil
}
