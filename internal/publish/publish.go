// Package publish forwards committed workflow events to external sinks.
//
// Publishing happens after the store commit and is best-effort: a sink
// failure is reported to the caller but never rolls back the history.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/oilflow/internal/workflow"
)

// Publisher receives events that have been durably appended.
type Publisher interface {
	Publish(ctx context.Context, events ...workflow.Event) error
	Close() error
}

// Config selects the sinks built by New. Empty fields disable a sink.
type Config struct {
	// KafkaBrokers is a comma-separated host:port list.
	KafkaBrokers string
	KafkaTopic   string
	// FilePath receives one JSON event per line.
	FilePath string
}

// New builds the publisher described by cfg. With no sinks configured it
// returns Nop.
func New(cfg Config) (Publisher, error) {
	var sinks []Publisher
	if cfg.FilePath != "" {
		f, err := NewFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if strings.TrimSpace(cfg.KafkaBrokers) != "" {
		if cfg.KafkaTopic == "" {
			return nil, errors.New("kafka topic is required when brokers are set")
		}
		sinks = append(sinks, NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	switch len(sinks) {
	case 0:
		return Nop{}, nil
	case 1:
		return sinks[0], nil
	}
	return NewMulti(sinks...), nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...workflow.Event) error { return nil }
func (Nop) Close() error                                     { return nil }

// Multi fans events out to every sink. All sinks are attempted; their
// errors are joined.
type Multi struct {
	sinks []Publisher
}

// NewMulti creates a fan-out publisher.
func NewMulti(sinks ...Publisher) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Publish(ctx context.Context, events ...workflow.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// File appends events as newline-delimited JSON.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates the parent directory of path and returns a File sink.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &File{path: path}, nil
}

func (w *File) Publish(_ context.Context, events ...workflow.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	return nil
}

func (w *File) Close() error { return nil }

// messageWriter abstracts kafka.Writer for tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a topic, keyed by order id so that one
// order's events stay on one partition in log order.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a Kafka sink. bootstrap is a comma-separated host:port list.
func NewKafka(bootstrap, topic string) *Kafka {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		if a = strings.TrimSpace(a); a != "" {
			brokers = append(brokers, a)
		}
	}
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

// newKafkaWith injects a fake writer.
func newKafkaWith(w messageWriter) *Kafka {
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, events ...workflow.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for i := range events {
		b, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(events[i].OrderKey()),
			Value: b,
			Headers: []kafka.Header{
				{Key: "stage", Value: []byte(events[i].Stage)},
				{Key: "status", Value: []byte(events[i].Status)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
