package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

// Sink receives file changes from a Watcher.
type Sink interface {
	Deliver(ctx context.Context, change models.FileChange) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, change models.FileChange) error

func (f SinkFunc) Deliver(ctx context.Context, change models.FileChange) error {
	return f(ctx, change)
}

// MultiSink delivers to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, change models.FileChange) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConsoleSink writes a heading line followed by the raw file content.
// Writes from concurrent watchers sharing one writer do not interleave.
type ConsoleSink struct {
	mu       sync.Mutex
	w        io.Writer
	headings map[string]string
}

// NewConsoleSink writes to w. headings maps target names to the line printed
// above their content; other targets get "<name> file updated:".
func NewConsoleSink(w io.Writer, headings map[string]string) *ConsoleSink {
	return &ConsoleSink{w: w, headings: headings}
}

func (s *ConsoleSink) Deliver(_ context.Context, change models.FileChange) error {
	heading, ok := s.headings[change.Target]
	if !ok {
		heading = change.Target + " file updated:"
	}
	content := change.Content
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s\n%s", heading, content); err != nil {
		return fmt.Errorf("console sink: %w", err)
	}
	return nil
}

// publisher is the subset of *amqp.Channel used by AMQPSink.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes each change as JSON to a topic exchange with routing
// key "<target>.changed".
type AMQPSink struct {
	exchange string
	pub      publisher
	conn     *amqp.Connection
	channel  *amqp.Channel
}

// NewAMQPSink dials url, opens a channel and declares exchange as a durable
// topic exchange.
func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("error declaring exchange %s: %w", exchange, err)
	}
	sink := newAMQPSink(ch, exchange)
	sink.conn, sink.channel = conn, ch
	return sink, nil
}

func newAMQPSink(pub publisher, exchange string) *AMQPSink {
	return &AMQPSink{exchange: exchange, pub: pub}
}

// RoutingKey returns the routing key for changes of target.
func RoutingKey(target string) string {
	return target + ".changed"
}

func (s *AMQPSink) Deliver(ctx context.Context, change models.FileChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	err = s.pub.PublishWithContext(ctx,
		s.exchange,
		RoutingKey(change.Target),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    change.ID,
			Timestamp:    change.DetectedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish change %s: %w", change.ID, err)
	}
	return nil
}

// Close closes the channel and connection opened by NewAMQPSink.
func (s *AMQPSink) Close() error {
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
