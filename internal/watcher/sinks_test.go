package watcher

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	calls    int
	err      error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.calls++
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func sampleChange() models.FileChange {
	return models.FileChange{
		ID:         "01HXYZABCDEFGHJKMNPQRSTVWX",
		Target:     "inventory",
		Path:       "data/inventory.csv",
		ModTime:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Size:       18,
		DetectedAt: time.Date(2024, 5, 1, 10, 0, 3, 0, time.UTC),
		Content:    "item,stock\nRice,4\n",
	}
}

func TestConsoleSink(t *testing.T) {
	tests := []struct {
		name     string
		headings map[string]string
		change   models.FileChange
		want     string
	}{
		{
			name:     "configured heading",
			headings: map[string]string{"inventory": "Inventory file updated:"},
			change:   sampleChange(),
			want:     "Inventory file updated:\nitem,stock\nRice,4\n",
		},
		{
			name:   "default heading and trailing newline",
			change: models.FileChange{Target: "drivers", Content: "driver_id\nD01"},
			want:   "drivers file updated:\ndriver_id\nD01\n",
		},
		{
			name:     "empty file",
			headings: map[string]string{"drivers": "Driver safety file updated:"},
			change:   models.FileChange{Target: "drivers"},
			want:     "Driver safety file updated:\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := NewConsoleSink(&buf, tt.headings).Deliver(context.Background(), tt.change)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestConsoleSink_WriteError(t *testing.T) {
	err := NewConsoleSink(failingWriter{}, nil).Deliver(context.Background(), sampleChange())
	assert.ErrorContains(t, err, "disk full")
}

func TestAMQPSink_Deliver(t *testing.T) {
	pub := &fakePublisher{}
	sink := newAMQPSink(pub, "smartstore.snapshots")
	change := sampleChange()

	require.NoError(t, sink.Deliver(context.Background(), change))

	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "smartstore.snapshots", pub.exchange)
	assert.Equal(t, "inventory.changed", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, change.ID, pub.msg.MessageId)
	assert.True(t, pub.msg.Timestamp.Equal(change.DetectedAt))

	var decoded models.FileChange
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, change.Content, decoded.Content)
	assert.Equal(t, change.Target, decoded.Target)
	assert.True(t, decoded.ModTime.Equal(change.ModTime))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.msg.Body, &raw))
	assert.Contains(t, raw, "modTime")
	assert.Contains(t, raw, "detectedAt")
}

func TestAMQPSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel/connection is not open")}
	err := newAMQPSink(pub, "x").Deliver(context.Background(), sampleChange())
	require.Error(t, err)
	assert.ErrorIs(t, err, pub.err)
}

func TestAMQPSink_CloseWithoutConnection(t *testing.T) {
	assert.NoError(t, newAMQPSink(&fakePublisher{}, "x").Close())
}

func TestMultiSink(t *testing.T) {
	var order []string
	ok := SinkFunc(func(context.Context, models.FileChange) error {
		order = append(order, "ok")
		return nil
	})
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	failA := SinkFunc(func(context.Context, models.FileChange) error {
		order = append(order, "a")
		return errA
	})
	failB := SinkFunc(func(context.Context, models.FileChange) error {
		order = append(order, "b")
		return errB
	})

	err := MultiSink{failA, ok, failB}.Deliver(context.Background(), sampleChange())

	assert.Equal(t, []string{"a", "ok", "b"}, order, "every sink runs even after a failure")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	assert.NoError(t, MultiSink{ok}.Deliver(context.Background(), sampleChange()))
	assert.NoError(t, MultiSink(nil).Deliver(context.Background(), sampleChange()))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "drivers.changed", RoutingKey("drivers"))
}
