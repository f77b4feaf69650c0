package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	fail    bool
	closed  bool
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	fail := f.fail
	if !fail {
		f.records = append(f.records, r)
	}
	f.mu.Unlock()

	if fail {
		promise(r, context.DeadlineExceeded)
		return
	}
	promise(r, nil)
}

func (f *fakeProducer) Flush(context.Context) error { return nil }

func (f *fakeProducer) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeProducer) produced() []*kgo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kgo.Record(nil), f.records...)
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestKafkaPublisherProducesEnvelope(t *testing.T) {
	fake := &fakeProducer{}
	p := newKafkaPublisher(fake, discardLogger())

	event, err := NewEvent(TopicLeads, "lead-1", "lead.created", time.Now(), map[string]string{"name": "Ada"})
	require.NoError(t, err)

	p.Publish(context.Background(), event)
	p.Close()

	records := fake.produced()
	require.Len(t, records, 1)
	assert.Equal(t, TopicLeads, records[0].Topic)
	assert.Equal(t, "lead-1", string(records[0].Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	assert.Equal(t, "lead.created", decoded.Type)
	assert.JSONEq(t, `{"name":"Ada"}`, string(decoded.Payload))
	assert.True(t, fake.closed, "Close must close the client")
}

func TestKafkaPublisherOrderPreserved(t *testing.T) {
	fake := &fakeProducer{}
	p := newKafkaPublisher(fake, discardLogger())

	for i := 0; i < 10; i++ {
		event, err := NewEvent(TopicMessagingStatus, "m", "messaging.status", time.Now(), map[string]int{"seq": i})
		require.NoError(t, err)
		p.Publish(context.Background(), event)
	}
	p.Close()

	records := fake.produced()
	require.Len(t, records, 10)
	for i, r := range records {
		var decoded Event
		require.NoError(t, json.Unmarshal(r.Value, &decoded))
		var payload map[string]int
		require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
		assert.Equal(t, i, payload["seq"])
	}
}

func TestKafkaPublisherShedsWhenBufferFull(t *testing.T) {
	// A failing producer opens the circuit; subsequent publishes shed
	// without blocking.
	fake := &fakeProducer{fail: true}
	p := newKafkaPublisher(fake, discardLogger(), WithBufferSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			event, _ := NewEvent(TopicLeads, "k", "lead.created", time.Now(), nil)
			p.Publish(context.Background(), event)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a failing broker")
	}
	p.Close()
}

func TestRouterSkipsUnknownTopic(t *testing.T) {
	router := NewRouter(discardLogger())
	var handled int
	router.Register(TopicMessagingStatus, TopicHandlerFunc(func(context.Context, *Message) error {
		handled++
		return nil
	}))

	err := router.Handle(context.Background(), &Message{Topic: "unknown.topic"})
	require.NoError(t, err, "unknown topics must be skipped, not errored")
	assert.Zero(t, handled)

	require.NoError(t, router.Handle(context.Background(), &Message{Topic: TopicMessagingStatus}))
	assert.Equal(t, 1, handled)
}
