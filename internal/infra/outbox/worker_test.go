package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "stayengine/internal/app/outbox"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []*Message
	sent    []string
	failed  map[string]int
}

func (q *fakeQueue) Claim(context.Context, string) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, _ time.Time, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed == nil {
		q.failed = map[string]int{}
	}
	q.failed[id]++
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	err  error
	sent []published
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic, key, payload, headers})
	return nil
}

func TestWorkerDrainPublishesCloudEvents(t *testing.T) {
	occurred := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	q := &fakeQueue{pending: []*Message{
		{ID: "e1", Name: "booking.confirmed", Payload: []byte(`{"booking_id":"b-1"}`), Aggregate: "b-1", OccurredAt: occurred, Headers: map[string]string{"traceparent": "00-abc"}},
		{ID: "e2", Name: "booking.cancelled", Payload: []byte(`{"booking_id":"b-2"}`), Aggregate: "b-2", OccurredAt: occurred},
	}}
	p := &fakeProducer{}
	w := &Worker{Store: q, Producer: p, TopicPrefix: "stage.", Source: "app://test"}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, q.sent)
	require.Len(t, p.sent, 2)
	assert.Equal(t, "stage.booking.events.v1", p.sent[0].topic)
	assert.Equal(t, "b-1", p.sent[0].key)
	assert.Equal(t, "application/cloudevents+json", p.sent[0].headers["content-type"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(p.sent[0].payload, &evt))
	assert.Equal(t, "1.0", evt["specversion"])
	assert.Equal(t, "booking.confirmed.v1", evt["type"])
	assert.Equal(t, "app://test", evt["source"])
	assert.Equal(t, "00-abc", evt["traceparent"])
	assert.Equal(t, "b-1", evt["data"].(map[string]any)["booking_id"])
}

func TestWorkerMarksFailedPublish(t *testing.T) {
	q := &fakeQueue{pending: []*Message{{ID: "e1", Name: "booking.confirmed", Payload: []byte(`{}`)}}}
	w := &Worker{Store: q, Producer: &fakeProducer{err: errors.New("broker down")}, Backoff: []time.Duration{time.Second}}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, q.failed["e1"])
	assert.Empty(t, q.sent)
}

func TestWorkerRequiresDependencies(t *testing.T) {
	assert.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestSinkPublishesEnvelope(t *testing.T) {
	p := &fakeProducer{}
	sink := Sink{Producer: p}
	err := sink.Publish(context.Background(), appoutbox.EventRecord{ID: "e1", Name: "booking.requested", Payload: []byte(`{"a":1}`), Aggregate: "b-9"})
	require.NoError(t, err)
	require.Len(t, p.sent, 1)
	assert.Equal(t, "booking.events.v1", p.sent[0].topic)
	assert.Contains(t, string(p.sent[0].payload), `"source":"app://stayengine"`)
}
