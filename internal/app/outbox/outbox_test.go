package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/app/outbox"
	"stayengine/internal/domain/shared/events"
)

type sampleEvent struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

func (e sampleEvent) EventName() string     { return "sample.happened" }
func (e sampleEvent) AggregateID() string   { return e.ID }
func (e sampleEvent) OccurredAt() time.Time { return e.At }

type sliceBox struct{ records []outbox.EventRecord }

func (b *sliceBox) Add(_ context.Context, r outbox.EventRecord) error {
	b.records = append(b.records, r)
	return nil
}
func (b *sliceBox) Flush(context.Context) error { return nil }

type recorder struct{ events.EventRecorder }

func TestDrainEncodesAndClears(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var rec recorder
	rec.Record(sampleEvent{ID: "a-1", At: at})
	rec.Record(sampleEvent{ID: "a-1", At: at.Add(time.Minute)})

	box := &sliceBox{}
	enc := outbox.JSONEventEncoder{Source: "stayengine"}
	require.NoError(t, outbox.Drain(context.Background(), box, enc, &rec))

	require.Len(t, box.records, 2)
	assert.Empty(t, rec.PendingEvents())
	first := box.records[0]
	assert.Equal(t, "sample.happened", first.Name)
	assert.Equal(t, "a-1", first.Aggregate)
	assert.Equal(t, "stayengine", first.Headers["source"])
	assert.NotEqual(t, first.ID, box.records[1].ID)

	var decoded sampleEvent
	require.NoError(t, json.Unmarshal(first.Payload, &decoded))
	assert.Equal(t, at, decoded.At)
}

func TestRecordDomainEventsNilBox(t *testing.T) {
	assert.NoError(t, outbox.RecordDomainEvents(context.Background(), nil, nil, []events.DomainEvent{sampleEvent{}}))
}
