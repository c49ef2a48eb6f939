package memory

import (
	"context"
	"sync"

	appoutbox "stayengine/internal/app/outbox"
)

// Sink receives flushed records, for example a Kafka publisher.
type Sink interface {
	Publish(ctx context.Context, record appoutbox.EventRecord) error
}

const sentHistory = 1024

// Outbox buffers records until Flush hands them to the sink. Records whose
// publish fails stay buffered for the next flush.
type Outbox struct {
	mu      sync.Mutex
	sink    Sink
	records []appoutbox.EventRecord
	sent    []appoutbox.EventRecord
}

func NewOutbox(sink Sink) *Outbox {
	return &Outbox{sink: sink}
}

func (o *Outbox) Add(_ context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, rec := range o.records {
		if o.sink != nil {
			if err := o.sink.Publish(ctx, rec); err != nil {
				o.records = o.records[i:]
				return err
			}
		}
		o.sent = append(o.sent, rec)
	}
	o.records = nil
	if len(o.sent) > sentHistory {
		o.sent = append([]appoutbox.EventRecord(nil), o.sent[len(o.sent)-sentHistory:]...)
	}
	return nil
}

// Sent returns every record flushed so far.
func (o *Outbox) Sent() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.sent))
	copy(out, o.sent)
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
