package memory

import (
	"context"
	"sync"

	"stayengine/internal/app/policies"
)

type Notification struct {
	UserID    string
	EventType string
	Payload   any
}

// Notifier records notifications instead of delivering them.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(_ context.Context, userID, eventType string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, Notification{UserID: userID, EventType: eventType, Payload: payload})
	return nil
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// Count returns how many notifications of eventType were recorded.
func (n *Notifier) Count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.EventType == eventType {
			c++
		}
	}
	return c
}

var _ policies.Notifier = (*Notifier)(nil)
