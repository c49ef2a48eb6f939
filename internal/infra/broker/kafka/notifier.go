package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"stayengine/internal/app/policies"
)

const NotificationsTopic = "notifications.v1"

type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Notifier hands user notifications to the delivery service over Kafka. The
// user id is the partition key so one user's messages stay ordered.
type Notifier struct {
	Publisher   Publisher
	TopicPrefix string
	Now         func() time.Time
}

type notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func (n Notifier) Notify(ctx context.Context, userID, eventType string, payload any) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	body, err := json.Marshal(notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: now().UTC(),
	})
	if err != nil {
		return err
	}
	headers := map[string]string{"content-type": "application/json", "event-type": eventType}
	return n.Publisher.Publish(ctx, n.TopicPrefix+NotificationsTopic, userID, body, headers)
}

var _ policies.Notifier = Notifier{}
