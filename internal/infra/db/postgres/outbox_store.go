package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appoutbox "stayengine/internal/app/outbox"
	"stayengine/internal/infra/outbox"
)

const (
	outboxNew     = "NEW"
	outboxClaimed = "CLAIMED"
	outboxSent    = "SENT"
	outboxFailed  = "FAILED"
)

type outboxModel struct {
	ID          string            `gorm:"primaryKey;size:64"`
	Name        string            `gorm:"size:100;not null"`
	Payload     []byte            `gorm:"type:bytea;not null"`
	OccurredAt  time.Time         `gorm:"not null"`
	Aggregate   string            `gorm:"size:64;not null"`
	Headers     map[string]string `gorm:"serializer:json;type:jsonb"`
	State       string            `gorm:"size:10;not null;index:idx_outbox_due,priority:1"`
	Attempts    int               `gorm:"not null;default:0"`
	NextAttempt time.Time         `gorm:"column:next_attempt_at;not null;index:idx_outbox_due,priority:2"`
	ClaimedBy   string            `gorm:"size:100"`
	ClaimedAt   *time.Time
	SentAt      *time.Time
	LastError   string            `gorm:"size:1000"`
	CreatedAt   time.Time         `gorm:"not null"`
}

func (outboxModel) TableName() string { return "app_outbox" }

// OutboxStore writes records in the unit's transaction and serves them to the
// relay worker. Claims skip rows another worker holds locked.
type OutboxStore struct {
	db    *gorm.DB
	lease time.Duration
}

func NewOutboxStore(db *gorm.DB, lease time.Duration) *OutboxStore {
	if lease <= 0 {
		lease = time.Minute
	}
	return &OutboxStore{db: db, lease: lease}
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	now := time.Now().UTC()
	return Conn(ctx, s.db).Create(&outboxModel{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt.UTC(),
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       outboxNew,
		NextAttempt: now,
		CreatedAt:   now,
	}).Error
}

// Flush is a no-op: the worker publishes committed records.
func (s *OutboxStore) Flush(context.Context) error { return nil }

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.Message, error) {
	var claimed *outbox.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var m outboxModel
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
			Where("(state IN ? AND next_attempt_at <= ?) OR (state = ? AND claimed_at <= ?)",
				[]string{outboxNew, outboxFailed}, now, outboxClaimed, now.Add(-s.lease)).
			Order("next_attempt_at ASC").
			Take(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Model(&outboxModel{}).Where("id = ?", m.ID).
			Updates(map[string]any{"state": outboxClaimed, "claimed_by": workerID, "claimed_at": now}).Error; err != nil {
			return err
		}
		claimed = &outbox.Message{
			ID:         m.ID,
			Name:       m.Name,
			Payload:    m.Payload,
			OccurredAt: m.OccurredAt.UTC(),
			Aggregate:  m.Aggregate,
			Headers:    m.Headers,
			Attempts:   m.Attempts,
		}
		return nil
	})
	return claimed, err
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&outboxModel{}).Where("id = ?", id).
		Updates(map[string]any{"state": outboxSent, "sent_at": time.Now().UTC()}).Error
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return s.db.WithContext(ctx).Model(&outboxModel{}).Where("id = ?", id).
		Updates(map[string]any{
			"state":           outboxFailed,
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
			"attempts":        gorm.Expr("attempts + 1"),
		}).Error
}

var (
	_ appoutbox.Outbox = (*OutboxStore)(nil)
	_ outbox.Queue     = (*OutboxStore)(nil)
)
