// Package bolt keeps idempotency records in an embedded BoltDB file, so a
// single-node deployment on the memory store still replays results across
// restarts.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"stayengine/internal/app/middleware"
)

var bucketName = []byte("idempotency")

type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

type record struct {
	Command    string    `json:"command"`
	Payload    []byte    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
	StoredAt   time.Time `json:"stored_at"`
}

// Open opens or creates the file at path. Zero ttl keeps records forever.
func Open(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *IdempotencyStore) Close() error {
	return s.db.Close()
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var rec record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil || !found || s.expired(rec) {
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{Key: key, Command: rec.Command, Payload: rec.Payload, OccurredAt: rec.OccurredAt}, true, nil
}

// Save keeps the first live record for a key.
func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if existing := b.Get([]byte(rec.Key)); existing != nil {
			var old record
			if err := json.Unmarshal(existing, &old); err == nil && !s.expired(old) {
				return nil
			}
		}
		data, err := json.Marshal(record{
			Command:    rec.Command,
			Payload:    rec.Payload,
			OccurredAt: rec.OccurredAt.UTC(),
			StoredAt:   s.now().UTC(),
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Key), data)
	})
}

// Purge removes expired records and returns how many it dropped.
func (s *IdempotencyStore) Purge(context.Context) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil || s.expired(rec) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func (s *IdempotencyStore) expired(rec record) bool {
	return s.ttl > 0 && s.now().Sub(rec.StoredAt) > s.ttl
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
