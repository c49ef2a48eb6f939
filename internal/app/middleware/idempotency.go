package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"golang.org/x/sync/singleflight"

	"stayengine/internal/app/commands"
)

// IdempotentCommand is implemented by commands that may be retried by clients
// with the same key. Keys are only shared between calls with the same scope,
// usually the acting party.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	IdempotencyScope() string
	ResultPrototype() any
}

type IdempotencyRecord struct {
	Key        string
	Command    string
	Payload    []byte
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

// Idempotency replays the stored result of a previous successful command with
// the same key. Failures are not stored so the client can retry them.
// Concurrent duplicates inside one process share a single execution.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	var inflight singleflight.Group
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			key := cmd.Key() + ":" + idCmd.IdempotencyScope() + ":" + idCmd.IdempotencyKey()
			res, err, _ := inflight.Do(key, func() (any, error) {
				rec, found, err := store.Get(ctx, key)
				if err != nil {
					return nil, err
				}
				if found {
					proto := idCmd.ResultPrototype()
					if proto == nil {
						return nil, errMissingPrototype
					}
					if err := codec.Decode(rec.Payload, proto); err != nil {
						return nil, err
					}
					return normalizePrototype(proto), nil
				}
				result, err := next.Dispatch(ctx, cmd)
				if err != nil {
					return nil, err
				}
				record := IdempotencyRecord{Key: key, Command: cmd.Key(), OccurredAt: time.Now().UTC()}
				if result != nil {
					payload, encErr := codec.Encode(result)
					if encErr != nil {
						return nil, encErr
					}
					record.Payload = payload
				}
				if saveErr := store.Save(context.WithoutCancel(ctx), record); saveErr != nil {
					return nil, saveErr
				}
				return result, nil
			})
			return res, err
		})
	}
}

func normalizePrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Interface()
	}
	return proto
}
