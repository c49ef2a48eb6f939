package middleware

import (
	"context"
	"errors"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/outbox"
)

// OutboxFlush hands staged events to the outbox after every command. A failed
// command may still have committed units whose events must go out.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if flushErr := box.Flush(context.WithoutCancel(ctx)); flushErr != nil {
				return nil, errors.Join(err, flushErr)
			}
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
