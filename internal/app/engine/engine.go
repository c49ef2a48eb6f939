// Package engine wires the booking use cases behind the command and query buses
// and exposes them as typed operations.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/dto"
	bookinghandlers "stayengine/internal/app/handlers/booking"
	"stayengine/internal/app/middleware"
	"stayengine/internal/app/outbox"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/queries"
	"stayengine/internal/app/refunds"
	"stayengine/internal/app/uow"
	"stayengine/internal/domain/availability"
	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/pricing"
)

type Options struct {
	UoWFactory  uow.UoWFactory
	Gateway     policies.PaymentGateway
	Notifier    policies.Notifier
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Idempotency middleware.IdempotencyStore
	Locker      availability.Locker
	Fees        pricing.FeeSchedule
	Penalties   *cancellation.PenaltyPolicy

	RequestTTL         time.Duration
	RetryBackoff       time.Duration
	MaxPaymentAttempts int
	AdvanceConcurrency int

	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

type Engine struct {
	Commands commands.Bus
	Queries  queries.Bus
	Keys     []string
}

var (
	ErrMissingFactory = errors.New("engine: unit of work factory required")
	ErrMissingGateway = errors.New("engine: payment gateway required")
	ErrMissingOutbox  = errors.New("engine: outbox required")
)

func New(opts Options) (*Engine, error) {
	switch {
	case opts.UoWFactory == nil:
		return nil, ErrMissingFactory
	case opts.Gateway == nil:
		return nil, ErrMissingGateway
	case opts.Outbox == nil:
		return nil, ErrMissingOutbox
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps := bookinghandlers.Deps{
		UoWFactory: opts.UoWFactory,
		Gateway:    opts.Gateway,
		Notifier:   opts.Notifier,
		Outbox:     opts.Outbox,
		Encoder:    opts.Encoder,
		Logger:     logger,
		Clock:      opts.Clock,
		NewID:      opts.NewID,
	}
	calc := &refunds.Calculator{
		UoWFactory: opts.UoWFactory,
		Gateway:    opts.Gateway,
		Outbox:     opts.Outbox,
		Encoder:    opts.Encoder,
		Penalties:  opts.Penalties,
		Logger:     logger,
	}
	calculator := pricing.NewCalculator(opts.Fees)
	handlers := bookinghandlers.Handlers{
		Quote:   &bookinghandlers.QuoteHandler{UoWFactory: opts.UoWFactory, Pricing: calculator},
		Get:     &bookinghandlers.GetBookingHandler{UoWFactory: opts.UoWFactory},
		Create:  &bookinghandlers.CreateBookingHandler{Deps: deps, Pricing: calculator, Locker: opts.Locker},
		Respond: &bookinghandlers.RespondToBookingHandler{Deps: deps},
		Cancel: &bookinghandlers.CancelBookingHandler{
			Deps:         deps,
			Refunds:      calc,
			MaxAttempts:  opts.MaxPaymentAttempts,
			RetryBackoff: opts.RetryBackoff,
		},
		Advance: &bookinghandlers.AdvanceScheduledStatesHandler{
			Deps:        deps,
			Refunds:     calc,
			RequestTTL:  opts.RequestTTL,
			Concurrency: opts.AdvanceConcurrency,
		},
	}

	cmdRegistry := commands.NewRegistry()
	handlers.RegisterCommands(cmdRegistry)
	qryRegistry := queries.NewRegistry()
	handlers.RegisterQueries(qryRegistry)

	cmdMiddleware := []middleware.CommandMiddleware{
		middleware.Logging(logger),
		middleware.Validation(middleware.MessageValidator{}),
	}
	if opts.Idempotency != nil {
		cmdMiddleware = append(cmdMiddleware, middleware.Idempotency(opts.Idempotency, nil))
	}
	cmdMiddleware = append(cmdMiddleware, middleware.OutboxFlush(opts.Outbox))

	return &Engine{
		Commands: middleware.ChainCommands(cmdRegistry, cmdMiddleware...),
		Queries: middleware.ChainQueries(qryRegistry,
			middleware.QueryLogging(logger),
			middleware.QueryValidation(middleware.MessageValidator{}),
		),
		Keys: cmdRegistry.Keys(),
	}, nil
}

func (e *Engine) Quote(ctx context.Context, q bookinghandlers.QuoteQuery) (dto.QuoteDTO, error) {
	return queries.Ask[bookinghandlers.QuoteQuery, dto.QuoteDTO](ctx, e.Queries, q)
}

func (e *Engine) GetBooking(ctx context.Context, id string) (dto.BookingDTO, error) {
	return queries.Ask[bookinghandlers.GetBookingQuery, dto.BookingDTO](ctx, e.Queries, bookinghandlers.GetBookingQuery{BookingID: id})
}

func (e *Engine) CreateBooking(ctx context.Context, cmd bookinghandlers.CreateBookingCommand) (*bookinghandlers.CreateBookingResult, error) {
	return commands.Dispatch[bookinghandlers.CreateBookingCommand, *bookinghandlers.CreateBookingResult](ctx, e.Commands, cmd)
}

func (e *Engine) RespondToBooking(ctx context.Context, cmd bookinghandlers.RespondToBookingCommand) (*bookinghandlers.RespondToBookingResult, error) {
	return commands.Dispatch[bookinghandlers.RespondToBookingCommand, *bookinghandlers.RespondToBookingResult](ctx, e.Commands, cmd)
}

func (e *Engine) CancelBooking(ctx context.Context, cmd bookinghandlers.CancelBookingCommand) (*bookinghandlers.CancelBookingResult, error) {
	return commands.Dispatch[bookinghandlers.CancelBookingCommand, *bookinghandlers.CancelBookingResult](ctx, e.Commands, cmd)
}

func (e *Engine) AdvanceScheduledStates(ctx context.Context, now time.Time) (*bookinghandlers.AdvanceResult, error) {
	return commands.Dispatch[bookinghandlers.AdvanceScheduledStatesCommand, *bookinghandlers.AdvanceResult](ctx, e.Commands, bookinghandlers.AdvanceScheduledStatesCommand{Now: now})
}
