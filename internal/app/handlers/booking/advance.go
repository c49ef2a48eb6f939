package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/refunds"
	"stayengine/internal/app/uow"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/shared/domainerr"
)

const (
	advanceKey          = "booking.advance"
	defaultAdvanceBatch = 500
	defaultAdvanceWork  = 4
	noPayoutRef         = "none"
)

type AdvanceScheduledStatesCommand struct {
	Now   time.Time
	Limit int
}

func (c AdvanceScheduledStatesCommand) Key() string { return advanceKey }

type Transition struct {
	BookingID string               `json:"booking_id"`
	From      domainbooking.Status `json:"from"`
	To        domainbooking.Status `json:"to"`
	Effect    string               `json:"effect,omitempty"`
}

type AdvanceResult struct {
	Examined    int          `json:"examined"`
	Transitions []Transition `json:"transitions"`
	Failed      []string     `json:"failed,omitempty"`
}

// AdvanceScheduledStatesHandler moves bookings along the clock and reconciles
// payment side effects that failed earlier. Running it twice for the same
// instant changes nothing the second time.
type AdvanceScheduledStatesHandler struct {
	Deps
	Refunds     *refunds.Calculator
	RequestTTL  time.Duration
	Concurrency int
}

func (h *AdvanceScheduledStatesHandler) Handle(ctx context.Context, cmd AdvanceScheduledStatesCommand) (*AdvanceResult, error) {
	now := cmd.Now.UTC()
	if cmd.Now.IsZero() {
		now = h.now()
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultAdvanceBatch
	}
	q := domainbooking.DueQuery{Now: now, Limit: limit}
	if h.RequestTTL > 0 {
		q.PendingCreatedBefore = now.Add(-h.RequestTTL)
	}
	var due []*domainbooking.Booking
	err := uow.Run(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		due, err = unit.Bookings().ListDue(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &AdvanceResult{Examined: len(due), Transitions: []Transition{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency())
	for _, b := range due {
		g.Go(func() error {
			ts, err := h.advance(gctx, b, q)
			mu.Lock()
			defer mu.Unlock()
			res.Transitions = append(res.Transitions, ts...)
			if err != nil {
				h.logger().WarnContext(gctx, "scheduled transition failed", "booking_id", b.ID, "status", b.Status, "error", err)
				res.Failed = append(res.Failed, string(b.ID))
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(res.Transitions) > 0 || len(res.Failed) > 0 {
		h.logger().InfoContext(ctx, "scheduled states advanced", "examined", res.Examined, "transitions", len(res.Transitions), "failed", len(res.Failed))
	}
	return res, nil
}

func (h *AdvanceScheduledStatesHandler) advance(ctx context.Context, b *domainbooking.Booking, q domainbooking.DueQuery) ([]Transition, error) {
	var out []Transition
	switch b.Status {
	case domainbooking.StatusPending:
		t, err := h.transition(ctx, b, domainbooking.StatusRejected, func(b *domainbooking.Booking) error {
			if !domainbooking.IsDue(b, q) {
				return errNotDue
			}
			return b.Reject("request expired", q.Now)
		})
		if t == nil || err != nil {
			return nil, err
		}
		rejected := h.release(ctx, t.booking)
		h.notify(ctx, "booking.expired", rejected, rejected.GuestID, string(rejected.HostID))
		return append(out, t.Transition), nil

	case domainbooking.StatusRejected:
		if released := h.release(ctx, b); released.PaymentStatus != b.PaymentStatus {
			out = append(out, Transition{BookingID: string(b.ID), From: b.Status, To: b.Status, Effect: "void"})
		}
		return out, nil

	case domainbooking.StatusConfirmed:
		b, out = h.retryCapture(ctx, b, out)
		if b.Range.CheckIn.After(q.Now) {
			return out, nil
		}
		t, err := h.transition(ctx, b, domainbooking.StatusActive, func(b *domainbooking.Booking) error {
			return b.Activate(q.Now)
		})
		if t == nil || err != nil {
			return out, err
		}
		h.notify(ctx, "booking.activated", t.booking, t.booking.GuestID, string(t.booking.HostID))
		return append(out, t.Transition), nil

	case domainbooking.StatusActive:
		b, out = h.retryCapture(ctx, b, out)
		if b.Range.CheckOut.After(q.Now) {
			return out, nil
		}
		t, err := h.transition(ctx, b, domainbooking.StatusCompleted, func(b *domainbooking.Booking) error {
			return b.Complete(q.Now)
		})
		if t == nil || err != nil {
			return out, err
		}
		out = append(out, t.Transition)
		h.notify(ctx, "booking.completed", t.booking, t.booking.GuestID, string(t.booking.HostID))
		if err := h.payCompletion(ctx, t.booking); err != nil {
			return out, err
		}
		return append(out, Transition{BookingID: string(b.ID), From: domainbooking.StatusCompleted, To: domainbooking.StatusCompleted, Effect: "payout"}), nil

	case domainbooking.StatusCompleted:
		b, out = h.retryCapture(ctx, b, out)
		if b.CompletionPayoutRef != "" {
			return out, nil
		}
		if err := h.payCompletion(ctx, b); err != nil {
			return out, err
		}
		return append(out, Transition{BookingID: string(b.ID), From: b.Status, To: b.Status, Effect: "payout"}), nil

	case domainbooking.StatusCancellationPending:
		if h.Refunds == nil {
			return nil, nil
		}
		outcome, err := h.Refunds.Settle(ctx, b.ID, q.Now)
		if err != nil {
			return nil, err
		}
		if outcome.Status == domainbooking.StatusCancelled {
			after, err := h.load(ctx, b.ID)
			if err == nil {
				h.notify(ctx, "booking.cancelled", after, after.GuestID, string(after.HostID))
			}
			return []Transition{{BookingID: string(b.ID), From: b.Status, To: outcome.Status, Effect: "settle"}}, nil
		}
	}
	return nil, nil
}

// ErrPaymentNotCaptured blocks a completion payout for a booking whose payment
// was never collected.
var ErrPaymentNotCaptured = errors.New("booking payment not captured")

var errNotDue = errors.New("booking no longer due")

// retryCapture captures a still authorized booking and reports the capture as
// an effect. The returned booking is the latest stored state.
func (h *AdvanceScheduledStatesHandler) retryCapture(ctx context.Context, b *domainbooking.Booking, out []Transition) (*domainbooking.Booking, []Transition) {
	if b.PaymentStatus != domainbooking.PaymentAuthorized {
		return b, out
	}
	captured := h.capture(ctx, b)
	if captured.PaymentStatus == b.PaymentStatus {
		return b, out
	}
	return captured, append(out, Transition{BookingID: string(b.ID), From: captured.Status, To: captured.Status, Effect: "capture"})
}

type appliedTransition struct {
	Transition
	booking *domainbooking.Booking
}

// transition applies step to the stored booking. It returns nil when the
// booking already left its state through another writer, which is not an error.
func (h *AdvanceScheduledStatesHandler) transition(ctx context.Context, b *domainbooking.Booking, to domainbooking.Status, step func(*domainbooking.Booking) error) (*appliedTransition, error) {
	from := b.Status
	updated, changed, err := h.persist(ctx, b.ID, func(cur *domainbooking.Booking) (bool, error) {
		if cur.Status != from {
			return false, nil
		}
		if err := step(cur); err != nil {
			return false, err
		}
		return true, nil
	})
	switch {
	case errors.Is(err, errNotDue), domainerr.IsState(err), errors.Is(err, domainbooking.ErrConcurrentUpdate):
		return nil, nil
	case err != nil:
		return nil, err
	case !changed:
		return nil, nil
	}
	return &appliedTransition{
		Transition: Transition{BookingID: string(b.ID), From: from, To: to},
		booking:    updated,
	}, nil
}

// payCompletion sends the host its earnings once per booking. Nothing is paid
// out before the guest's payment was captured.
func (h *AdvanceScheduledStatesHandler) payCompletion(ctx context.Context, b *domainbooking.Booking) error {
	if b.CompletionPayoutRef != "" {
		return nil
	}
	if b.PaymentStatus != domainbooking.PaymentCaptured {
		return domainerr.NewPaymentError("payout", ErrPaymentNotCaptured)
	}
	amount, err := b.Price.CompletionPayout()
	if err != nil {
		return err
	}
	ref := noPayoutRef
	if amount.Amount > 0 {
		ref, err = h.Gateway.Payout(ctx, policies.CompletionPayoutKey(string(b.ID)), string(b.HostID), amount)
		if err != nil {
			return domainerr.NewPaymentError("payout", err)
		}
	}
	_, _, err = h.persist(ctx, b.ID, func(cur *domainbooking.Booking) (bool, error) {
		if cur.CompletionPayoutRef != "" {
			return false, nil
		}
		cur.MarkCompletionPayout(ref, h.now())
		return true, nil
	})
	return err
}

func (h *AdvanceScheduledStatesHandler) concurrency() int {
	if h.Concurrency > 0 {
		return h.Concurrency
	}
	return defaultAdvanceWork
}

var _ commands.Handler[AdvanceScheduledStatesCommand, *AdvanceResult] = (*AdvanceScheduledStatesHandler)(nil)
