// Package refunds decides and settles booking cancellations.
package refunds

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"stayengine/internal/app/outbox"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/uow"
	"stayengine/internal/domain/booking"
	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

const maxRecordAttempts = 3

type Request struct {
	BookingID   booking.BookingID
	CancelledBy booking.Party
	Reason      string
	Extenuating bool
	At          time.Time
}

// Outcome is derived from the stored cancellation record only, so repeated
// calls for one booking report the same split.
type Outcome struct {
	BookingID    string                    `json:"booking_id"`
	Status       booking.Status            `json:"status"`
	CancelledBy  booking.Party             `json:"cancelled_by"`
	Tier         cancellation.Tier         `json:"tier"`
	GuestRefund  money.Money               `json:"guest_refund"`
	HostPayout   money.Money               `json:"host_payout"`
	Retained     money.Money               `json:"retained"`
	Override     bool                      `json:"override"`
	Penalty      *cancellation.HostPenalty `json:"penalty,omitempty"`
	RefundIssued bool                      `json:"refund_issued"`
	PayoutIssued bool                      `json:"payout_issued"`
	CancelledAt  time.Time                 `json:"cancelled_at"`
}

// Pending reports whether money instructions are still outstanding.
func (o Outcome) Pending() bool {
	return o.Status == booking.StatusCancellationPending
}

func OutcomeOf(b *booking.Booking) Outcome {
	out := Outcome{BookingID: string(b.ID), Status: b.Status}
	if c := b.Cancellation; c != nil {
		out.CancelledBy = c.CancelledBy
		out.Tier = c.Split.Tier
		out.GuestRefund = c.Split.GuestRefund
		out.HostPayout = c.Split.HostPayout
		out.Retained = c.Split.Retained
		out.Override = c.Split.Override
		out.Penalty = c.Penalty
		out.RefundIssued = c.RefundIssued
		out.PayoutIssued = c.PayoutIssued
		out.CancelledAt = c.CancelledAt
	}
	return out
}

// Decide builds the cancellation record for b without touching storage.
// priorHostCancellations only matters for host-initiated cancellations.
func Decide(b *booking.Booking, req Request, engine cancellation.Engine, penalties cancellation.PenaltyPolicy, priorHostCancellations int) (booking.Cancellation, error) {
	if !b.Status.CanBeCancelled() {
		return booking.Cancellation{}, domainerr.NewStateError(string(b.Status), string(booking.StatusCancellationPending))
	}
	switch req.CancelledBy {
	case booking.PartyGuest:
		if !req.Extenuating {
			if err := b.CheckGuestCancellationWindow(req.At); err != nil {
				return booking.Cancellation{}, err
			}
		}
	case booking.PartyHost:
	default:
		return booking.Cancellation{}, domainerr.NewValidationError("cancelled_by", "must be guest or host")
	}

	split, err := engine.Evaluate(cancellation.Input{
		Policy:        b.Policy,
		CheckIn:       b.Range.CheckIn,
		CheckOut:      b.Range.CheckOut,
		CancelledAt:   req.At,
		Pricing:       b.Price,
		Extenuating:   req.Extenuating,
		HostInitiated: req.CancelledBy == booking.PartyHost,
	})
	if err != nil {
		return booking.Cancellation{}, err
	}
	if b.PaymentStatus != booking.PaymentCaptured {
		// nothing was collected, so nothing can be refunded or paid out
		zero := money.Zero(b.Price.Currency())
		split.GuestRefund, split.HostPayout, split.Retained = zero, zero, zero
	}

	record := booking.Cancellation{
		Reason:      strings.TrimSpace(req.Reason),
		CancelledBy: req.CancelledBy,
		CancelledAt: req.At,
		Split:       split,
		Extenuating: req.Extenuating,
	}
	if req.CancelledBy == booking.PartyHost {
		accommodation, err := b.Price.Accommodation()
		if err != nil {
			return booking.Cancellation{}, err
		}
		penalty, err := penalties.Assess(priorHostCancellations, accommodation, req.Extenuating)
		if err != nil {
			return booking.Cancellation{}, err
		}
		record.Penalty = &penalty
	}
	return record, nil
}

// Calculator records cancellations and issues the resulting refund and payout.
type Calculator struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Engine     cancellation.Engine
	Penalties  *cancellation.PenaltyPolicy
	Logger     *slog.Logger
}

// Cancel records the split once and then settles it. A PaymentError leaves the
// booking in cancellation_pending and is returned together with the outcome.
func (c *Calculator) Cancel(ctx context.Context, req Request) (Outcome, error) {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	req.At = req.At.UTC()
	var err error
	for attempt := 0; attempt < maxRecordAttempts; attempt++ {
		err = c.record(ctx, req)
		if !errors.Is(err, booking.ErrConcurrentUpdate) {
			break
		}
	}
	if err != nil {
		return Outcome{}, err
	}
	return c.Settle(ctx, req.BookingID, req.At)
}

func (c *Calculator) record(ctx context.Context, req Request) error {
	return uow.Run(ctx, c.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if b.Cancellation != nil {
			return nil
		}
		prior := 0
		if req.CancelledBy == booking.PartyHost && !req.Extenuating {
			prior, err = unit.Bookings().CountHostCancellations(ctx, b.HostID, c.penalties().Since(req.At))
			if err != nil {
				return err
			}
		}
		record, err := Decide(b, req, c.Engine, c.penalties(), prior)
		if err != nil {
			return err
		}
		if err := b.RecordCancellation(record); err != nil {
			return err
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return err
		}
		return outbox.Drain(ctx, c.Outbox, c.Encoder, b)
	})
}

// Settle issues whatever instructions of a recorded cancellation are missing
// and closes it. Already cancelled bookings are returned unchanged.
func (c *Calculator) Settle(ctx context.Context, id booking.BookingID, now time.Time) (Outcome, error) {
	b, err := c.load(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if b.Cancellation == nil {
		return Outcome{}, domainerr.NewStateError(string(b.Status), string(booking.StatusCancelled))
	}
	if b.Status == booking.StatusCancelled {
		return OutcomeOf(b), nil
	}
	bid := string(b.ID)
	cx := b.Cancellation

	if b.PaymentStatus == booking.PaymentAuthorized {
		if err := c.Gateway.Void(ctx, policies.VoidKey(bid), b.AuthorizationID); err != nil {
			return OutcomeOf(b), domainerr.NewPaymentError("void", err)
		}
		if b, err = c.update(ctx, id, func(b *booking.Booking) (bool, error) {
			b.MarkAuthorizationReleased(now)
			return true, nil
		}); err != nil {
			return Outcome{}, err
		}
		cx = b.Cancellation
	}

	if !cx.RefundIssued && cx.Split.GuestRefund.Amount > 0 {
		ref, err := c.Gateway.Refund(ctx, policies.RefundKey(bid), b.CaptureID, cx.Split.GuestRefund)
		if err != nil {
			return OutcomeOf(b), domainerr.NewPaymentError("refund", err)
		}
		if b, err = c.update(ctx, id, func(b *booking.Booking) (bool, error) {
			b.MarkRefundIssued(ref, now)
			return true, nil
		}); err != nil {
			return Outcome{}, err
		}
		cx = b.Cancellation
	}

	if !cx.PayoutIssued && cx.Split.HostPayout.Amount > 0 {
		ref, err := c.Gateway.Payout(ctx, policies.PayoutKey(bid), string(b.HostID), cx.Split.HostPayout)
		if err != nil {
			return OutcomeOf(b), domainerr.NewPaymentError("payout", err)
		}
		if b, err = c.update(ctx, id, func(b *booking.Booking) (bool, error) {
			b.MarkPayoutIssued(ref, now)
			return true, nil
		}); err != nil {
			return Outcome{}, err
		}
	}

	b, err = c.update(ctx, id, func(b *booking.Booking) (bool, error) {
		if b.Status == booking.StatusCancelled {
			return false, nil
		}
		return true, b.FinalizeCancellation(now)
	})
	if err != nil {
		return Outcome{}, err
	}
	c.logger().InfoContext(ctx, "booking cancelled",
		"booking_id", bid,
		"cancelled_by", b.Cancellation.CancelledBy,
		"tier", b.Cancellation.Split.Tier,
		"refund", b.Cancellation.Split.GuestRefund.Amount,
		"payout", b.Cancellation.Split.HostPayout.Amount,
	)
	return OutcomeOf(b), nil
}

func (c *Calculator) load(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	var b *booking.Booking
	err := uow.Run(ctx, c.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		b, err = unit.Bookings().ByID(ctx, id)
		return err
	})
	return b, err
}

// update reloads the booking, applies mutate and saves it when mutate reports a
// change. Money references are only written here, after the gateway accepted.
func (c *Calculator) update(ctx context.Context, id booking.BookingID, mutate func(*booking.Booking) (bool, error)) (*booking.Booking, error) {
	var out *booking.Booking
	err := uow.Run(context.WithoutCancel(ctx), c.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, id)
		if err != nil {
			return err
		}
		changed, err := mutate(b)
		if err != nil {
			return err
		}
		out = b
		if !changed {
			return nil
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return err
		}
		return outbox.Drain(ctx, c.Outbox, c.Encoder, b)
	})
	return out, err
}

func (c *Calculator) penalties() cancellation.PenaltyPolicy {
	if c.Penalties != nil {
		return *c.Penalties
	}
	return cancellation.DefaultPenaltyPolicy()
}

func (c *Calculator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
