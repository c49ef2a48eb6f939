package booking

import (
	"context"
	"strings"
	"time"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/dto"
	"stayengine/internal/app/refunds"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/shared/domainerr"
)

const (
	cancelBookingKey        = "booking.cancel"
	defaultCancelAttempts   = 3
	defaultCancelRetryDelay = 200 * time.Millisecond
)

// CancelBookingCommand is naturally idempotent: a second call reads the stored
// cancellation record instead of deciding again.
type CancelBookingCommand struct {
	BookingID   string
	CancelledBy string
	ActorID     string
	Reason      string
	Extenuating bool
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

func (c CancelBookingCommand) Validate() error {
	if strings.TrimSpace(c.BookingID) == "" {
		return domainerr.NewValidationError("booking_id", "is required")
	}
	if _, err := domainbooking.ParseParty(c.CancelledBy); err != nil {
		return domainerr.NewValidationError("cancelled_by", "must be guest or host")
	}
	return nil
}

type CancelBookingResult struct {
	Outcome dto.OutcomeDTO `json:"outcome"`
}

// CancelBookingHandler runs the refund calculator and retries gateway failures
// with a linear backoff. A booking still owing instructions after the last
// attempt is reported as cancellation_pending.
type CancelBookingHandler struct {
	Deps
	Refunds      *refunds.Calculator
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*CancelBookingResult, error) {
	party, err := domainbooking.ParseParty(cmd.CancelledBy)
	if err != nil {
		return nil, domainerr.NewValidationError("cancelled_by", err.Error())
	}
	id := domainbooking.BookingID(cmd.BookingID)
	before, err := h.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmd.ActorID != "" && !actorMatches(before, party, cmd.ActorID) {
		return nil, domainerr.NewValidationError("actor_id", "is not the booking's "+string(party))
	}

	now := h.now()
	outcome, err := h.Refunds.Cancel(ctx, refunds.Request{
		BookingID:   id,
		CancelledBy: party,
		Reason:      cmd.Reason,
		Extenuating: cmd.Extenuating,
		At:          now,
	})
	for attempt := 1; domainerr.IsPayment(err) && attempt < h.maxAttempts(); attempt++ {
		h.logger().WarnContext(ctx, "cancellation settlement failed, retrying", "booking_id", id, "attempt", attempt, "error", err)
		if !sleepCtx(ctx, h.backoff()*time.Duration(attempt)) {
			break
		}
		outcome, err = h.Refunds.Settle(ctx, id, h.now())
	}
	if domainerr.IsPayment(err) {
		h.logger().ErrorContext(ctx, "cancellation left pending", "booking_id", id, "error", err)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if outcome.Status != before.Status {
		eventType := "booking.cancelled"
		if outcome.Pending() {
			eventType = "booking.cancellation_pending"
		}
		if after, err := h.load(ctx, id); err == nil {
			h.notify(ctx, eventType, after, after.GuestID, string(after.HostID))
		}
	}
	return &CancelBookingResult{Outcome: dto.MapOutcome(outcome)}, nil
}

func (h *CancelBookingHandler) maxAttempts() int {
	if h.MaxAttempts > 0 {
		return h.MaxAttempts
	}
	return defaultCancelAttempts
}

func (h *CancelBookingHandler) backoff() time.Duration {
	if h.RetryBackoff > 0 {
		return h.RetryBackoff
	}
	return defaultCancelRetryDelay
}

func actorMatches(b *domainbooking.Booking, party domainbooking.Party, actorID string) bool {
	if party == domainbooking.PartyHost {
		return string(b.HostID) == actorID
	}
	return b.GuestID == actorID
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ commands.Handler[CancelBookingCommand, *CancelBookingResult] = (*CancelBookingHandler)(nil)
