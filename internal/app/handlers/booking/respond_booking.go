package booking

import (
	"context"
	"strings"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/dto"
	"stayengine/internal/app/middleware"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/shared/domainerr"
)

const respondBookingKey = "booking.respond"

type RespondToBookingCommand struct {
	BookingID       string
	HostID          string
	Accept          bool
	Reason          string
	IdempotencyKeyV string
}

func (c RespondToBookingCommand) Key() string { return respondBookingKey }

func (c RespondToBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c RespondToBookingCommand) IdempotencyScope() string { return c.HostID }

func (c RespondToBookingCommand) ResultPrototype() any { return &RespondToBookingResult{} }

func (c RespondToBookingCommand) Validate() error {
	if strings.TrimSpace(c.BookingID) == "" {
		return domainerr.NewValidationError("booking_id", "is required")
	}
	return nil
}

type RespondToBookingResult struct {
	Booking dto.BookingDTO `json:"booking"`
}

// RespondToBookingHandler applies the host's answer to a pending request.
type RespondToBookingHandler struct {
	Deps
}

func (h *RespondToBookingHandler) Handle(ctx context.Context, cmd RespondToBookingCommand) (*RespondToBookingResult, error) {
	id := domainbooking.BookingID(cmd.BookingID)
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "declined by host"
	}
	b, _, err := h.persist(ctx, id, func(b *domainbooking.Booking) (bool, error) {
		if cmd.HostID != "" && string(b.HostID) != cmd.HostID {
			return false, domainerr.NewValidationError("host_id", "does not own this booking")
		}
		if cmd.Accept {
			return true, b.Confirm(h.now(), false)
		}
		return true, b.Reject(reason, h.now())
	})
	if err != nil {
		return nil, err
	}
	if cmd.Accept {
		b = h.capture(ctx, b)
		h.notify(ctx, "booking.confirmed", b, b.GuestID)
	} else {
		b = h.release(ctx, b)
		h.notify(ctx, "booking.rejected", b, b.GuestID)
	}
	h.logger().InfoContext(ctx, "booking request answered", "booking_id", b.ID, "accepted", cmd.Accept)
	return &RespondToBookingResult{Booking: dto.MapBooking(b)}, nil
}

var (
	_ commands.Handler[RespondToBookingCommand, *RespondToBookingResult] = (*RespondToBookingHandler)(nil)
	_ middleware.IdempotentCommand                                        = RespondToBookingCommand{}
)
