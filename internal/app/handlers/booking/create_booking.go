package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayengine/internal/app/commands"
	"stayengine/internal/app/dto"
	"stayengine/internal/app/middleware"
	"stayengine/internal/app/outbox"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/uow"
	"stayengine/internal/domain/availability"
	domainbooking "stayengine/internal/domain/booking"
	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

const createBookingKey = "booking.create"

type CreateBookingCommand struct {
	ListingID       string
	GuestID         string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) IdempotencyScope() string { return c.GuestID }

func (c CreateBookingCommand) ResultPrototype() any { return &CreateBookingResult{} }

func (c CreateBookingCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return domainerr.NewValidationError("listing_id", "is required")
	}
	if strings.TrimSpace(c.GuestID) == "" {
		return domainerr.NewValidationError("guest_id", "is required")
	}
	if c.Guests <= 0 {
		return domainerr.NewValidationError("guests", "must be positive")
	}
	return nil
}

type CreateBookingResult struct {
	Booking dto.BookingDTO `json:"booking"`
}

// CreateBookingHandler quotes, reserves and authorizes a stay. Instant-book
// listings are confirmed and captured right away.
type CreateBookingHandler struct {
	Deps
	Pricing pricing.Calculator
	Locker  availability.Locker
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*CreateBookingResult, error) {
	now := h.now()
	dr, err := daterange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, domainerr.NewValidationError("dates", err.Error())
	}
	if !dr.CheckIn.After(now) {
		return nil, domainerr.NewValidationError("check_in", "must be in the future")
	}

	var (
		b       *domainbooking.Booking
		instant bool
	)
	err = uow.Run(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(cmd.ListingID))
		if err != nil {
			return err
		}
		price, err := h.Pricing.Quote(listing, dr.CheckIn, dr.CheckOut, cmd.Guests)
		if err != nil {
			return err
		}
		b, err = domainbooking.NewBooking(domainbooking.CreateParams{
			ID:        domainbooking.BookingID(h.newID()),
			Listing:   listing,
			GuestID:   strings.TrimSpace(cmd.GuestID),
			Range:     dr,
			Guests:    cmd.Guests,
			Price:     price,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		checker := availability.NewChecker(unit.Bookings(), h.Locker, availability.WithClock(h.now), availability.WithLogger(h.logger()))
		if _, err := checker.Reserve(ctx, b); err != nil {
			return err
		}
		instant = listing.InstantBook
		return outbox.Drain(ctx, h.Outbox, h.Encoder, b)
	})
	if err != nil {
		return nil, err
	}
	bid := string(b.ID)
	h.logger().InfoContext(ctx, "booking reserved", "booking_id", bid, "listing_id", b.ListingID, "nights", b.Price.Nights, "total", b.Price.Total.Amount)

	authID, err := h.Gateway.Authorize(ctx, policies.AuthorizeKey(bid), bid, b.Price.Total)
	if err != nil {
		payErr := domainerr.NewPaymentError("authorize", err)
		rejected, _, rejErr := h.persist(ctx, b.ID, func(b *domainbooking.Booking) (bool, error) {
			return true, b.Reject("payment authorization failed", h.now())
		})
		if rejErr != nil {
			return nil, errors.Join(payErr, rejErr)
		}
		h.notify(ctx, "booking.rejected", rejected, rejected.GuestID)
		return nil, payErr
	}

	b, _, err = h.persist(ctx, b.ID, func(b *domainbooking.Booking) (bool, error) {
		b.MarkAuthorized(authID, h.now())
		if instant {
			return true, b.Confirm(h.now(), true)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if instant {
		b = h.capture(ctx, b)
		h.notify(ctx, "booking.confirmed", b, b.GuestID, string(b.HostID))
	} else {
		h.notify(ctx, "booking.requested", b, string(b.HostID))
	}
	return &CreateBookingResult{Booking: dto.MapBooking(b)}, nil
}

var (
	_ commands.Handler[CreateBookingCommand, *CreateBookingResult] = (*CreateBookingHandler)(nil)
	_ middleware.IdempotentCommand                                  = CreateBookingCommand{}
)
