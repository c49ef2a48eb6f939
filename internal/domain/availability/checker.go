// Package availability decides whether a listing's dates are free and turns a
// pending booking into a reservation without double-booking.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stayengine/internal/domain/booking"
	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

// ErrLockBusy is returned by a Locker that could not acquire the lock in time.
var ErrLockBusy = errors.New("availability: listing lock busy")

// Store is the part of the booking repository the checker needs. CreateReserved
// must re-check overlap atomically with the insert.
type Store interface {
	ListActiveForListing(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) ([]*booking.Booking, error)
	CreateReserved(ctx context.Context, b *booking.Booking) error
}

// Locker serializes reservations per listing. Unlock must be safe to call after
// the lock expired.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// ReservationToken proves a booking holds its dates.
type ReservationToken struct {
	ListingID  listings.ListingID
	Range      daterange.DateRange
	BookingID  booking.BookingID
	ReservedAt time.Time
}

type Checker struct {
	store  Store
	locker Locker
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Checker)

func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithLogger reports lock releases that failed, typically because the lock
// expired while the reservation was still running.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

func NewChecker(store Store, locker Locker, opts ...Option) *Checker {
	if locker == nil {
		locker = NoopLocker{}
	}
	c := &Checker{store: store, locker: locker, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAvailable reports whether no pending, confirmed or active booking overlaps dr.
func (c *Checker) IsAvailable(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) (bool, error) {
	conflicts, err := c.Conflicts(ctx, listingID, dr)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Conflicts lists the occupying bookings that overlap dr.
func (c *Checker) Conflicts(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) ([]booking.BookingID, error) {
	if err := dr.Validate(); err != nil {
		return nil, domainerr.NewValidationError("dates", err.Error())
	}
	existing, err := c.store.ListActiveForListing(ctx, listingID, dr)
	if err != nil {
		return nil, fmt.Errorf("availability: list bookings: %w", err)
	}
	var ids []booking.BookingID
	for _, b := range existing {
		if booking.OverlapsOccupied(b, listingID, dr) {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// Reserve persists b, which must be pending, as holding its dates. Of any number
// of concurrent calls with overlapping ranges at most one succeeds; the others
// get a ConflictError and should redo quote and reserve.
func (c *Checker) Reserve(ctx context.Context, b *booking.Booking) (ReservationToken, error) {
	if b == nil {
		return ReservationToken{}, domainerr.NewValidationError("booking", "is required")
	}
	if b.Status != booking.StatusPending {
		return ReservationToken{}, domainerr.NewStateError(string(b.Status), string(booking.StatusPending))
	}
	unlock, err := c.locker.Lock(ctx, lockKey(b.ListingID))
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			return ReservationToken{}, domainerr.NewConflictError(string(b.ListingID), "listing is being reserved concurrently")
		}
		return ReservationToken{}, fmt.Errorf("availability: lock listing: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			c.logger.WarnContext(ctx, "listing lock release failed", "listing_id", b.ListingID, "booking_id", b.ID, "error", err)
		}
	}()

	conflicts, err := c.Conflicts(ctx, b.ListingID, b.Range)
	if err != nil {
		return ReservationToken{}, err
	}
	if len(conflicts) > 0 {
		return ReservationToken{}, domainerr.NewConflictError(string(b.ListingID), fmt.Sprintf("dates overlap booking %s", conflicts[0]))
	}
	if err := c.store.CreateReserved(ctx, b); err != nil {
		return ReservationToken{}, err
	}
	return ReservationToken{
		ListingID:  b.ListingID,
		Range:      b.Range,
		BookingID:  b.ID,
		ReservedAt: c.now().UTC(),
	}, nil
}

func lockKey(id listings.ListingID) string {
	return "listing-reserve:" + string(id)
}
