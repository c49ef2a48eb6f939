package booking

import (
	"context"
	"time"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
)

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	// Save persists b when the stored version equals b.Version and bumps it.
	// A stale version returns ErrConcurrentUpdate.
	Save(ctx context.Context, b *Booking) error
	// CreateReserved inserts b only if no occupying booking overlaps its range
	// at commit time, returning a ConflictError otherwise.
	CreateReserved(ctx context.Context, b *Booking) error
	ListActiveForListing(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) ([]*Booking, error)
	ListDue(ctx context.Context, q DueQuery) ([]*Booking, error)
	// CountHostCancellations counts host-initiated, non-exempt cancellations at or after since.
	CountHostCancellations(ctx context.Context, hostID listings.HostID, since time.Time) (int, error)
}

// DueQuery selects bookings the scheduled batch has to look at.
type DueQuery struct {
	Now                  time.Time
	PendingCreatedBefore time.Time
	Limit                int
}

// IsDue reports whether b needs a scheduled transition or has an outstanding
// payment side effect to reconcile.
func IsDue(b *Booking, q DueQuery) bool {
	switch b.Status {
	case StatusPending:
		return !q.PendingCreatedBefore.IsZero() && !b.CreatedAt.After(q.PendingCreatedBefore)
	case StatusConfirmed:
		return !b.Range.CheckIn.After(q.Now) || b.PaymentStatus == PaymentAuthorized
	case StatusActive:
		return !b.Range.CheckOut.After(q.Now) || b.PaymentStatus == PaymentAuthorized
	case StatusCompleted:
		return b.CompletionPayoutRef == "" || b.PaymentStatus == PaymentAuthorized
	case StatusRejected:
		return b.PaymentStatus == PaymentAuthorized
	case StatusCancellationPending:
		return true
	}
	return false
}

// IsChargeableHostCancellation reports whether b counts towards a host's penalty history.
func IsChargeableHostCancellation(b *Booking, hostID listings.HostID, since time.Time) bool {
	if b.HostID != hostID || b.Cancellation == nil {
		return false
	}
	c := b.Cancellation
	if c.CancelledBy != PartyHost || c.CancelledAt.Before(since) {
		return false
	}
	return c.Penalty == nil || !c.Penalty.Exempt
}

// OverlapsOccupied reports whether b holds dates that intersect dr.
func OverlapsOccupied(b *Booking, listingID listings.ListingID, dr daterange.DateRange) bool {
	return b.ListingID == listingID && b.Status.Occupies() && b.Range.Overlaps(dr)
}
