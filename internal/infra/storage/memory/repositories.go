package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainbooking "stayengine/internal/domain/booking"
	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

// ListingRepository is an in-memory catalog snapshot.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{items: make(map[domainlistings.ListingID]domainlistings.Listing)}
}

func (r *ListingRepository) ByID(_ context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("listing", string(id))
	}
	return &listing, nil
}

func (r *ListingRepository) Save(_ context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = *listing
	return nil
}

// BookingRepository stores copies so callers never share a booking value with
// the store. Every method runs under one mutex, which makes CreateReserved's
// check and insert atomic.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(_ context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("booking", string(id))
	}
	return b.Clone(), nil
}

func (r *BookingRepository) Save(_ context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[b.ID]
	if !ok {
		return domainerr.NewNotFoundError("booking", string(b.ID))
	}
	if current.Version != b.Version {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version++
	r.items[b.ID] = b.Clone()
	return nil
}

func (r *BookingRepository) CreateReserved(_ context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[b.ID]; exists {
		return domainerr.NewValidationError("id", "booking already exists")
	}
	for _, existing := range r.items {
		if domainbooking.OverlapsOccupied(existing, b.ListingID, b.Range) {
			return domainerr.NewConflictError(string(b.ListingID), "dates overlap booking "+string(existing.ID))
		}
	}
	b.Version = 1
	r.items[b.ID] = b.Clone()
	return nil
}

func (r *BookingRepository) ListActiveForListing(_ context.Context, listingID domainlistings.ListingID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if domainbooking.OverlapsOccupied(b, listingID, dr) {
			out = append(out, b.Clone())
		}
	}
	sortByCheckIn(out)
	return out, nil
}

func (r *BookingRepository) ListDue(_ context.Context, q domainbooking.DueQuery) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if domainbooking.IsDue(b, q) {
			out = append(out, b.Clone())
		}
	}
	sortByCheckIn(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *BookingRepository) CountHostCancellations(_ context.Context, hostID domainlistings.HostID, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.items {
		if domainbooking.IsChargeableHostCancellation(b, hostID, since) {
			n++
		}
	}
	return n, nil
}

func sortByCheckIn(bs []*domainbooking.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Range.CheckIn.Equal(bs[j].Range.CheckIn) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].Range.CheckIn.Before(bs[j].Range.CheckIn)
	})
}

var (
	_ domainlistings.Repository = (*ListingRepository)(nil)
	_ domainbooking.Repository  = (*BookingRepository)(nil)
)
