package availability_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/domain/availability"
	"stayengine/internal/domain/booking"
	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

const day = 24 * time.Hour

var checkIn = time.Date(2026, time.August, 3, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	bookings []*booking.Booking
}

func (s *fakeStore) ListActiveForListing(_ context.Context, id listings.ListingID, dr daterange.DateRange) ([]*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*booking.Booking
	for _, b := range s.bookings {
		if booking.OverlapsOccupied(b, id, dr) {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) CreateReserved(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bookings {
		if booking.OverlapsOccupied(existing, b.ListingID, b.Range) {
			return domainerr.NewConflictError(string(b.ListingID), "overlap at commit")
		}
	}
	s.bookings = append(s.bookings, b.Clone())
	return nil
}

func listing(t *testing.T) *listings.Listing {
	t.Helper()
	l, err := listings.NewListing(listings.CreateListingParams{
		ID:           "l-1",
		Host:         "h-1",
		NightlyPrice: money.Must(10000, "EUR"),
		MaxGuests:    2,
	})
	require.NoError(t, err)
	return l
}

func pendingBooking(t *testing.T, id string, from time.Time, n int) *booking.Booking {
	t.Helper()
	eur := func(v int64) money.Money { return money.Must(v, "EUR") }
	price := pricing.PriceBreakdown{
		Nights:          n,
		Nightly:         eur(10000),
		Subtotal:        eur(int64(n) * 10000),
		Discount:        eur(0),
		CleaningFee:     eur(0),
		GuestServiceFee: eur(0),
		HostServiceFee:  eur(0),
	}
	require.NoError(t, price.RecalculateTotal())
	b, err := booking.NewBooking(booking.CreateParams{
		ID:        booking.BookingID(id),
		Listing:   listing(t),
		GuestID:   "g-" + id,
		Range:     daterange.DateRange{CheckIn: from, CheckOut: from.Add(time.Duration(n) * day)},
		Guests:    1,
		Price:     price,
		CreatedAt: checkIn.Add(-30 * day),
	})
	require.NoError(t, err)
	return b
}

func TestReserveAndIsAvailable(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	checker := availability.NewChecker(store, availability.NewLocalLocker())

	b := pendingBooking(t, "b-1", checkIn, 3)
	token, err := checker.Reserve(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, b.ID, token.BookingID)
	assert.Equal(t, b.Range, token.Range)

	free, err := checker.IsAvailable(ctx, "l-1", daterange.DateRange{CheckIn: checkIn.Add(day), CheckOut: checkIn.Add(5 * day)})
	require.NoError(t, err)
	assert.False(t, free)

	// checkout day is free for the next guest
	free, err = checker.IsAvailable(ctx, "l-1", daterange.DateRange{CheckIn: checkIn.Add(3 * day), CheckOut: checkIn.Add(5 * day)})
	require.NoError(t, err)
	assert.True(t, free)

	_, err = checker.Reserve(ctx, pendingBooking(t, "b-2", checkIn.Add(2*day), 2))
	assert.True(t, domainerr.IsConflict(err))
}

func TestCancelledBookingsReleaseDates(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	checker := availability.NewChecker(store, nil)

	b := pendingBooking(t, "b-1", checkIn, 3)
	_, err := checker.Reserve(ctx, b)
	require.NoError(t, err)
	store.bookings[0].Status = booking.StatusCancellationPending

	free, err := checker.IsAvailable(ctx, "l-1", b.Range)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestReserveRejectsNonPending(t *testing.T) {
	b := pendingBooking(t, "b-1", checkIn, 2)
	require.NoError(t, b.Confirm(checkIn.Add(-day), false))

	_, err := availability.NewChecker(&fakeStore{}, nil).Reserve(context.Background(), b)
	assert.True(t, domainerr.IsState(err))
}

func TestConcurrentReserveExactlyOneWins(t *testing.T) {
	for name, locker := range map[string]availability.Locker{
		"local lock": availability.NewLocalLocker(),
		"store only": availability.NoopLocker{},
	} {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			checker := availability.NewChecker(store, locker)

			const attempts = 32
			candidates := make([]*booking.Booking, attempts)
			for i := range candidates {
				candidates[i] = pendingBooking(t, fmt.Sprintf("b-%d", i), checkIn.Add(time.Duration(i%3)*day), 4)
			}

			var wins, conflicts atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for _, b := range candidates {
				wg.Add(1)
				go func(b *booking.Booking) {
					defer wg.Done()
					<-start
					_, err := checker.Reserve(context.Background(), b)
					switch {
					case err == nil:
						wins.Add(1)
					case domainerr.IsConflict(err):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(b)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(attempts-1), conflicts.Load())
			assert.Len(t, store.bookings, 1)
		})
	}
}

type expiringLocker struct{}

func (expiringLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return errors.New("lock expired before release") }, nil
}

func TestReserveLogsLostLock(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := &fakeStore{}
	checker := availability.NewChecker(store, expiringLocker{}, availability.WithLogger(logger))

	_, err := checker.Reserve(context.Background(), pendingBooking(t, "b-1", checkIn, 2))
	require.NoError(t, err)
	assert.Len(t, store.bookings, 1)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "listing lock release failed")
	assert.Contains(t, buf.String(), "booking_id=b-1")
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := availability.NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	unlock2, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, unlock2(context.Background()))
}
