package engine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/app/engine"
	bookinghandlers "stayengine/internal/app/handlers/booking"
	"stayengine/internal/domain/availability"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/cancellation"
	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
	"stayengine/internal/infra/storage/memory"
)

const day = 24 * time.Hour

var (
	start   = time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	checkIn = time.Date(2026, time.June, 1, 15, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	engine   *engine.Engine
	bookings *memory.BookingRepository
	gateway  *memory.SandboxGateway
	notifier *memory.Notifier
	outbox   *memory.Outbox
	clock    *clock
}

func newFixture(t *testing.T, listings ...*domainlistings.Listing) *fixture {
	t.Helper()
	ctx := context.Background()
	listingRepo := memory.NewListingRepository()
	for _, l := range listings {
		require.NoError(t, listingRepo.Save(ctx, l))
	}
	f := &fixture{
		bookings: memory.NewBookingRepository(),
		gateway:  memory.NewSandboxGateway(),
		notifier: memory.NewNotifier(),
		outbox:   memory.NewOutbox(nil),
		clock:    &clock{now: start},
	}
	fees, err := pricing.NewFeeSchedule(decimal.NewFromInt(10), decimal.NewFromInt(3))
	require.NoError(t, err)
	eng, err := engine.New(engine.Options{
		UoWFactory:         memory.Factory{ListingsRepo: listingRepo, BookingsRepo: f.bookings},
		Gateway:            f.gateway,
		Notifier:           f.notifier,
		Outbox:             f.outbox,
		Idempotency:        memory.NewIdempotencyStore(time.Hour),
		Locker:             availability.NewLocalLocker(),
		Fees:               fees,
		RequestTTL:         48 * time.Hour,
		RetryBackoff:       time.Millisecond,
		MaxPaymentAttempts: 2,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:              f.clock.Now,
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func makeListing(t *testing.T, id string, policy domainlistings.PolicyTier, instant bool) *domainlistings.Listing {
	t.Helper()
	l, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:                     domainlistings.ListingID(id),
		Host:                   "host-1",
		Title:                  "Loft " + id,
		NightlyPrice:           money.Must(15000, "USD"),
		CleaningFee:            money.Must(5000, "USD"),
		WeeklyDiscountPercent:  decimal.NewFromInt(10),
		MonthlyDiscountPercent: decimal.NewFromInt(25),
		MaxGuests:              4,
		MinNights:              1,
		Policy:                 policy,
		InstantBook:            instant,
		Now:                    start,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) create(t *testing.T, listingID string, from time.Time, nights int) *bookinghandlers.CreateBookingResult {
	t.Helper()
	res, err := f.engine.CreateBooking(context.Background(), bookinghandlers.CreateBookingCommand{
		ListingID: listingID,
		GuestID:   "guest-1",
		CheckIn:   from,
		CheckOut:  from.Add(time.Duration(nights) * day),
		Guests:    2,
	})
	require.NoError(t, err)
	return res
}

func TestQuoteModerateFiveNights(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))

	q, err := f.engine.Quote(context.Background(), bookinghandlers.QuoteQuery{
		ListingID: "l-1", CheckIn: checkIn, CheckOut: checkIn.Add(5 * day), Guests: 2,
	})
	require.NoError(t, err)
	assert.True(t, q.Available)
	assert.Equal(t, int64(75000), q.Price.Subtotal.Amount)
	assert.Equal(t, int64(7500), q.Price.GuestServiceFee.Amount)
	assert.Equal(t, int64(87500), q.Price.Total.Amount)
	assert.Equal(t, checkIn.Add(-5*day), q.Deadlines.FullRefundUntil)
	require.NotNil(t, q.Deadlines.PartialRefundUntil)
	assert.Equal(t, checkIn.Add(-2*day), *q.Deadlines.PartialRefundUntil)
	assert.Equal(t, checkIn.Add(-24*time.Hour), q.Deadlines.GuestCancelUntil)
}

func TestQuoteRejectsTooManyGuests(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	_, err := f.engine.Quote(context.Background(), bookinghandlers.QuoteQuery{
		ListingID: "l-1", CheckIn: checkIn, CheckOut: checkIn.Add(2 * day), Guests: 9,
	})
	assert.True(t, domainerr.IsValidation(err))

	_, err = f.engine.Quote(context.Background(), bookinghandlers.QuoteQuery{
		ListingID: "missing", CheckIn: checkIn, CheckOut: checkIn.Add(2 * day), Guests: 1,
	})
	assert.True(t, domainerr.IsNotFound(err))
}

func TestInstantBookConfirmsAndCaptures(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))

	res := f.create(t, "l-1", checkIn, 5)

	assert.Equal(t, "confirmed", res.Booking.Status)
	assert.Equal(t, "captured", res.Booking.PaymentStatus)
	assert.Equal(t, int64(87500), res.Booking.Price.Total.Amount)
	assert.Equal(t, 1, f.gateway.Count(memory.OpAuthorize))
	assert.Equal(t, 1, f.gateway.Count(memory.OpCapture))
	assert.Equal(t, 2, f.notifier.Count("booking.confirmed"))

	var names []string
	for _, rec := range f.outbox.Sent() {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"booking.requested", "booking.confirmed"}, names)
}

func TestRequestToBookAcceptAndDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyStrict, false))

	accepted := f.create(t, "l-1", checkIn, 3)
	assert.Equal(t, "pending", accepted.Booking.Status)
	assert.Equal(t, "authorized", accepted.Booking.PaymentStatus)

	res, err := f.engine.RespondToBooking(ctx, bookinghandlers.RespondToBookingCommand{BookingID: accepted.Booking.ID, HostID: "host-1", Accept: true})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.Booking.Status)
	assert.Equal(t, "captured", res.Booking.PaymentStatus)

	declined := f.create(t, "l-1", checkIn.Add(10*day), 3)
	res, err = f.engine.RespondToBooking(ctx, bookinghandlers.RespondToBookingCommand{BookingID: declined.Booking.ID, HostID: "host-1", Accept: false})
	require.NoError(t, err)
	assert.Equal(t, "rejected", res.Booking.Status)
	assert.Equal(t, "released", res.Booking.PaymentStatus)
	assert.Equal(t, 1, f.gateway.Count(memory.OpVoid))

	_, err = f.engine.RespondToBooking(ctx, bookinghandlers.RespondToBookingCommand{BookingID: declined.Booking.ID, HostID: "host-1", Accept: true})
	assert.True(t, domainerr.IsState(err))

	_, err = f.engine.RespondToBooking(ctx, bookinghandlers.RespondToBookingCommand{BookingID: accepted.Booking.ID, HostID: "someone-else", Accept: false})
	assert.True(t, domainerr.IsValidation(err))
}

func TestAuthorizationFailureReleasesDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	f.gateway.FailNext(memory.OpAuthorize, 1)

	_, err := f.engine.CreateBooking(ctx, bookinghandlers.CreateBookingCommand{
		ListingID: "l-1", GuestID: "guest-1", CheckIn: checkIn, CheckOut: checkIn.Add(2 * day), Guests: 1,
	})
	var payErr *domainerr.PaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, "authorize", payErr.Op)
	assert.Equal(t, 1, f.notifier.Count("booking.rejected"))

	res := f.create(t, "l-1", checkIn, 2)
	assert.Equal(t, "confirmed", res.Booking.Status)
}

func TestCreateBookingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	cmd := bookinghandlers.CreateBookingCommand{
		ListingID: "l-1", GuestID: "guest-1", CheckIn: checkIn, CheckOut: checkIn.Add(2 * day), Guests: 1,
		IdempotencyKeyV: "client-key-1",
	}

	first, err := f.engine.CreateBooking(ctx, cmd)
	require.NoError(t, err)
	second, err := f.engine.CreateBooking(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, 1, f.gateway.Count(memory.OpAuthorize))
}

func TestIdempotencyKeyIsScopedToGuest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))

	first, err := f.engine.CreateBooking(ctx, bookinghandlers.CreateBookingCommand{
		ListingID: "l-1", GuestID: "guest-1", CheckIn: checkIn, CheckOut: checkIn.Add(2 * day), Guests: 1,
		IdempotencyKeyV: "shared-key",
	})
	require.NoError(t, err)
	second, err := f.engine.CreateBooking(ctx, bookinghandlers.CreateBookingCommand{
		ListingID: "l-1", GuestID: "guest-2", CheckIn: checkIn.Add(5 * day), CheckOut: checkIn.Add(7 * day), Guests: 1,
		IdempotencyKeyV: "shared-key",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, "guest-2", second.Booking.GuestID)
	assert.Equal(t, 2, f.gateway.Count(memory.OpAuthorize))
}

func TestConcurrentCreateBookingExactlyOneSucceeds(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	gate := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			_, err := f.engine.CreateBooking(context.Background(), bookinghandlers.CreateBookingCommand{
				ListingID: "l-1",
				GuestID:   fmt.Sprintf("guest-%d", i),
				CheckIn:   checkIn.Add(time.Duration(i%2) * day),
				CheckOut:  checkIn.Add(4 * day),
				Guests:    1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domainerr.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
}

func TestGuestCancelModeratePartialRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	created := f.create(t, "l-1", checkIn, 5)
	f.clock.Set(checkIn.Add(-3 * day))

	cmd := bookinghandlers.CancelBookingCommand{BookingID: created.Booking.ID, CancelledBy: "guest", ActorID: "guest-1", Reason: "plans changed"}
	first, err := f.engine.CancelBooking(ctx, cmd)
	require.NoError(t, err)

	out := first.Outcome
	assert.Equal(t, "cancelled", out.Status)
	assert.Equal(t, string(cancellation.TierPartial), out.Tier)
	assert.Equal(t, int64(37500), out.GuestRefund.Amount)
	assert.Equal(t, int64(37500), out.HostPayout.Amount)
	assert.Equal(t, int64(12500), out.Retained.Amount)
	assert.True(t, out.RefundIssued)
	assert.True(t, out.PayoutIssued)
	assert.False(t, out.Pending)

	f.clock.Set(checkIn.Add(-2 * time.Hour))
	second, err := f.engine.CancelBooking(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, 1, f.gateway.Count(memory.OpRefund))
	assert.Equal(t, 1, f.gateway.Count(memory.OpPayout))
	assert.Equal(t, 2, f.notifier.Count("booking.cancelled"))

	stored, err := f.engine.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "partially_refunded", stored.PaymentStatus)

	q, err := f.engine.Quote(ctx, bookinghandlers.QuoteQuery{ListingID: "l-1", CheckIn: checkIn, CheckOut: checkIn.Add(5 * day), Guests: 1})
	require.NoError(t, err)
	assert.True(t, q.Available)
}

func TestGuestCancelInsideFloorIsRejected(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyFlexible, true))
	created := f.create(t, "l-1", checkIn, 2)
	f.clock.Set(checkIn.Add(-10 * time.Hour))

	_, err := f.engine.CancelBooking(context.Background(), bookinghandlers.CancelBookingCommand{BookingID: created.Booking.ID, CancelledBy: "guest"})
	var policyErr *domainerr.PolicyViolationError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, checkIn.Add(-24*time.Hour), policyErr.Deadline)
	assert.Equal(t, 0, f.gateway.Count(memory.OpRefund))
}

func TestHostCancellationEscalatesPenalty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyStrict, true))
	b1 := f.create(t, "l-1", checkIn, 5)
	b2 := f.create(t, "l-1", checkIn.Add(10*day), 5)

	first, err := f.engine.CancelBooking(ctx, bookinghandlers.CancelBookingCommand{BookingID: b1.Booking.ID, CancelledBy: "host", ActorID: "host-1"})
	require.NoError(t, err)
	assert.Equal(t, string(cancellation.TierFull), first.Outcome.Tier)
	assert.Equal(t, int64(87500), first.Outcome.GuestRefund.Amount)
	require.NotNil(t, first.Outcome.Penalty)
	assert.Equal(t, 1, first.Outcome.Penalty.Offense)
	assert.Equal(t, int64(7500), first.Outcome.Penalty.Fee.Amount)
	assert.True(t, first.Outcome.Penalty.CalendarBlocked)

	second, err := f.engine.CancelBooking(ctx, bookinghandlers.CancelBookingCommand{BookingID: b2.Booking.ID, CancelledBy: "host"})
	require.NoError(t, err)
	require.NotNil(t, second.Outcome.Penalty)
	assert.Equal(t, 2, second.Outcome.Penalty.Offense)
	assert.Equal(t, "medium", second.Outcome.Penalty.Severity)
	assert.Equal(t, int64(18750), second.Outcome.Penalty.Fee.Amount)
}

func TestExtenuatingHostCancellationIsExempt(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyStrict, true))
	b := f.create(t, "l-1", checkIn, 2)

	res, err := f.engine.CancelBooking(context.Background(), bookinghandlers.CancelBookingCommand{BookingID: b.Booking.ID, CancelledBy: "host", Extenuating: true})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Override)
	require.NotNil(t, res.Outcome.Penalty)
	assert.True(t, res.Outcome.Penalty.Exempt)

	n, err := f.bookings.CountHostCancellations(context.Background(), "host-1", start.Add(-365*day))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPersistentGatewayFailureLeavesCancellationPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	created := f.create(t, "l-1", checkIn, 5)
	f.gateway.FailNext(memory.OpRefund, 5)

	res, err := f.engine.CancelBooking(ctx, bookinghandlers.CancelBookingCommand{BookingID: created.Booking.ID, CancelledBy: "guest"})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Pending)
	assert.Equal(t, "cancellation_pending", res.Outcome.Status)
	assert.Equal(t, int64(87500), res.Outcome.GuestRefund.Amount)
	assert.Equal(t, 1, f.notifier.Count("booking.cancellation_pending"))

	q, err := f.engine.Quote(ctx, bookinghandlers.QuoteQuery{ListingID: "l-1", CheckIn: checkIn, CheckOut: checkIn.Add(5 * day), Guests: 1})
	require.NoError(t, err)
	assert.True(t, q.Available, "a pending cancellation no longer holds the dates")

	f.gateway.FailNext(memory.OpRefund, 0)
	adv, err := f.engine.AdvanceScheduledStates(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, domainbooking.StatusCancelled, adv.Transitions[0].To)

	stored, err := f.engine.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", stored.Status)
	assert.Equal(t, "refunded", stored.PaymentStatus)
	assert.Equal(t, 1, f.gateway.Count(memory.OpRefund))
}

func TestAdvanceScheduledStatesIsReentrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	created := f.create(t, "l-1", checkIn, 5)

	adv, err := f.engine.AdvanceScheduledStates(ctx, checkIn.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkIn)
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, domainbooking.StatusActive, adv.Transitions[0].To)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkIn)
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)

	checkOut := checkIn.Add(5 * day)
	adv, err = f.engine.AdvanceScheduledStates(ctx, checkOut)
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 2)
	assert.Equal(t, domainbooking.StatusCompleted, adv.Transitions[0].To)
	assert.Equal(t, "payout", adv.Transitions[1].Effect)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkOut.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)

	payouts := 0
	for _, in := range f.gateway.Instructions() {
		if in.Op == memory.OpPayout {
			payouts++
			assert.Equal(t, int64(77750), in.Amount.Amount)
			assert.Equal(t, "completion-payout:"+created.Booking.ID, in.Key)
		}
	}
	assert.Equal(t, 1, payouts)
	assert.Equal(t, 2, f.notifier.Count("booking.completed"))
	assert.Equal(t, 2, f.notifier.Count("booking.activated"))
}

func TestAdvanceRetriesFailedCompletionPayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	f.create(t, "l-1", checkIn, 2)
	f.gateway.FailNext(memory.OpPayout, 1)

	_, err := f.engine.AdvanceScheduledStates(ctx, checkIn)
	require.NoError(t, err)
	adv, err := f.engine.AdvanceScheduledStates(ctx, checkIn.Add(2*day))
	require.NoError(t, err)
	assert.Len(t, adv.Failed, 1)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkIn.Add(2*day))
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, "payout", adv.Transitions[0].Effect)
	assert.Equal(t, 1, f.gateway.Count(memory.OpPayout))
}

func TestAdvanceCapturesBeforeCompletionPayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	f.gateway.FailNext(memory.OpCapture, 4)
	created := f.create(t, "l-1", checkIn, 5)
	assert.Equal(t, "authorized", created.Booking.PaymentStatus)

	adv, err := f.engine.AdvanceScheduledStates(ctx, checkIn)
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, domainbooking.StatusActive, adv.Transitions[0].To)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkIn.Add(day))
	require.NoError(t, err)
	assert.Equal(t, 1, adv.Examined)
	assert.Empty(t, adv.Transitions)

	checkOut := checkIn.Add(5 * day)
	adv, err = f.engine.AdvanceScheduledStates(ctx, checkOut)
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, domainbooking.StatusCompleted, adv.Transitions[0].To)
	assert.Equal(t, []string{created.Booking.ID}, adv.Failed)
	assert.Equal(t, 0, f.gateway.Count(memory.OpCapture))
	assert.Equal(t, 0, f.gateway.Count(memory.OpPayout))

	stored, err := f.engine.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
	assert.Equal(t, "authorized", stored.PaymentStatus)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkOut.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Failed)
	require.Len(t, adv.Transitions, 2)
	assert.Equal(t, "capture", adv.Transitions[0].Effect)
	assert.Equal(t, "payout", adv.Transitions[1].Effect)

	var captured, paid int64
	for _, in := range f.gateway.Instructions() {
		switch in.Op {
		case memory.OpCapture:
			captured += in.Amount.Amount
		case memory.OpPayout:
			paid += in.Amount.Amount
		}
	}
	assert.Equal(t, int64(87500), captured)
	assert.Equal(t, int64(77750), paid)

	adv, err = f.engine.AdvanceScheduledStates(ctx, checkOut.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)
}

func TestAdvanceRetriesFailedVoidAfterDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, false))
	created := f.create(t, "l-1", checkIn, 2)
	f.gateway.FailNext(memory.OpVoid, 1)

	res, err := f.engine.RespondToBooking(ctx, bookinghandlers.RespondToBookingCommand{BookingID: created.Booking.ID, HostID: "host-1", Accept: false})
	require.NoError(t, err)
	assert.Equal(t, "rejected", res.Booking.Status)
	assert.Equal(t, "authorized", res.Booking.PaymentStatus)
	assert.Equal(t, 0, f.gateway.Count(memory.OpVoid))

	adv, err := f.engine.AdvanceScheduledStates(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, "void", adv.Transitions[0].Effect)
	assert.Equal(t, domainbooking.StatusRejected, adv.Transitions[0].To)

	stored, err := f.engine.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "released", stored.PaymentStatus)
	assert.Equal(t, 1, f.gateway.Count(memory.OpVoid))

	adv, err = f.engine.AdvanceScheduledStates(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)
}

func TestAdvanceExpiresStaleRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, false))
	created := f.create(t, "l-1", checkIn, 2)

	adv, err := f.engine.AdvanceScheduledStates(ctx, start.Add(47*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adv.Transitions)

	adv, err = f.engine.AdvanceScheduledStates(ctx, start.Add(49*time.Hour))
	require.NoError(t, err)
	require.Len(t, adv.Transitions, 1)
	assert.Equal(t, domainbooking.StatusRejected, adv.Transitions[0].To)

	stored, err := f.engine.GetBooking(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "rejected", stored.Status)
	assert.Equal(t, "released", stored.PaymentStatus)
	assert.Equal(t, 2, f.notifier.Count("booking.expired"))
}

func TestValidationRejectsBadCommands(t *testing.T) {
	f := newFixture(t, makeListing(t, "l-1", domainlistings.PolicyModerate, true))
	ctx := context.Background()

	_, err := f.engine.CreateBooking(ctx, bookinghandlers.CreateBookingCommand{ListingID: "l-1", GuestID: "g", CheckIn: checkIn, CheckOut: checkIn.Add(day)})
	assert.True(t, domainerr.IsValidation(err))

	_, err = f.engine.CreateBooking(ctx, bookinghandlers.CreateBookingCommand{ListingID: "l-1", GuestID: "g", CheckIn: start.Add(-day), CheckOut: start.Add(day), Guests: 1})
	assert.True(t, domainerr.IsValidation(err))

	_, err = f.engine.CancelBooking(ctx, bookinghandlers.CancelBookingCommand{BookingID: "b", CancelledBy: "platform"})
	assert.True(t, domainerr.IsValidation(err))
}
