package booking

import (
	"errors"
	"strings"
	"time"

	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/events"
)

var (
	ErrConcurrentUpdate    = errors.New("booking: concurrent update detected")
	ErrAlreadyCancelled    = errors.New("booking: cancellation already recorded")
	ErrCancellationPending = errors.New("booking: cancellation instructions outstanding")
)

// GuestCancellationFloor is the minimum notice a guest must give, whatever the
// listing policy says.
const GuestCancellationFloor = 24 * time.Hour

type BookingID string

// Cancellation is written once, when the split is decided, and only its
// settlement flags change afterwards.
type Cancellation struct {
	Reason       string                    `json:"reason" bson:"reason"`
	CancelledBy  Party                     `json:"cancelled_by" bson:"cancelled_by"`
	CancelledAt  time.Time                 `json:"cancelled_at" bson:"cancelled_at"`
	Split        cancellation.RefundSplit  `json:"split" bson:"split"`
	Extenuating  bool                      `json:"extenuating" bson:"extenuating"`
	Penalty      *cancellation.HostPenalty `json:"penalty,omitempty" bson:"penalty,omitempty"`
	RefundIssued bool                      `json:"refund_issued" bson:"refund_issued"`
	RefundRef    string                    `json:"refund_ref,omitempty" bson:"refund_ref,omitempty"`
	PayoutIssued bool                      `json:"payout_issued" bson:"payout_issued"`
	PayoutRef    string                    `json:"payout_ref,omitempty" bson:"payout_ref,omitempty"`
}

// Settled reports whether every money instruction of the cancellation went out.
func (c *Cancellation) Settled() bool {
	refundDone := c.RefundIssued || c.Split.GuestRefund.Amount <= 0
	payoutDone := c.PayoutIssued || c.Split.HostPayout.Amount <= 0
	return refundDone && payoutDone
}

type Booking struct {
	ID                  BookingID
	ListingID           listings.ListingID
	GuestID             string
	HostID              listings.HostID
	Range               daterange.DateRange
	Guests              int
	Price               pricing.PriceBreakdown
	Policy              listings.PolicyTier
	Status              Status
	PaymentStatus       PaymentStatus
	AuthorizationID     string
	CaptureID           string
	CompletionPayoutRef string
	Cancellation        *Cancellation
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int64
	events.EventRecorder
}

type CreateParams struct {
	ID        BookingID
	Listing   *listings.Listing
	GuestID   string
	Range     daterange.DateRange
	Guests    int
	Price     pricing.PriceBreakdown
	CreatedAt time.Time
}

// NewBooking builds a pending booking. The price must be a quote for exactly
// this listing and range.
func NewBooking(params CreateParams) (*Booking, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, domainerr.NewValidationError("id", "is required")
	}
	if params.Listing == nil {
		return nil, domainerr.NewValidationError("listing", "is required")
	}
	if strings.TrimSpace(params.GuestID) == "" {
		return nil, domainerr.NewValidationError("guest_id", "is required")
	}
	if params.GuestID == string(params.Listing.Host) {
		return nil, domainerr.NewValidationError("guest_id", "host cannot book own listing")
	}
	if params.Guests <= 0 {
		return nil, domainerr.NewValidationError("guests", "must be positive")
	}
	if err := params.Range.Validate(); err != nil {
		return nil, domainerr.NewValidationError("dates", err.Error())
	}
	if params.Price.Nights != params.Range.Nights() {
		return nil, domainerr.NewValidationError("nights", "price does not match the requested range")
	}
	if params.Price.Nights < params.Listing.MinNights {
		return nil, domainerr.NewValidationError("nights", "shorter than listing minimum stay")
	}
	if err := params.Price.Validate(); err != nil {
		return nil, domainerr.NewValidationError("price", err.Error())
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:            params.ID,
		ListingID:     params.Listing.ID,
		GuestID:       params.GuestID,
		HostID:        params.Listing.Host,
		Range:         params.Range,
		Guests:        params.Guests,
		Price:         params.Price,
		Policy:        params.Listing.Policy,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Record(BookingRequested{
		BookingID:   b.ID,
		ListingID:   b.ListingID,
		GuestID:     b.GuestID,
		HostID:      b.HostID,
		Range:       b.Range,
		GuestsCount: b.Guests,
		QuotedPrice: b.Price.Total,
		At:          now,
	})
	return b, nil
}

func (b *Booking) transition(to Status, now time.Time) error {
	if !b.Status.CanTransitionTo(to) {
		return domainerr.NewStateError(string(b.Status), string(to))
	}
	b.Status = to
	b.UpdatedAt = now.UTC()
	return nil
}

// Confirm moves a pending booking to confirmed, on host acceptance or instantly.
func (b *Booking) Confirm(now time.Time, instant bool) error {
	if err := b.transition(StatusConfirmed, now); err != nil {
		return err
	}
	b.Record(BookingConfirmed{BookingID: b.ID, ListingID: b.ListingID, Range: b.Range, Total: b.Price.Total, Instant: instant, At: b.UpdatedAt})
	return nil
}

// Reject covers host decline and request expiry.
func (b *Booking) Reject(reason string, now time.Time) error {
	if err := b.transition(StatusRejected, now); err != nil {
		return err
	}
	b.Record(BookingRejected{BookingID: b.ID, Reason: reason, At: b.UpdatedAt})
	return nil
}

// Activate starts the stay. It is a no-op error before check-in.
func (b *Booking) Activate(now time.Time) error {
	if now.Before(b.Range.CheckIn) {
		return domainerr.NewStateError(string(b.Status), string(StatusActive)+" before check-in")
	}
	if err := b.transition(StatusActive, now); err != nil {
		return err
	}
	b.Record(BookingActivated{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if now.Before(b.Range.CheckOut) {
		return domainerr.NewStateError(string(b.Status), string(StatusCompleted)+" before check-out")
	}
	if err := b.transition(StatusCompleted, now); err != nil {
		return err
	}
	payout, err := b.Price.CompletionPayout()
	if err != nil {
		return err
	}
	b.Record(BookingCompleted{BookingID: b.ID, Payout: payout, At: b.UpdatedAt})
	return nil
}

// GuestCancellationDeadline is the last instant a guest may still cancel.
func (b *Booking) GuestCancellationDeadline() time.Time {
	return b.Range.CheckIn.Add(-GuestCancellationFloor)
}

// CheckGuestCancellationWindow enforces hoursUntilCheckIn > 24.
func (b *Booking) CheckGuestCancellationWindow(now time.Time) error {
	deadline := b.GuestCancellationDeadline()
	if !now.Before(deadline) {
		return domainerr.NewPolicyViolationError("guest cancellation requires more than 24h notice before check-in", deadline)
	}
	return nil
}

// RecordCancellation stores the decided split and moves the booking into
// cancellation_pending. It can happen once per booking.
func (b *Booking) RecordCancellation(c Cancellation) error {
	if b.Cancellation != nil {
		return ErrAlreadyCancelled
	}
	if err := b.transition(StatusCancellationPending, c.CancelledAt); err != nil {
		return err
	}
	c.CancelledAt = c.CancelledAt.UTC()
	b.Cancellation = &c
	b.Record(CancellationRequested{BookingID: b.ID, CancelledBy: c.CancelledBy, Split: c.Split, At: b.UpdatedAt})
	if c.Penalty != nil && c.Penalty.CalendarBlocked {
		b.Record(HostCalendarBlocked{BookingID: b.ID, ListingID: b.ListingID, HostID: b.HostID, Range: b.Range, Penalty: *c.Penalty, At: b.UpdatedAt})
	}
	return nil
}

func (b *Booking) MarkRefundIssued(ref string, now time.Time) {
	if b.Cancellation == nil {
		return
	}
	b.Cancellation.RefundIssued = true
	b.Cancellation.RefundRef = ref
	b.UpdatedAt = now.UTC()
}

func (b *Booking) MarkPayoutIssued(ref string, now time.Time) {
	if b.Cancellation == nil {
		return
	}
	b.Cancellation.PayoutIssued = true
	b.Cancellation.PayoutRef = ref
	b.UpdatedAt = now.UTC()
}

// FinalizeCancellation closes a cancellation once every instruction went out.
func (b *Booking) FinalizeCancellation(now time.Time) error {
	if b.Cancellation == nil {
		return domainerr.NewStateError(string(b.Status), string(StatusCancelled))
	}
	if !b.Cancellation.Settled() {
		return ErrCancellationPending
	}
	if err := b.transition(StatusCancelled, now); err != nil {
		return err
	}
	switch {
	case b.Cancellation.Split.GuestRefund.Amount <= 0:
	case b.Cancellation.Split.GuestRefund.Amount >= b.Price.Total.Amount:
		b.PaymentStatus = PaymentRefunded
	default:
		b.PaymentStatus = PaymentPartiallyRefunded
	}
	c := b.Cancellation
	b.Record(BookingCancelled{
		BookingID:   b.ID,
		CancelledBy: c.CancelledBy,
		Refund:      c.Split.GuestRefund,
		Payout:      c.Split.HostPayout,
		Reason:      c.Reason,
		At:          b.UpdatedAt,
	})
	return nil
}

func (b *Booking) MarkAuthorized(authID string, now time.Time) {
	b.AuthorizationID = authID
	b.PaymentStatus = PaymentAuthorized
	b.UpdatedAt = now.UTC()
}

func (b *Booking) MarkCaptured(captureID string, now time.Time) error {
	if b.PaymentStatus != PaymentAuthorized {
		return domainerr.NewStateError("payment "+string(b.PaymentStatus), "payment "+string(PaymentCaptured))
	}
	b.CaptureID = captureID
	b.PaymentStatus = PaymentCaptured
	b.UpdatedAt = now.UTC()
	return nil
}

func (b *Booking) MarkAuthorizationReleased(now time.Time) {
	if b.PaymentStatus != PaymentAuthorized {
		return
	}
	b.PaymentStatus = PaymentReleased
	b.UpdatedAt = now.UTC()
}

func (b *Booking) MarkCompletionPayout(ref string, now time.Time) {
	b.CompletionPayoutRef = ref
	b.UpdatedAt = now.UTC()
}

// Clone returns a deep copy without pending events.
func (b *Booking) Clone() *Booking {
	c := *b
	c.EventRecorder = events.EventRecorder{}
	if b.Cancellation != nil {
		cc := *b.Cancellation
		if b.Cancellation.Penalty != nil {
			p := *b.Cancellation.Penalty
			cc.Penalty = &p
		}
		c.Cancellation = &cc
	}
	return &c
}
