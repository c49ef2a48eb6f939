package booking

import (
	"time"

	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/money"
)

type BookingRequested struct {
	BookingID   BookingID           `json:"booking_id"`
	ListingID   listings.ListingID  `json:"listing_id"`
	GuestID     string              `json:"guest_id"`
	HostID      listings.HostID     `json:"host_id"`
	Range       daterange.DateRange `json:"range"`
	GuestsCount int                 `json:"guests"`
	QuotedPrice money.Money         `json:"quoted_price"`
	At          time.Time           `json:"at"`
}

func (e BookingRequested) EventName() string     { return "booking.requested" }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingConfirmed struct {
	BookingID BookingID           `json:"booking_id"`
	ListingID listings.ListingID  `json:"listing_id"`
	Range     daterange.DateRange `json:"range"`
	Total     money.Money         `json:"total"`
	Instant   bool                `json:"instant"`
	At        time.Time           `json:"at"`
}

func (e BookingConfirmed) EventName() string     { return "booking.confirmed" }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingRejected struct {
	BookingID BookingID `json:"booking_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

func (e BookingRejected) EventName() string     { return "booking.rejected" }
func (e BookingRejected) AggregateID() string   { return string(e.BookingID) }
func (e BookingRejected) OccurredAt() time.Time { return e.At }

type BookingActivated struct {
	BookingID BookingID `json:"booking_id"`
	At        time.Time `json:"at"`
}

func (e BookingActivated) EventName() string     { return "booking.activated" }
func (e BookingActivated) AggregateID() string   { return string(e.BookingID) }
func (e BookingActivated) OccurredAt() time.Time { return e.At }

type BookingCompleted struct {
	BookingID BookingID   `json:"booking_id"`
	Payout    money.Money `json:"payout"`
	At        time.Time   `json:"at"`
}

func (e BookingCompleted) EventName() string     { return "booking.completed" }
func (e BookingCompleted) AggregateID() string   { return string(e.BookingID) }
func (e BookingCompleted) OccurredAt() time.Time { return e.At }

type CancellationRequested struct {
	BookingID   BookingID                `json:"booking_id"`
	CancelledBy Party                    `json:"cancelled_by"`
	Split       cancellation.RefundSplit `json:"split"`
	At          time.Time                `json:"at"`
}

func (e CancellationRequested) EventName() string     { return "booking.cancellation_requested" }
func (e CancellationRequested) AggregateID() string   { return string(e.BookingID) }
func (e CancellationRequested) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID   BookingID   `json:"booking_id"`
	CancelledBy Party       `json:"cancelled_by"`
	Refund      money.Money `json:"refund"`
	Payout      money.Money `json:"payout"`
	Reason      string      `json:"reason"`
	At          time.Time   `json:"at"`
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type HostCalendarBlocked struct {
	BookingID BookingID                `json:"booking_id"`
	ListingID listings.ListingID       `json:"listing_id"`
	HostID    listings.HostID          `json:"host_id"`
	Range     daterange.DateRange      `json:"range"`
	Penalty   cancellation.HostPenalty `json:"penalty"`
	At        time.Time                `json:"at"`
}

func (e HostCalendarBlocked) EventName() string     { return "booking.host_calendar_blocked" }
func (e HostCalendarBlocked) AggregateID() string   { return string(e.BookingID) }
func (e HostCalendarBlocked) OccurredAt() time.Time { return e.At }
