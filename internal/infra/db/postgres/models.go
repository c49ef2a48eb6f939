package postgres

import (
	"time"

	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/listings"
	domainpricing "stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/money"
)

type listingModel struct {
	ID              string      `gorm:"primaryKey;size:64"`
	HostID          string      `gorm:"size:64;index;not null"`
	Title           string      `gorm:"size:200"`
	NightlyPrice    money.Money `gorm:"serializer:json;type:jsonb;not null"`
	CleaningFee     money.Money `gorm:"serializer:json;type:jsonb;not null"`
	WeeklyDiscount  string      `gorm:"size:16;not null;default:'0'"`
	MonthlyDiscount string      `gorm:"size:16;not null;default:'0'"`
	MaxGuests       int         `gorm:"not null"`
	MinNights       int         `gorm:"not null;default:1"`
	MaxNights       int         `gorm:"not null;default:0"`
	Policy          string      `gorm:"size:20;not null"`
	InstantBook     bool        `gorm:"not null;default:false"`
	CreatedAt       time.Time   `gorm:"not null;autoCreateTime:false"`
	UpdatedAt       time.Time   `gorm:"not null;autoUpdateTime:false"`
}

func (listingModel) TableName() string { return "listings" }

// bookingModel keeps the cancellation record as JSON and copies the fields the
// penalty count filters on into plain columns.
type bookingModel struct {
	ID                  string                       `gorm:"primaryKey;size:64"`
	ListingID           string                       `gorm:"size:64;not null;index:idx_bookings_listing_range,priority:1"`
	GuestID             string                       `gorm:"size:64;not null;index"`
	HostID              string                       `gorm:"size:64;not null;index"`
	CheckIn             time.Time                    `gorm:"not null;index:idx_bookings_listing_range,priority:2"`
	CheckOut            time.Time                    `gorm:"not null"`
	Guests              int                          `gorm:"not null"`
	Price               domainpricing.PriceBreakdown `gorm:"serializer:json;type:jsonb;not null"`
	Policy              string                       `gorm:"size:20;not null"`
	Status              string                       `gorm:"size:30;not null;index"`
	PaymentStatus       string                       `gorm:"size:30;not null"`
	AuthorizationID     string                       `gorm:"size:128"`
	CaptureID           string                       `gorm:"size:128"`
	CompletionPayoutRef string                       `gorm:"size:128"`
	Cancellation        *domainbooking.Cancellation  `gorm:"serializer:json;type:jsonb"`
	CancelledBy         string                       `gorm:"size:10;index:idx_bookings_host_cancel,priority:2"`
	CancelledAt         *time.Time                   `gorm:"index:idx_bookings_host_cancel,priority:3"`
	PenaltyExempt       bool                         `gorm:"not null;default:false"`
	CreatedAt           time.Time                    `gorm:"not null;autoCreateTime:false"`
	UpdatedAt           time.Time                    `gorm:"not null;autoUpdateTime:false"`
	Version             int64                        `gorm:"not null;default:1"`
}

func (bookingModel) TableName() string { return "bookings" }

// guardModel is the per-listing row reservations lock before they look for
// overlaps.
type guardModel struct {
	ListingID string    `gorm:"primaryKey;size:64"`
	Seq       int64     `gorm:"not null;default:0"`
	TouchedAt time.Time `gorm:"not null"`
}

func (guardModel) TableName() string { return "listing_guards" }

type idempotencyModel struct {
	Key        string    `gorm:"primaryKey;size:200"`
	Command    string    `gorm:"size:100;not null"`
	Payload    []byte    `gorm:"type:bytea"`
	OccurredAt time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (idempotencyModel) TableName() string { return "app_idempotency" }

func toBookingModel(b *domainbooking.Booking) bookingModel {
	m := bookingModel{
		ID:                  string(b.ID),
		ListingID:           string(b.ListingID),
		GuestID:             b.GuestID,
		HostID:              string(b.HostID),
		CheckIn:             b.Range.CheckIn.UTC(),
		CheckOut:            b.Range.CheckOut.UTC(),
		Guests:              b.Guests,
		Price:               b.Price,
		Policy:              string(b.Policy),
		Status:              string(b.Status),
		PaymentStatus:       string(b.PaymentStatus),
		AuthorizationID:     b.AuthorizationID,
		CaptureID:           b.CaptureID,
		CompletionPayoutRef: b.CompletionPayoutRef,
		Cancellation:        b.Cancellation,
		CreatedAt:           b.CreatedAt.UTC(),
		UpdatedAt:           b.UpdatedAt.UTC(),
		Version:             b.Version,
	}
	if c := b.Cancellation; c != nil {
		at := c.CancelledAt.UTC()
		m.CancelledBy = string(c.CancelledBy)
		m.CancelledAt = &at
		m.PenaltyExempt = c.Penalty != nil && c.Penalty.Exempt
	}
	return m
}

func (m bookingModel) toAggregate() *domainbooking.Booking {
	var c *domainbooking.Cancellation
	if m.Cancellation != nil {
		cp := *m.Cancellation
		cp.CancelledAt = cp.CancelledAt.UTC()
		c = &cp
	}
	return &domainbooking.Booking{
		ID:                  domainbooking.BookingID(m.ID),
		ListingID:           listings.ListingID(m.ListingID),
		GuestID:             m.GuestID,
		HostID:              listings.HostID(m.HostID),
		Range:               daterange.DateRange{CheckIn: m.CheckIn.UTC(), CheckOut: m.CheckOut.UTC()},
		Guests:              m.Guests,
		Price:               m.Price,
		Policy:              listings.PolicyTier(m.Policy),
		Status:              domainbooking.Status(m.Status),
		PaymentStatus:       domainbooking.PaymentStatus(m.PaymentStatus),
		AuthorizationID:     m.AuthorizationID,
		CaptureID:           m.CaptureID,
		CompletionPayoutRef: m.CompletionPayoutRef,
		Cancellation:        c,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
		Version:             m.Version,
	}
}
