package dto

import (
	"time"

	"stayengine/internal/app/refunds"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/cancellation"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{Amount: value.Amount, Currency: value.Currency}
}

type PriceBreakdownDTO struct {
	Nights          int      `json:"nights"`
	Nightly         MoneyDTO `json:"nightly"`
	Subtotal        MoneyDTO `json:"subtotal"`
	Discount        MoneyDTO `json:"discount"`
	CleaningFee     MoneyDTO `json:"cleaning_fee"`
	GuestServiceFee MoneyDTO `json:"guest_service_fee"`
	HostServiceFee  MoneyDTO `json:"host_service_fee"`
	Total           MoneyDTO `json:"total"`
}

func MapPrice(p pricing.PriceBreakdown) PriceBreakdownDTO {
	return PriceBreakdownDTO{
		Nights:          p.Nights,
		Nightly:         MapMoney(p.Nightly),
		Subtotal:        MapMoney(p.Subtotal),
		Discount:        MapMoney(p.Discount),
		CleaningFee:     MapMoney(p.CleaningFee),
		GuestServiceFee: MapMoney(p.GuestServiceFee),
		HostServiceFee:  MapMoney(p.HostServiceFee),
		Total:           MapMoney(p.Total),
	}
}

type CancellationDTO struct {
	CancelledBy  string    `json:"cancelled_by"`
	CancelledAt  time.Time `json:"cancelled_at"`
	Reason       string    `json:"reason,omitempty"`
	Tier         string    `json:"tier"`
	GuestRefund  MoneyDTO  `json:"guest_refund"`
	HostPayout   MoneyDTO  `json:"host_payout"`
	Override     bool      `json:"override"`
	RefundIssued bool      `json:"refund_issued"`
	PayoutIssued bool      `json:"payout_issued"`
}

type BookingDTO struct {
	ID            string            `json:"id"`
	ListingID     string            `json:"listing_id"`
	GuestID       string            `json:"guest_id"`
	HostID        string            `json:"host_id"`
	CheckIn       time.Time         `json:"check_in"`
	CheckOut      time.Time         `json:"check_out"`
	Guests        int               `json:"guests"`
	Policy        string            `json:"cancellation_policy"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Price         PriceBreakdownDTO `json:"price"`
	Cancellation  *CancellationDTO  `json:"cancellation,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func MapBooking(b *domainbooking.Booking) BookingDTO {
	out := BookingDTO{
		ID:            string(b.ID),
		ListingID:     string(b.ListingID),
		GuestID:       b.GuestID,
		HostID:        string(b.HostID),
		CheckIn:       b.Range.CheckIn,
		CheckOut:      b.Range.CheckOut,
		Guests:        b.Guests,
		Policy:        string(b.Policy),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Price:         MapPrice(b.Price),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if c := b.Cancellation; c != nil {
		out.Cancellation = &CancellationDTO{
			CancelledBy:  string(c.CancelledBy),
			CancelledAt:  c.CancelledAt,
			Reason:       c.Reason,
			Tier:         string(c.Split.Tier),
			GuestRefund:  MapMoney(c.Split.GuestRefund),
			HostPayout:   MapMoney(c.Split.HostPayout),
			Override:     c.Split.Override,
			RefundIssued: c.RefundIssued,
			PayoutIssued: c.PayoutIssued,
		}
	}
	return out
}

type RefundDeadlinesDTO struct {
	FullRefundUntil    time.Time  `json:"full_refund_until"`
	PartialRefundUntil *time.Time `json:"partial_refund_until,omitempty"`
	GuestCancelUntil   time.Time  `json:"guest_cancel_until"`
}

type QuoteDTO struct {
	ListingID string             `json:"listing_id"`
	CheckIn   time.Time          `json:"check_in"`
	CheckOut  time.Time          `json:"check_out"`
	Guests    int                `json:"guests"`
	Available bool               `json:"available"`
	Policy    string             `json:"cancellation_policy"`
	Price     PriceBreakdownDTO  `json:"price"`
	Deadlines RefundDeadlinesDTO `json:"deadlines"`
}

// OutcomeDTO is the transport form of a cancellation outcome.
type OutcomeDTO struct {
	BookingID    string          `json:"booking_id"`
	Status       string          `json:"status"`
	CancelledBy  string          `json:"cancelled_by"`
	Tier         string          `json:"tier"`
	GuestRefund  MoneyDTO        `json:"guest_refund"`
	HostPayout   MoneyDTO        `json:"host_payout"`
	Retained     MoneyDTO        `json:"retained"`
	Override     bool            `json:"override"`
	RefundIssued bool            `json:"refund_issued"`
	PayoutIssued bool            `json:"payout_issued"`
	Pending      bool            `json:"pending"`
	Penalty      *HostPenaltyDTO `json:"host_penalty,omitempty"`
}

func MapOutcome(o refunds.Outcome) OutcomeDTO {
	return OutcomeDTO{
		BookingID:    o.BookingID,
		Status:       string(o.Status),
		CancelledBy:  string(o.CancelledBy),
		Tier:         string(o.Tier),
		GuestRefund:  MapMoney(o.GuestRefund),
		HostPayout:   MapMoney(o.HostPayout),
		Retained:     MapMoney(o.Retained),
		Override:     o.Override,
		RefundIssued: o.RefundIssued,
		PayoutIssued: o.PayoutIssued,
		Pending:      o.Pending(),
		Penalty:      MapPenalty(o.Penalty),
	}
}

type HostPenaltyDTO struct {
	Exempt          bool     `json:"exempt"`
	Offense         int      `json:"offense"`
	Severity        string   `json:"severity"`
	Fee             MoneyDTO `json:"fee"`
	CalendarBlocked bool     `json:"calendar_blocked"`
	ReviewRequired  bool     `json:"review_required"`
}

func MapPenalty(p *cancellation.HostPenalty) *HostPenaltyDTO {
	if p == nil {
		return nil
	}
	return &HostPenaltyDTO{
		Exempt:          p.Exempt,
		Offense:         p.Offense,
		Severity:        string(p.Severity),
		Fee:             MapMoney(p.Fee),
		CalendarBlocked: p.CalendarBlocked,
		ReviewRequired:  p.ReviewRequired,
	}
}
