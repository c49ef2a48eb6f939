package booking

import (
	"context"
	"strings"
	"time"

	"stayengine/internal/app/dto"
	"stayengine/internal/app/queries"
	"stayengine/internal/app/uow"
	"stayengine/internal/domain/availability"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/cancellation"
	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

const quoteKey = "booking.quote"

type QuoteQuery struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

func (q QuoteQuery) Key() string { return quoteKey }

func (q QuoteQuery) Validate() error {
	if strings.TrimSpace(q.ListingID) == "" {
		return domainerr.NewValidationError("listing_id", "is required")
	}
	return nil
}

// QuoteHandler prices a stay and reports whether the dates are currently free.
// It has no side effects.
type QuoteHandler struct {
	UoWFactory uow.UoWFactory
	Pricing    pricing.Calculator
}

func (h *QuoteHandler) Handle(ctx context.Context, q QuoteQuery) (dto.QuoteDTO, error) {
	var out dto.QuoteDTO
	err := uow.Run(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(q.ListingID))
		if err != nil {
			return err
		}
		price, err := h.Pricing.Quote(listing, q.CheckIn, q.CheckOut, q.Guests)
		if err != nil {
			return err
		}
		dr := daterange.DateRange{CheckIn: q.CheckIn.UTC(), CheckOut: q.CheckOut.UTC()}
		free, err := availability.NewChecker(unit.Bookings(), nil).IsAvailable(ctx, listing.ID, dr)
		if err != nil {
			return err
		}
		out = dto.QuoteDTO{
			ListingID: string(listing.ID),
			CheckIn:   dr.CheckIn,
			CheckOut:  dr.CheckOut,
			Guests:    q.Guests,
			Available: free,
			Policy:    string(listing.Policy),
			Price:     dto.MapPrice(price),
			Deadlines: deadlines(listing.Policy, price.Nights, dr.CheckIn),
		}
		return nil
	})
	return out, err
}

func deadlines(policy domainlistings.PolicyTier, nights int, checkIn time.Time) dto.RefundDeadlinesDTO {
	if policy == domainlistings.PolicyLongTerm && nights < cancellation.LongTermMinNights {
		policy = domainlistings.PolicyStrict
	}
	full, partial := cancellation.Deadlines(policy, checkIn)
	out := dto.RefundDeadlinesDTO{
		FullRefundUntil:  full,
		GuestCancelUntil: checkIn.Add(-domainbooking.GuestCancellationFloor),
	}
	if !partial.IsZero() {
		out.PartialRefundUntil = &partial
	}
	return out
}

var _ queries.Handler[QuoteQuery, dto.QuoteDTO] = (*QuoteHandler)(nil)
