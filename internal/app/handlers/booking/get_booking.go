package booking

import (
	"context"
	"strings"

	"stayengine/internal/app/dto"
	"stayengine/internal/app/queries"
	"stayengine/internal/app/uow"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/shared/domainerr"
)

const getBookingKey = "booking.get"

type GetBookingQuery struct {
	BookingID string
}

func (q GetBookingQuery) Key() string { return getBookingKey }

func (q GetBookingQuery) Validate() error {
	if strings.TrimSpace(q.BookingID) == "" {
		return domainerr.NewValidationError("booking_id", "is required")
	}
	return nil
}

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.BookingDTO, error) {
	var out dto.BookingDTO
	err := uow.Run(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(q.BookingID))
		if err != nil {
			return err
		}
		out = dto.MapBooking(b)
		return nil
	})
	return out, err
}

var _ queries.Handler[GetBookingQuery, dto.BookingDTO] = (*GetBookingHandler)(nil)
