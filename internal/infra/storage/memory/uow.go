package memory

import (
	"context"
	"errors"

	"stayengine/internal/app/uow"
	domainbooking "stayengine/internal/domain/booking"
	domainlistings "stayengine/internal/domain/listings"
)

// Factory hands out units over the shared in-memory repositories. There is no
// isolation; atomicity comes from the repositories' own locks.
type Factory struct {
	ListingsRepo domainlistings.Repository
	BookingsRepo domainbooking.Repository
}

var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

func (f Factory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ListingsRepo == nil || f.BookingsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{listings: f.ListingsRepo, bookings: f.BookingsRepo}, nil
}

type Unit struct {
	listings domainlistings.Repository
	bookings domainbooking.Repository
}

func (u *Unit) Listings() domainlistings.Repository { return u.listings }

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }

func (u *Unit) Commit(context.Context) error { return nil }

func (u *Unit) Rollback(context.Context) error { return nil }
