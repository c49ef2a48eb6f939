package postgres

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"stayengine/internal/app/uow"
	domainbooking "stayengine/internal/domain/booking"
	domainlistings "stayengine/internal/domain/listings"
)

var ErrUnitOfWorkNotConfigured = errors.New("postgres: unit of work factory missing database")

type Factory struct {
	DB *gorm.DB

	ListingsRepo domainlistings.Repository
	BookingsRepo domainbooking.Repository
}

func NewFactory(db *gorm.DB) Factory {
	return Factory{
		DB:           db,
		ListingsRepo: NewListingRepository(db),
		BookingsRepo: NewBookingRepository(db),
	}
}

// Begin opens a read committed transaction; the listing guard lock provides
// the isolation reservations need.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	tx := f.DB.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: opts.ReadOnly})
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Unit{tx: tx, listings: f.ListingsRepo, bookings: f.BookingsRepo}, nil
}

type Unit struct {
	tx   *gorm.DB
	done bool

	listings domainlistings.Repository
	bookings domainbooking.Repository
}

func (u *Unit) Listings() domainlistings.Repository { return u.listings }

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }

func (u *Unit) Commit(context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	err := u.tx.Commit().Error
	if isRetryable(err) {
		return errors.Join(domainbooking.ErrConcurrentUpdate, err)
	}
	return err
}

func (u *Unit) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	err := u.tx.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return WithTx(ctx, u.tx)
}

var (
	_ uow.UoWFactory      = Factory{}
	_ uow.ContextInjector = (*Unit)(nil)
)
