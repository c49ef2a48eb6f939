package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var m bookingModel
	if err := Conn(ctx, r.db).Where("id = ?", string(id)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("booking", string(id))
		}
		return nil, err
	}
	return m.toAggregate(), nil
}

// Save updates the row only while its version still matches b.Version.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	m := toBookingModel(b)
	m.Version = b.Version + 1
	res := Conn(ctx, r.db).
		Model(&bookingModel{}).
		Where("id = ? AND version = ?", m.ID, b.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		if isRetryable(res.Error) {
			return errors.Join(domainbooking.ErrConcurrentUpdate, res.Error)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version = m.Version
	return nil
}

// CreateReserved serializes reservations per listing on a row lock of the
// listing guard, then checks overlaps and inserts. Without a transaction in ctx
// it opens its own.
func (r *BookingRepository) CreateReserved(ctx context.Context, b *domainbooking.Booking) error {
	if inTx(ctx) {
		return r.reserve(Conn(ctx, r.db), b)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.reserve(tx, b)
	})
}

func (r *BookingRepository) reserve(tx *gorm.DB, b *domainbooking.Booking) error {
	listingID := string(b.ListingID)
	guard := guardModel{ListingID: listingID, TouchedAt: time.Now().UTC()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&guard).Error; err != nil {
		return err
	}
	if err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("listing_id = ?", listingID).
		First(&guard).Error; err != nil {
		if isRetryable(err) {
			return domainerr.NewConflictError(listingID, "concurrent reservation in progress")
		}
		return err
	}

	var clash bookingModel
	err := overlapScope(tx.Model(&bookingModel{}), b.ListingID, b.Range).
		Select("id").
		Take(&clash).Error
	switch {
	case err == nil:
		return domainerr.NewConflictError(listingID, "dates overlap booking "+clash.ID)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	m := toBookingModel(b)
	m.Version = 1
	if err := tx.Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerr.NewValidationError("id", "booking already exists")
		}
		return err
	}
	if err := tx.Model(&guardModel{}).
		Where("listing_id = ?", listingID).
		Updates(map[string]any{"seq": gorm.Expr("seq + 1"), "touched_at": time.Now().UTC()}).Error; err != nil {
		return err
	}
	b.Version = 1
	return nil
}

func (r *BookingRepository) ListActiveForListing(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	var rows []bookingModel
	if err := overlapScope(Conn(ctx, r.db), listingID, dr).Order("check_in ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAggregates(rows), nil
}

func (r *BookingRepository) ListDue(ctx context.Context, q domainbooking.DueQuery) ([]*domainbooking.Booking, error) {
	db := Conn(ctx, r.db)
	cond := db.Where("status = ? AND (check_in <= ? OR payment_status = ?)",
		string(domainbooking.StatusConfirmed), q.Now.UTC(), string(domainbooking.PaymentAuthorized)).
		Or("status = ? AND (check_out <= ? OR payment_status = ?)",
			string(domainbooking.StatusActive), q.Now.UTC(), string(domainbooking.PaymentAuthorized)).
		Or("status = ? AND (completion_payout_ref = '' OR payment_status = ?)",
			string(domainbooking.StatusCompleted), string(domainbooking.PaymentAuthorized)).
		Or("status = ? AND payment_status = ?", string(domainbooking.StatusRejected), string(domainbooking.PaymentAuthorized)).
		Or("status = ?", string(domainbooking.StatusCancellationPending))
	if !q.PendingCreatedBefore.IsZero() {
		cond = cond.Or("status = ? AND created_at <= ?", string(domainbooking.StatusPending), q.PendingCreatedBefore.UTC())
	}
	query := db.Where(cond).Order("check_in ASC").Order("id ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var rows []bookingModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domainbooking.Booking, 0, len(rows))
	for _, b := range toAggregates(rows) {
		if domainbooking.IsDue(b, q) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *BookingRepository) CountHostCancellations(ctx context.Context, hostID listings.HostID, since time.Time) (int, error) {
	var n int64
	err := Conn(ctx, r.db).Model(&bookingModel{}).
		Where("host_id = ? AND cancelled_by = ? AND cancelled_at >= ? AND penalty_exempt = ?",
			string(hostID), string(domainbooking.PartyHost), since.UTC(), false).
		Count(&n).Error
	return int(n), err
}

func overlapScope(db *gorm.DB, listingID listings.ListingID, dr daterange.DateRange) *gorm.DB {
	occupying := make([]string, 0, len(domainbooking.OccupyingStatuses))
	for _, s := range domainbooking.OccupyingStatuses {
		occupying = append(occupying, string(s))
	}
	return db.Where("listing_id = ? AND status IN ? AND check_in < ? AND check_out > ?",
		string(listingID), occupying, dr.CheckOut.UTC(), dr.CheckIn.UTC())
}

func toAggregates(rows []bookingModel) []*domainbooking.Booking {
	out := make([]*domainbooking.Booking, len(rows))
	for i := range rows {
		out[i] = rows[i].toAggregate()
	}
	return out
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
