package postgres

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/domainerr"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var m listingModel
	if err := Conn(ctx, r.db).Where("id = ?", string(id)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("listing", string(id))
		}
		return nil, err
	}
	weekly, err := decimal.NewFromString(orZero(m.WeeklyDiscount))
	if err != nil {
		return nil, err
	}
	monthly, err := decimal.NewFromString(orZero(m.MonthlyDiscount))
	if err != nil {
		return nil, err
	}
	return &domainlistings.Listing{
		ID:                     domainlistings.ListingID(m.ID),
		Host:                   domainlistings.HostID(m.HostID),
		Title:                  m.Title,
		NightlyPrice:           m.NightlyPrice,
		CleaningFee:            m.CleaningFee,
		WeeklyDiscountPercent:  weekly,
		MonthlyDiscountPercent: monthly,
		MaxGuests:              m.MaxGuests,
		MinNights:              m.MinNights,
		MaxNights:              m.MaxNights,
		Policy:                 domainlistings.PolicyTier(m.Policy),
		InstantBook:            m.InstantBook,
		CreatedAt:              m.CreatedAt.UTC(),
		UpdatedAt:              m.UpdatedAt.UTC(),
	}, nil
}

// Save upserts a catalog snapshot.
func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	m := listingModel{
		ID:              string(l.ID),
		HostID:          string(l.Host),
		Title:           l.Title,
		NightlyPrice:    l.NightlyPrice,
		CleaningFee:     l.CleaningFee,
		WeeklyDiscount:  l.WeeklyDiscountPercent.String(),
		MonthlyDiscount: l.MonthlyDiscountPercent.String(),
		MaxGuests:       l.MaxGuests,
		MinNights:       l.MinNights,
		MaxNights:       l.MaxNights,
		Policy:          string(l.Policy),
		InstantBook:     l.InstantBook,
		CreatedAt:       l.CreatedAt.UTC(),
		UpdatedAt:       l.UpdatedAt.UTC(),
	}
	return Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
