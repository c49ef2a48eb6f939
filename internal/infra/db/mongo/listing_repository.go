package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/domainerr"
	"stayengine/internal/domain/shared/money"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection(listingsCollection)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainerr.NewNotFoundError("listing", string(id))
		}
		return nil, err
	}
	return doc.toListing()
}

// Save upserts a catalog snapshot. Only fixtures and tests write listings.
func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	doc := newListingDocument(l)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

type listingDocument struct {
	ID              string      `bson:"_id"`
	HostID          string      `bson:"host_id"`
	Title           string      `bson:"title"`
	NightlyPrice    money.Money `bson:"nightly_price"`
	CleaningFee     money.Money `bson:"cleaning_fee"`
	WeeklyDiscount  string      `bson:"weekly_discount_percent"`
	MonthlyDiscount string      `bson:"monthly_discount_percent"`
	MaxGuests       int         `bson:"max_guests"`
	MinNights       int         `bson:"min_nights"`
	MaxNights       int         `bson:"max_nights"`
	Policy          string      `bson:"cancellation_policy"`
	InstantBook     bool        `bson:"instant_book"`
	CreatedAt       time.Time   `bson:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
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
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (d listingDocument) toListing() (*domainlistings.Listing, error) {
	weekly, err := parsePercent(d.WeeklyDiscount)
	if err != nil {
		return nil, err
	}
	monthly, err := parsePercent(d.MonthlyDiscount)
	if err != nil {
		return nil, err
	}
	return &domainlistings.Listing{
		ID:                     domainlistings.ListingID(d.ID),
		Host:                   domainlistings.HostID(d.HostID),
		Title:                  d.Title,
		NightlyPrice:           d.NightlyPrice,
		CleaningFee:            d.CleaningFee,
		WeeklyDiscountPercent:  weekly,
		MonthlyDiscountPercent: monthly,
		MaxGuests:              d.MaxGuests,
		MinNights:              d.MinNights,
		MaxNights:              d.MaxNights,
		Policy:                 domainlistings.PolicyTier(d.Policy),
		InstantBook:            d.InstantBook,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}, nil
}

func parsePercent(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
