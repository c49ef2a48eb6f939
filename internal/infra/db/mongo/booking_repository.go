package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/listings"
	domainpricing "stayengine/internal/domain/pricing"
	domainrange "stayengine/internal/domain/shared/daterange"
	"stayengine/internal/domain/shared/domainerr"
)

type BookingRepository struct {
	col    *mongo.Collection
	guards *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(bookingsCollection), guards: db.Collection(guardsCollection)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainerr.NewNotFoundError("booking", string(id))
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": b.Version}, doc)
	if err != nil {
		if isWriteConflict(err) {
			return domainbooking.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

// CreateReserved bumps the listing guard document before checking overlaps, so
// two transactions reserving the same listing conflict on the guard and only
// one of them commits. Without a session in ctx it runs its own transaction.
func (r *BookingRepository) CreateReserved(ctx context.Context, b *domainbooking.Booking) error {
	if mongo.SessionFromContext(ctx) != nil {
		return r.reserve(ctx, b)
	}
	session, err := r.col.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, r.reserve(sc, b)
	})
	return err
}

func (r *BookingRepository) reserve(ctx context.Context, b *domainbooking.Booking) error {
	listingID := string(b.ListingID)
	_, err := r.guards.UpdateOne(ctx,
		bson.M{"_id": listingID},
		bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"touched_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if isWriteConflict(err) {
			return domainerr.NewConflictError(listingID, "concurrent reservation in progress")
		}
		return err
	}

	var clash bookingDocument
	err = r.col.FindOne(ctx, overlapFilter(b.ListingID, b.Range)).Decode(&clash)
	switch {
	case err == nil:
		return domainerr.NewConflictError(listingID, "dates overlap booking "+clash.ID)
	case !errors.Is(err, mongo.ErrNoDocuments):
		return err
	}

	doc := newBookingDocument(b)
	doc.Version = 1
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainerr.NewValidationError("id", "booking already exists")
		}
		if isWriteConflict(err) {
			return domainerr.NewConflictError(listingID, "concurrent reservation in progress")
		}
		return err
	}
	b.Version = 1
	return nil
}

func (r *BookingRepository) ListActiveForListing(ctx context.Context, listingID listings.ListingID, dr domainrange.DateRange) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "range.check_in", Value: 1}})
	return r.find(ctx, overlapFilter(listingID, dr), opts)
}

func (r *BookingRepository) ListDue(ctx context.Context, q domainbooking.DueQuery) ([]*domainbooking.Booking, error) {
	now := q.Now.UnixMilli()
	clauses := bson.A{
		bson.M{"status": string(domainbooking.StatusConfirmed), "$or": bson.A{
			bson.M{"range.check_in": bson.M{"$lte": now}},
			bson.M{"payment_status": string(domainbooking.PaymentAuthorized)},
		}},
		bson.M{"status": string(domainbooking.StatusActive), "$or": bson.A{
			bson.M{"range.check_out": bson.M{"$lte": now}},
			bson.M{"payment_status": string(domainbooking.PaymentAuthorized)},
		}},
		bson.M{"status": string(domainbooking.StatusCompleted), "$or": bson.A{
			bson.M{"completion_payout_ref": ""},
			bson.M{"payment_status": string(domainbooking.PaymentAuthorized)},
		}},
		bson.M{"status": string(domainbooking.StatusRejected), "payment_status": string(domainbooking.PaymentAuthorized)},
		bson.M{"status": string(domainbooking.StatusCancellationPending)},
	}
	if !q.PendingCreatedBefore.IsZero() {
		clauses = append(clauses, bson.M{
			"status":     string(domainbooking.StatusPending),
			"created_at": bson.M{"$lte": q.PendingCreatedBefore.UnixMilli()},
		})
	}
	opts := options.Find().SetSort(bson.D{{Key: "range.check_in", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	found, err := r.find(ctx, bson.M{"$or": clauses}, opts)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, b := range found {
		if domainbooking.IsDue(b, q) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *BookingRepository) CountHostCancellations(ctx context.Context, hostID listings.HostID, since time.Time) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"host_id":                     string(hostID),
		"cancellation.cancelled_by":   string(domainbooking.PartyHost),
		"cancellation.cancelled_at":   bson.M{"$gte": since.UTC()},
		"cancellation.penalty.exempt": bson.M{"$ne": true},
	})
	return int(n), err
}

func (r *BookingRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainbooking.Booking
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func overlapFilter(listingID listings.ListingID, dr domainrange.DateRange) bson.M {
	occupying := make(bson.A, 0, len(domainbooking.OccupyingStatuses))
	for _, s := range domainbooking.OccupyingStatuses {
		occupying = append(occupying, string(s))
	}
	return bson.M{
		"listing_id":      string(listingID),
		"status":          bson.M{"$in": occupying},
		"range.check_in":  bson.M{"$lt": dr.CheckOut.UnixMilli()},
		"range.check_out": bson.M{"$gt": dr.CheckIn.UnixMilli()},
	}
}

type bookingDocument struct {
	ID                  string                       `bson:"_id"`
	ListingID           string                       `bson:"listing_id"`
	GuestID             string                       `bson:"guest_id"`
	HostID              string                       `bson:"host_id"`
	Range               rangeDocument                `bson:"range"`
	Guests              int                          `bson:"guests"`
	Price               domainpricing.PriceBreakdown `bson:"price"`
	Policy              string                       `bson:"cancellation_policy"`
	Status              string                       `bson:"status"`
	PaymentStatus       string                       `bson:"payment_status"`
	AuthorizationID     string                       `bson:"authorization_id"`
	CaptureID           string                       `bson:"capture_id"`
	CompletionPayoutRef string                       `bson:"completion_payout_ref"`
	Cancellation        *domainbooking.Cancellation  `bson:"cancellation,omitempty"`
	CreatedAt           int64                        `bson:"created_at"`
	UpdatedAt           int64                        `bson:"updated_at"`
	Version             int64                        `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:                  string(b.ID),
		ListingID:           string(b.ListingID),
		GuestID:             b.GuestID,
		HostID:              string(b.HostID),
		Range:               rangeDocument{CheckIn: b.Range.CheckIn.UnixMilli(), CheckOut: b.Range.CheckOut.UnixMilli()},
		Guests:              b.Guests,
		Price:               b.Price,
		Policy:              string(b.Policy),
		Status:              string(b.Status),
		PaymentStatus:       string(b.PaymentStatus),
		AuthorizationID:     b.AuthorizationID,
		CaptureID:           b.CaptureID,
		CompletionPayoutRef: b.CompletionPayoutRef,
		Cancellation:        b.Cancellation,
		CreatedAt:           b.CreatedAt.UnixMilli(),
		UpdatedAt:           b.UpdatedAt.UnixMilli(),
		Version:             b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	var cancellation *domainbooking.Cancellation
	if d.Cancellation != nil {
		c := *d.Cancellation
		c.CancelledAt = c.CancelledAt.UTC()
		cancellation = &c
	}
	return &domainbooking.Booking{
		ID:                  domainbooking.BookingID(d.ID),
		ListingID:           listings.ListingID(d.ListingID),
		GuestID:             d.GuestID,
		HostID:              listings.HostID(d.HostID),
		Range:               domainrange.DateRange{CheckIn: timestampToTime(d.Range.CheckIn), CheckOut: timestampToTime(d.Range.CheckOut)},
		Guests:              d.Guests,
		Price:               d.Price,
		Policy:              listings.PolicyTier(d.Policy),
		Status:              domainbooking.Status(d.Status),
		PaymentStatus:       domainbooking.PaymentStatus(d.PaymentStatus),
		AuthorizationID:     d.AuthorizationID,
		CaptureID:           d.CaptureID,
		CompletionPayoutRef: d.CompletionPayoutRef,
		Cancellation:        cancellation,
		CreatedAt:           timestampToTime(d.CreatedAt),
		UpdatedAt:           timestampToTime(d.UpdatedAt),
		Version:             d.Version,
	}
}

type rangeDocument struct {
	CheckIn  int64 `bson:"check_in"`
	CheckOut int64 `bson:"check_out"`
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
