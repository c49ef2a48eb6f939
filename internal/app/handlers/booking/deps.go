package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stayengine/internal/app/outbox"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/uow"
	domainbooking "stayengine/internal/domain/booking"
	"stayengine/internal/domain/shared/domainerr"
)

const maxSaveAttempts = 3

// Deps are the collaborators shared by the booking handlers.
type Deps struct {
	UoWFactory uow.UoWFactory
	Gateway    policies.PaymentGateway
	Notifier   policies.Notifier
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Clock      func() time.Time
	NewID      func() string
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) load(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var b *domainbooking.Booking
	err := uow.Run(ctx, d.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		b, err = unit.Bookings().ByID(ctx, id)
		return err
	})
	return b, err
}

// mutation changes a freshly loaded booking and reports whether it has to be saved.
type mutation func(b *domainbooking.Booking) (bool, error)

// persist applies mutate to the stored booking in its own unit of work,
// reloading and retrying when a concurrent writer bumped the version.
func (d Deps) persist(ctx context.Context, id domainbooking.BookingID, mutate mutation) (*domainbooking.Booking, bool, error) {
	var (
		out     *domainbooking.Booking
		changed bool
		err     error
	)
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err = uow.Run(context.WithoutCancel(ctx), d.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
			b, err := unit.Bookings().ByID(ctx, id)
			if err != nil {
				return err
			}
			out = b
			changed, err = mutate(b)
			if err != nil || !changed {
				return err
			}
			if err := unit.Bookings().Save(ctx, b); err != nil {
				return err
			}
			return outbox.Drain(ctx, d.Outbox, d.Encoder, b)
		})
		if !errors.Is(err, domainbooking.ErrConcurrentUpdate) {
			break
		}
	}
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// capture takes the authorized amount of a confirmed, active or completed
// booking. Failures are logged and left for the scheduled reconciliation.
func (d Deps) capture(ctx context.Context, b *domainbooking.Booking) *domainbooking.Booking {
	switch b.Status {
	case domainbooking.StatusConfirmed, domainbooking.StatusActive, domainbooking.StatusCompleted:
	default:
		return b
	}
	if b.PaymentStatus != domainbooking.PaymentAuthorized {
		return b
	}
	captureID, err := d.Gateway.Capture(ctx, policies.CaptureKey(string(b.ID)), b.AuthorizationID, b.Price.Total)
	if err != nil {
		d.logger().WarnContext(ctx, "capture failed", "booking_id", b.ID, "error", domainerr.NewPaymentError("capture", err))
		return b
	}
	updated, _, err := d.persist(ctx, b.ID, func(b *domainbooking.Booking) (bool, error) {
		if b.PaymentStatus != domainbooking.PaymentAuthorized {
			return false, nil
		}
		return true, b.MarkCaptured(captureID, d.now())
	})
	if err != nil {
		d.logger().ErrorContext(ctx, "cannot record capture", "booking_id", b.ID, "capture_id", captureID, "error", err)
		return b
	}
	return updated
}

// release voids the authorization of a booking that will never be charged.
func (d Deps) release(ctx context.Context, b *domainbooking.Booking) *domainbooking.Booking {
	if b.PaymentStatus != domainbooking.PaymentAuthorized {
		return b
	}
	if err := d.Gateway.Void(ctx, policies.VoidKey(string(b.ID)), b.AuthorizationID); err != nil {
		d.logger().WarnContext(ctx, "void failed", "booking_id", b.ID, "error", domainerr.NewPaymentError("void", err))
		return b
	}
	updated, _, err := d.persist(ctx, b.ID, func(b *domainbooking.Booking) (bool, error) {
		if b.PaymentStatus != domainbooking.PaymentAuthorized {
			return false, nil
		}
		b.MarkAuthorizationReleased(d.now())
		return true, nil
	})
	if err != nil {
		d.logger().ErrorContext(ctx, "cannot record void", "booking_id", b.ID, "error", err)
		return b
	}
	return updated
}

func (d Deps) notify(ctx context.Context, eventType string, b *domainbooking.Booking, recipients ...string) {
	payload := map[string]any{
		"booking_id": string(b.ID),
		"listing_id": string(b.ListingID),
		"status":     string(b.Status),
		"check_in":   b.Range.CheckIn,
		"check_out":  b.Range.CheckOut,
	}
	policies.NotifyAll(context.WithoutCancel(ctx), d.Notifier, d.logger(), eventType, payload, recipients...)
}
