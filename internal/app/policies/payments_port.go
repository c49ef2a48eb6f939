package policies

import (
	"context"

	"stayengine/internal/domain/shared/money"
)

// PaymentGateway moves money. Every call carries an idempotency key; a gateway
// that sees a key again returns the original reference without acting twice.
type PaymentGateway interface {
	Authorize(ctx context.Context, key, bookingID string, amount money.Money) (authorizationID string, err error)
	Capture(ctx context.Context, key, authorizationID string, amount money.Money) (captureID string, err error)
	Void(ctx context.Context, key, authorizationID string) error
	Refund(ctx context.Context, key, captureID string, amount money.Money) (refundID string, err error)
	Payout(ctx context.Context, key, hostID string, amount money.Money) (payoutID string, err error)
}

func AuthorizeKey(bookingID string) string { return "authorize:" + bookingID }
func CaptureKey(bookingID string) string   { return "capture:" + bookingID }
func VoidKey(bookingID string) string      { return "void:" + bookingID }
func RefundKey(bookingID string) string    { return "refund:" + bookingID }
func PayoutKey(bookingID string) string    { return "payout:" + bookingID }

func CompletionPayoutKey(bookingID string) string { return "completion-payout:" + bookingID }
