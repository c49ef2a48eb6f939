// Package fixtures seeds listings from a JSON file for stores that have no catalog behind them.
package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"stayengine/internal/domain/listings"
	"stayengine/internal/domain/shared/money"
)

type ListingSaver interface {
	Save(ctx context.Context, listing *listings.Listing) error
}

type listingFixture struct {
	ID                 string          `json:"id"`
	Host               string          `json:"host_id"`
	Title              string          `json:"title"`
	Currency           string          `json:"currency"`
	NightlyPrice       int64           `json:"nightly_price"`
	CleaningFee        int64           `json:"cleaning_fee"`
	WeeklyDiscount     decimal.Decimal `json:"weekly_discount_percent"`
	MonthlyDiscount    decimal.Decimal `json:"monthly_discount_percent"`
	MaxGuests          int             `json:"max_guests"`
	MinNights          int             `json:"min_nights"`
	MaxNights          int             `json:"max_nights"`
	CancellationPolicy string          `json:"cancellation_policy"`
	InstantBook        bool            `json:"instant_book"`
}

// Decode parses and validates a fixtures document.
func Decode(data []byte, now time.Time) ([]*listings.Listing, error) {
	var raw []listingFixture
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	out := make([]*listings.Listing, 0, len(raw))
	for i, fx := range raw {
		nightly, err := money.New(fx.NightlyPrice, fx.Currency)
		if err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, fx.ID, err)
		}
		cleaning, err := money.New(fx.CleaningFee, fx.Currency)
		if err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, fx.ID, err)
		}
		policy := listings.PolicyModerate
		if fx.CancellationPolicy != "" {
			if policy, err = listings.ParsePolicyTier(fx.CancellationPolicy); err != nil {
				return nil, fmt.Errorf("fixture %d (%s): %w", i, fx.ID, err)
			}
		}
		l, err := listings.NewListing(listings.CreateListingParams{
			ID:                     listings.ListingID(fx.ID),
			Host:                   listings.HostID(fx.Host),
			Title:                  fx.Title,
			NightlyPrice:           nightly,
			CleaningFee:            cleaning,
			WeeklyDiscountPercent:  fx.WeeklyDiscount,
			MonthlyDiscountPercent: fx.MonthlyDiscount,
			MaxGuests:              fx.MaxGuests,
			MinNights:              fx.MinNights,
			MaxNights:              fx.MaxNights,
			Policy:                 policy,
			InstantBook:            fx.InstantBook,
			Now:                    now,
		})
		if err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, fx.ID, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Seed loads the file at path into repo. A missing or empty file is not an error.
func Seed(ctx context.Context, repo ListingSaver, path string, logger *slog.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("listing fixtures file empty", "path", path)
		return 0, nil
	}
	items, err := Decode(data, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, l := range items {
		if err := repo.Save(ctx, l); err != nil {
			return 0, fmt.Errorf("save listing %s: %w", l.ID, err)
		}
	}
	logger.Info("listing fixtures loaded", "path", path, "count", len(items))
	return len(items), nil
}
