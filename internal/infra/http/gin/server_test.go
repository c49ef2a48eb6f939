package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/app/engine"
	domainlistings "stayengine/internal/domain/listings"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/domain/shared/money"
	"stayengine/internal/infra/obs"
	"stayengine/internal/infra/storage/memory"
)

var testNow = time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, now func() time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	listings := memory.NewListingRepository()
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:           "loft",
		Host:         "host-1",
		NightlyPrice: money.Must(10000, "EUR"),
		MaxGuests:    2,
		Policy:       domainlistings.PolicyFlexible,
		InstantBook:  true,
		Now:          testNow,
	})
	require.NoError(t, err)
	require.NoError(t, listings.Save(ctx, listing))

	fees, err := pricing.NewFeeSchedule(decimal.NewFromInt(10), decimal.NewFromInt(3))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(engine.Options{
		UoWFactory:   memory.Factory{ListingsRepo: listings, BookingsRepo: memory.NewBookingRepository()},
		Gateway:      memory.NewSandboxGateway(),
		Notifier:     memory.NewNotifier(),
		Outbox:       memory.NewOutbox(nil),
		Idempotency:  memory.NewIdempotencyStore(time.Hour),
		Fees:         fees,
		RetryBackoff: time.Millisecond,
		Logger:       logger,
		Clock:        now,
	})
	require.NoError(t, err)

	return NewRouter(obs.Middleware{Logger: logger}, obs.HealthHandlers{}, Handlers{
		Booking:      BookingHandler{Engine: eng},
		Availability: AvailabilityHandler{Engine: eng},
		Admin:        AdminHandler{Engine: eng},
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	now := testNow
	r := newTestRouter(t, func() time.Time { return now })

	w, quote := do(t, r, http.MethodGet, "/api/v1/listings/loft/quote?check_in=2026-06-01&check_out=2026-06-03&guests=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, quote["available"])
	total := quote["price"].(map[string]any)["total"].(map[string]any)
	assert.EqualValues(t, 22000, total["amount"])

	create := map[string]any{"listing_id": "loft", "guest_id": "guest-1", "check_in": "2026-06-01", "check_out": "2026-06-03", "guests": 2}
	w, booking := do(t, r, http.MethodPost, "/api/v1/bookings", create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "confirmed", booking["status"])
	id := booking["id"].(string)

	w, body := do(t, r, http.MethodPost, "/api/v1/bookings", create)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])

	w, got := do(t, r, http.MethodGet, "/api/v1/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "captured", got["payment_status"])

	now = time.Date(2026, time.May, 31, 20, 0, 0, 0, time.UTC)
	w, body = do(t, r, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", map[string]any{"cancelled_by": "guest"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "policy_violation", body["kind"])
	assert.Equal(t, "2026-05-31T00:00:00Z", body["deadline"])

	w, outcome := do(t, r, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", map[string]any{"cancelled_by": "host", "actor_id": "host-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", outcome["status"])
	assert.EqualValues(t, 22000, outcome["guest_refund"].(map[string]any)["amount"])
	assert.NotNil(t, outcome["host_penalty"])
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t, func() time.Time { return testNow })

	w, body := do(t, r, http.MethodGet, "/api/v1/bookings/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])

	w, body = do(t, r, http.MethodGet, "/api/v1/listings/loft/quote?check_in=tomorrow&check_out=2026-06-03", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "check_in", body["field"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"listing_id": "loft"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{
		"listing_id": "loft", "guest_id": "g", "check_in": "2026-06-01", "check_out": "2026-06-03", "guests": 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "guests", body["field"])
}

func TestAdvanceEndpoint(t *testing.T) {
	r := newTestRouter(t, func() time.Time { return testNow })
	create := map[string]any{"listing_id": "loft", "guest_id": "guest-1", "check_in": "2026-06-01", "check_out": "2026-06-03", "guests": 1}
	w, _ := do(t, r, http.MethodPost, "/api/v1/bookings", create)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := do(t, r, http.MethodPost, "/api/v1/admin/advance", map[string]any{"now": "2026-06-01T00:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["transitions"], 1)
}
