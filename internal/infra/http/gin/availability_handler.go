package ginserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	bookingapp "stayengine/internal/app/handlers/booking"
	"stayengine/internal/domain/shared/domainerr"
)

type AvailabilityHandler struct {
	Engine Engine
}

// Quote prices a stay and reports whether the dates are still free.
func (h AvailabilityHandler) Quote(c *gin.Context) {
	checkIn, checkOut, err := parseStay(c.Query("check_in"), c.Query("check_out"))
	if err != nil {
		writeError(c, err)
		return
	}
	guests := 1
	if raw := c.Query("guests"); raw != "" {
		guests, err = strconv.Atoi(raw)
		if err != nil {
			writeError(c, domainerr.NewValidationError("guests", "must be an integer"))
			return
		}
	}
	quote, err := h.Engine.Quote(c.Request.Context(), bookingapp.QuoteQuery{
		ListingID: c.Param("id"),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Guests:    guests,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func parseStay(checkIn, checkOut string) (time.Time, time.Time, error) {
	in, err := parseInstant("check_in", checkIn)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	out, err := parseInstant("check_out", checkOut)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return in, out, nil
}

// parseInstant accepts RFC 3339 timestamps and bare dates, which are read as
// midnight UTC.
func parseInstant(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domainerr.NewValidationError(field, "is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, domainerr.NewValidationError(field, "must be RFC 3339 or YYYY-MM-DD")
}

var _ AvailabilityHTTP = AvailabilityHandler{}
