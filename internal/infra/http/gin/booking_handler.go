package ginserver

import (
	"context"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayengine/internal/app/dto"
	bookingapp "stayengine/internal/app/handlers/booking"
)

// Engine is the subset of the booking engine the HTTP adapter drives.
type Engine interface {
	Quote(ctx context.Context, q bookingapp.QuoteQuery) (dto.QuoteDTO, error)
	GetBooking(ctx context.Context, id string) (dto.BookingDTO, error)
	CreateBooking(ctx context.Context, cmd bookingapp.CreateBookingCommand) (*bookingapp.CreateBookingResult, error)
	RespondToBooking(ctx context.Context, cmd bookingapp.RespondToBookingCommand) (*bookingapp.RespondToBookingResult, error)
	CancelBooking(ctx context.Context, cmd bookingapp.CancelBookingCommand) (*bookingapp.CancelBookingResult, error)
	AdvanceScheduledStates(ctx context.Context, now time.Time) (*bookingapp.AdvanceResult, error)
}

type BookingHandler struct {
	Engine Engine
}

type createBookingRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	GuestID   string `json:"guest_id" binding:"required"`
	CheckIn   string `json:"check_in" binding:"required"`
	CheckOut  string `json:"check_out" binding:"required"`
	Guests    int    `json:"guests"`
}

func (h BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.Engine.CreateBooking(c.Request.Context(), bookingapp.CreateBookingCommand{
		ListingID:       req.ListingID,
		GuestID:         req.GuestID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          req.Guests,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result.Booking)
}

func (h BookingHandler) Get(c *gin.Context) {
	booking, err := h.Engine.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type respondRequest struct {
	HostID string `json:"host_id"`
	Accept *bool  `json:"accept" binding:"required"`
	Reason string `json:"reason"`
}

func (h BookingHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.Engine.RespondToBooking(c.Request.Context(), bookingapp.RespondToBookingCommand{
		BookingID:       c.Param("id"),
		HostID:          req.HostID,
		Accept:          *req.Accept,
		Reason:          req.Reason,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Booking)
}

type cancelRequest struct {
	CancelledBy string `json:"cancelled_by" binding:"required"`
	ActorID     string `json:"actor_id"`
	Reason      string `json:"reason"`
	Extenuating bool   `json:"extenuating"`
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.Engine.CancelBooking(c.Request.Context(), bookingapp.CancelBookingCommand{
		BookingID:   c.Param("id"),
		CancelledBy: req.CancelledBy,
		ActorID:     req.ActorID,
		Reason:      req.Reason,
		Extenuating: req.Extenuating,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if result.Outcome.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, result.Outcome)
}

type AdminHandler struct {
	Engine Engine
}

type advanceRequest struct {
	Now string `json:"now"`
}

func (h AdminHandler) Advance(c *gin.Context) {
	var req advanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	var now time.Time
	if req.Now != "" {
		t, err := parseInstant("now", req.Now)
		if err != nil {
			writeError(c, err)
			return
		}
		now = t
	}
	result, err := h.Engine.AdvanceScheduledStates(c.Request.Context(), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var (
	_ BookingHTTP = BookingHandler{}
	_ AdminHTTP   = AdminHandler{}
)
