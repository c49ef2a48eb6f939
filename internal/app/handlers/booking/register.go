package booking

import (
	"stayengine/internal/app/commands"
	"stayengine/internal/app/dto"
	"stayengine/internal/app/queries"
)

// Handlers groups every booking use case for registration.
type Handlers struct {
	Quote   *QuoteHandler
	Get     *GetBookingHandler
	Create  *CreateBookingHandler
	Respond *RespondToBookingHandler
	Cancel  *CancelBookingHandler
	Advance *AdvanceScheduledStatesHandler
}

func (h Handlers) RegisterCommands(r *commands.Registry) {
	commands.Register[CreateBookingCommand, *CreateBookingResult](r, createBookingKey, h.Create)
	commands.Register[RespondToBookingCommand, *RespondToBookingResult](r, respondBookingKey, h.Respond)
	commands.Register[CancelBookingCommand, *CancelBookingResult](r, cancelBookingKey, h.Cancel)
	commands.Register[AdvanceScheduledStatesCommand, *AdvanceResult](r, advanceKey, h.Advance)
}

func (h Handlers) RegisterQueries(r *queries.Registry) {
	queries.Register[QuoteQuery, dto.QuoteDTO](r, quoteKey, h.Quote)
	queries.Register[GetBookingQuery, dto.BookingDTO](r, getBookingKey, h.Get)
}
