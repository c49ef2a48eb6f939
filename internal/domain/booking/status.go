package booking

import "fmt"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending             Status = "pending"
	StatusConfirmed           Status = "confirmed"
	StatusRejected            Status = "rejected"
	StatusActive              Status = "active"
	StatusCompleted           Status = "completed"
	StatusCancellationPending Status = "cancellation_pending"
	StatusCancelled           Status = "cancelled"
)

// validTransitions defines the state machine for booking status transitions.
var validTransitions = map[Status][]Status{
	StatusPending:             {StatusConfirmed, StatusRejected},
	StatusConfirmed:           {StatusActive, StatusCancellationPending, StatusCancelled},
	StatusActive:              {StatusCompleted, StatusCancellationPending, StatusCancelled},
	StatusCancellationPending: {StatusCancelled},
	StatusRejected:            {},
	StatusCompleted:           {},
	StatusCancelled:           {},
}

// OccupyingStatuses block the listing calendar.
var OccupyingStatuses = []Status{StatusPending, StatusConfirmed, StatusActive}

func (s Status) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return !exists || len(allowed) == 0
}

// Occupies reports whether a booking in this status holds its dates.
func (s Status) Occupies() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

func (s Status) CanBeCancelled() bool {
	return s.CanTransitionTo(StatusCancellationPending)
}

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// PaymentStatus tracks the money side of a booking.
type PaymentStatus string

const (
	PaymentUnpaid            PaymentStatus = "unpaid"
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentReleased          PaymentStatus = "released"
	PaymentCaptured          PaymentStatus = "captured"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefunded          PaymentStatus = "refunded"
)

// Party identifies who initiated an action.
type Party string

const (
	PartyGuest Party = "guest"
	PartyHost  Party = "host"
)

func ParseParty(s string) (Party, error) {
	switch Party(s) {
	case PartyGuest, PartyHost:
		return Party(s), nil
	}
	return "", fmt.Errorf("invalid party: %s", s)
}
