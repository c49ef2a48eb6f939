// Package domainerr holds the error taxonomy shared by the booking engine.
//
// Callers branch on the type, not the message:
//   - ValidationError: bad input, never retried.
//   - ConflictError: availability race lost, retry the whole quote+reserve flow.
//   - StateError: illegal lifecycle transition.
//   - PolicyViolationError: cancellation outside the permitted window.
//   - PaymentError: gateway failure, retried with backoff by the caller.
//   - NotFoundError: missing listing or booking.
package domainerr

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports input that can never succeed as given.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports that the requested dates are no longer free.
type ConflictError struct {
	ListingID string
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: listing %s: %s", e.ListingID, e.Reason)
}

// NewConflictError creates a ConflictError for listingID.
func NewConflictError(listingID, reason string) error {
	return &ConflictError{ListingID: listingID, Reason: reason}
}

// StateError reports an illegal transition attempt.
type StateError struct {
	From string
	To   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: cannot transition from %s to %s", e.From, e.To)
}

// NewStateError creates a StateError naming the current and attempted state.
func NewStateError(from, to string) error {
	return &StateError{From: from, To: to}
}

// PolicyViolationError reports an action refused by a platform rule. Deadline is
// the last instant at which the action would have been allowed.
type PolicyViolationError struct {
	Rule     string
	Deadline time.Time
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy: %s (deadline %s)", e.Rule, e.Deadline.UTC().Format(time.RFC3339))
}

// NewPolicyViolationError creates a PolicyViolationError.
func NewPolicyViolationError(rule string, deadline time.Time) error {
	return &PolicyViolationError{Rule: rule, Deadline: deadline.UTC()}
}

// PaymentError wraps a failure of the external payment gateway.
type PaymentError struct {
	Op  string
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment: %s: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// NewPaymentError wraps err as a PaymentError for op.
func NewPaymentError(op string, err error) error {
	return &PaymentError{Op: op, Err: err}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

func IsPolicyViolation(err error) bool {
	var target *PolicyViolationError
	return errors.As(err, &target)
}

func IsPayment(err error) bool {
	var target *PaymentError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
