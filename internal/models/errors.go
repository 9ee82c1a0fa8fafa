package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel kinds. Every typed error below matches exactly one of these
// through errors.Is, so callers can branch on the kind without caring
// about the concrete fields.
var (
	ErrValidation            = errors.New("validation failed")
	ErrStateTransition       = errors.New("invalid state transition")
	ErrPromotionInapplicable = errors.New("promotion not applicable")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrNotFound              = errors.New("not found")
)

// ValidationError reports malformed input. Nothing was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateTransitionError reports an operation attempted outside its guard.
type StateTransitionError struct {
	Entity string
	From   string
	To     string
	Action string
}

func (e *StateTransitionError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("cannot move %s from %s to %s", e.Entity, e.From, e.To)
	}
	return fmt.Sprintf("cannot %s %s in status %s", e.Action, e.Entity, e.From)
}

func (e *StateTransitionError) Is(target error) bool { return target == ErrStateTransition }

// PromotionInapplicableError reports a promotion that failed eligibility at
// apply time.
type PromotionInapplicableError struct {
	PromotionID int64
	Reason      string
}

func (e *PromotionInapplicableError) Error() string {
	return fmt.Sprintf("promotion %d not applicable: %s", e.PromotionID, e.Reason)
}

func (e *PromotionInapplicableError) Is(target error) bool { return target == ErrPromotionInapplicable }

// InsufficientFundsError reports cash tendered below the amount due.
type InsufficientFundsError struct {
	Required decimal.Decimal
	Tendered decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient cash: tendered %s, required %s",
		e.Tendered.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
