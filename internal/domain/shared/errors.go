// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrConflict = errors.New("conflict")

	// Economy errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutOfStock        = errors.New("out of stock")
	ErrNotRedeemable     = errors.New("not redeemable")

	// Policy errors
	ErrPolicyViolation = errors.New("policy violation")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrInternal marks failures that are never shown to the caller.
	ErrInternal = errors.New("internal error")
)

// FieldViolation names a single rejected field and the rule it broke.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "child", "reward", "challenge"
	Op      string // Operation that failed, e.g., "Submit", "Redeem"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)

	// Details carries structured data the caller can act on (e.g. shortage).
	Details map[string]interface{}

	// Violations lists every rejected field for ErrPolicyViolation.
	Violations []FieldViolation

	// origin is the sentinel a WithDetail copy was made from.
	origin *DomainError
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok && e.origin != nil && t == e.origin {
		return true
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// WithDetail returns a copy of the error with an extra detail attached.
// The copy still matches e (and e's own origin) under errors.Is.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	cp := *e
	if cp.origin == nil {
		cp.origin = e
	}
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// NewPolicyViolation creates an ErrPolicyViolation carrying every violated rule.
func NewPolicyViolation(domain, op string, violations []FieldViolation) *DomainError {
	return &DomainError{
		Domain:     domain,
		Op:         op,
		Kind:       ErrPolicyViolation,
		Message:    fmt.Sprintf("%d setting(s) rejected", len(violations)),
		Violations: violations,
	}
}

// NewInsufficientFunds creates an ErrInsufficientFunds with the shortage breakdown.
func NewInsufficientFunds(domain, op string, required, available int) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrInsufficientFunds,
		Message: "insufficient points",
		Details: map[string]interface{}{
			"required":  required,
			"available": available,
			"shortage":  required - available,
		},
	}
}

// Child domain errors
var (
	ErrChildNotFound           = NewDomainError("child", "Find", ErrNotFound, "child not found")
	ErrGuardianNotFound        = NewDomainError("child", "FindGuardian", ErrNotFound, "guardian not found")
	ErrInvalidAge              = NewDomainError("child", "Validate", ErrValueOutOfRange, "age must be between 0 and 18")
	ErrInitiationAlreadyDone   = NewDomainError("child", "CompleteInitiation", ErrConflict, "initiation already completed")
	ErrSecretCodeNotFound      = NewDomainError("child", "FindBySecretCode", ErrNotFound, "invalid secret code")
	ErrSecretCodeAlreadyExists = NewDomainError("child", "Create", ErrAlreadyExists, "secret code already in use")
)

// Mission domain errors
var (
	ErrMissionNotFound        = NewDomainError("mission", "Find", ErrNotFound, "mission not found")
	ErrChallengeNotFound      = NewDomainError("mission", "FindChallenge", ErrNotFound, "challenge not found")
	ErrMissionHasNoChallenges = NewDomainError("mission", "Recompute", ErrInvalidInput, "mission has no challenges")
)

// Challenge workflow errors
var (
	ErrSubmissionNotFound  = NewDomainError("challenge", "Find", ErrNotFound, "submission not found")
	ErrDuplicateSubmission = NewDomainError("challenge", "Submit", ErrConflict, "challenge already submitted or completed")
	ErrAlreadyReviewed     = NewDomainError("challenge", "Review", ErrConflict, "submission already reviewed")
	ErrProofRequired       = NewDomainError("challenge", "Submit", ErrValidation, "at least one proof reference is required")
	ErrProofKindNotAllowed = NewDomainError("challenge", "Submit", ErrValidation, "proof kind not allowed for this challenge")
	ErrInvalidDecision     = NewDomainError("challenge", "Review", ErrValidation, "decision must be APPROVED or REJECTED")
)

// Reward domain errors
var (
	ErrRewardNotFound       = NewDomainError("reward", "Find", ErrNotFound, "reward not found")
	ErrRewardNotRedeemable  = NewDomainError("reward", "Redeem", ErrNotRedeemable, "reward is not redeemable")
	ErrRewardOutOfStock     = NewDomainError("reward", "Redeem", ErrOutOfStock, "reward is out of stock")
	ErrShippingInfoRequired = NewDomainError("reward", "Redeem", ErrValidation, "shipping information is required for physical rewards")
	ErrDuplicateRequest     = NewDomainError("reward", "Redeem", ErrConflict, "duplicate redemption request")
)

// Notification errors
var (
	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
)

// Ledger errors
var (
	ErrInvalidAmount = NewDomainError("ledger", "Validate", ErrValidation, "amount must be positive")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// AsDomainError extracts the first DomainError in the chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
