// Package errs provides the unified error type used across all of querygate.
//
// Every subsystem (config, guard, database, executor, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In a driver wrap native errors:
//	return errs.Wrap(errs.ErrKindExecutionFailed, "query failed", pgErr)
//
//	// In a handler check error kind:
//	if errs.IsValidation(err) {
//	    fmt.Println("rejected by rule", errs.RuleOf(err))
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindConfiguration            // connection settings missing or inconsistent
	ErrKindConnectionFailed         // cannot reach or authenticate to the database
	ErrKindValidation               // SQL candidate rejected by the read-only policy
	ErrKindExecutionFailed          // database rejected a validated statement
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindUpstream                 // SQL generator / explainer failed
	ErrKindNotFound                 // no such archived object
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindValidation:
		return "validation"
	case ErrKindExecutionFailed:
		return "execution_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindUpstream:
		return "upstream"
	case ErrKindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Rule names the validator gate a candidate failed. Only set on
// ErrKindValidation errors.
type Rule string

const (
	RuleNone                    Rule = ""
	RuleEmptyCandidate          Rule = "EmptyCandidate"
	RuleMultipleStatements      Rule = "MultipleStatements"
	RuleDisallowedStatementType Rule = "DisallowedStatementType"
	RuleForbiddenOperation      Rule = "ForbiddenOperation"
)

// Error is the single error type returned by all querygate subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging

	// Rule and Pattern describe validation failures.
	Rule    Rule
	Pattern string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Rejected creates a validation error for the given rule.
// pattern is empty for every rule except RuleForbiddenOperation.
func Rejected(rule Rule, msg, pattern string) *Error {
	return &Error{Kind: ErrKindValidation, Message: msg, Rule: rule, Pattern: pattern}
}

// --- Predicates ---

// IsConfiguration reports whether err is a missing/inconsistent settings error.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrKindConfiguration
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsValidation reports whether err is a read-only policy rejection.
func IsValidation(err error) bool {
	return KindOf(err) == ErrKindValidation
}

// IsExecutionFailed reports whether the database rejected a validated statement.
func IsExecutionFailed(err error) bool {
	return KindOf(err) == ErrKindExecutionFailed
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsUpstream reports whether err came from the SQL generator or explainer.
func IsUpstream(err error) bool {
	return KindOf(err) == ErrKindUpstream
}

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// RuleOf returns the validation rule carried by err, or RuleNone.
func RuleOf(err error) Rule {
	var e *Error
	if errors.As(err, &e) {
		return e.Rule
	}
	return RuleNone
}

// PatternOf returns the forbidden pattern carried by err, or "".
func PatternOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Pattern
	}
	return ""
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
