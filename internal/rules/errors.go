package rules

import (
	"errors"
	"fmt"
)

// Predicate error codes.
const (
	ErrCodeUnknownPredicate    = "UNKNOWN_PREDICATE"
	ErrCodeInvalidParams       = "INVALID_PARAMS"
	ErrCodeMissingField        = "MISSING_FIELD"
	ErrCodeUnsupportedOperator = "UNSUPPORTED_OPERATOR"
)

// PredicateError reports a predicate that could not be evaluated because of
// its own definition rather than a store failure. The engine treats it as a
// false predicate and logs it.
type PredicateError struct {
	Code      string
	Predicate string
	Message   string
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Predicate, e.Message)
}

func predicateErrorf(code, predicate, format string, args ...any) *PredicateError {
	return &PredicateError{
		Code:      code,
		Predicate: predicate,
		Message:   fmt.Sprintf(format, args...),
	}
}

// IsPredicateError reports whether err wraps a PredicateError.
func IsPredicateError(err error) bool {
	var pe *PredicateError
	return errors.As(err, &pe)
}

// IsUnknownPredicate reports whether err names a predicate type no
// evaluator handles.
func IsUnknownPredicate(err error) bool {
	return hasCode(err, ErrCodeUnknownPredicate)
}

// IsInvalidParams reports whether err is a malformed-parameters error.
func IsInvalidParams(err error) bool {
	return hasCode(err, ErrCodeInvalidParams)
}

func hasCode(err error, code string) bool {
	var pe *PredicateError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
