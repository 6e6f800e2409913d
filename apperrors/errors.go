package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrUnitMismatch        = errors.New("unit mismatch")
	ErrSemanticUnavailable = errors.New("semantic engine unavailable")
	ErrSemanticTimeout     = errors.New("semantic engine timeout")
	ErrRoutingAmbiguous    = errors.New("routing ambiguous")
	ErrStoreDisabled       = errors.New("signal store disabled")
)

// ValidationError reports a malformed fact or query. It is always returned to
// the caller and never coerced into a default value.
type ValidationError struct {
	Table  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("validation error: %s.%s: %s", e.Table, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
	default:
		return "validation error: " + e.Reason
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(table, field, reason string) *ValidationError {
	return &ValidationError{Table: table, Field: field, Reason: reason}
}

// UnitMismatchError is returned when two metric values in different units or
// currencies are compared.
type UnitMismatchError struct {
	Ticker     string
	MetricType string
	UnitA      string
	UnitB      string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("unit mismatch for %s %s: %q vs %q", e.Ticker, e.MetricType, e.UnitA, e.UnitB)
}

func (e *UnitMismatchError) Is(target error) bool { return target == ErrUnitMismatch }

// DualWriteInconsistency records that the structured write committed but the
// semantic engine did not accept the document. It is not fatal to ingestion.
type DualWriteInconsistency struct {
	SourceDocumentID string
	Err              error
}

func (e *DualWriteInconsistency) Error() string {
	return fmt.Sprintf("dual-write inconsistency for document %s: %v", e.SourceDocumentID, e.Err)
}

func (e *DualWriteInconsistency) Unwrap() error { return e.Err }

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsUnitMismatch(err error) bool { return errors.Is(err, ErrUnitMismatch) }

// IsSemanticFailure reports whether err is a transient semantic-engine
// failure that the fallback cascade may recover from.
func IsSemanticFailure(err error) bool {
	return errors.Is(err, ErrSemanticUnavailable) || errors.Is(err, ErrSemanticTimeout)
}
