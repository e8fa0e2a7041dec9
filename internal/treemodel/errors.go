package treemodel

import "errors"

// ErrorKind classifies why a metric could not be produced.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInputMissing     ErrorKind = "input_missing"
	KindInvalidParameter ErrorKind = "invalid_parameter"
	KindInsufficientData ErrorKind = "insufficient_data"
	KindUnresolvedFork   ErrorKind = "unresolved_fork"
	KindConditionNotMet  ErrorKind = "condition_not_met"
)

// Sentinel errors, one per kind. Wrap them with fmt.Errorf("...: %w").
var (
	ErrInputMissing     = errors.New("input missing")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
	ErrUnresolvedFork   = errors.New("unresolved fork")
	ErrConditionNotMet  = errors.New("condition not met")
)

// KindOf maps an error chain onto its ErrorKind. Unknown errors are
// reported as input problems, which is how reader failures surface.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrUnresolvedFork):
		return KindUnresolvedFork
	case errors.Is(err, ErrConditionNotMet):
		return KindConditionNotMet
	default:
		return KindInputMissing
	}
}
