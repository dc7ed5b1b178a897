package filter

import "errors"

var (
	// ErrUnsupportedPredicate indicates a predicate the query dialect cannot
	// express. The caller must evaluate it locally.
	ErrUnsupportedPredicate = errors.New("unsupported predicate")

	// ErrUnknownField indicates a predicate references a field absent from
	// the schema.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch indicates a literal that cannot be compared with the
	// values of the field it is applied to.
	ErrTypeMismatch = errors.New("literal type mismatch")
)

// FieldError reports an unknown field reference.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "unknown field: " + e.Field
}

func (e *FieldError) Unwrap() error { return ErrUnknownField }

// UnsupportedError describes why a predicate cannot be pushed down.
type UnsupportedError struct {
	Predicate PredicateType
	Field     string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	msg := "unsupported predicate " + string(e.Predicate)
	if e.Field != "" {
		msg += " on " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupportedPredicate }
