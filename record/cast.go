package record

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/decimal128"

	"github.com/hugr-lab/s3select-go/schema"
)

// ErrCast indicates a token could not be converted to its field type.
var ErrCast = errors.New("cast error")

// errEmptyNotNull is the cause reported for an empty token in a non-nullable field.
var errEmptyNotNull = errors.New("empty value for non-nullable field")

// CastError describes a failed token conversion.
type CastError struct {
	Field string
	Token string
	Type  schema.FieldType
	// Line is the 1-based record number, 0 when casting outside a stream.
	Line int
	Err  error
}

func (e *CastError) Error() string {
	var sb strings.Builder
	sb.WriteString("cast error")
	if e.Line > 0 {
		sb.WriteString(" at line ")
		sb.WriteString(strconv.Itoa(e.Line))
	}
	if e.Field != "" {
		sb.WriteString(" in field ")
		sb.WriteString(e.Field)
	}
	fmt.Fprintf(&sb, ": %q as %s", e.Token, e.Type)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *CastError) Is(target error) bool { return target == ErrCast }

func (e *CastError) Unwrap() error { return e.Err }

// Cast converts a single token to a value of type t.
// An empty token is nil when nullable and a CastError otherwise.
// Decimal values use the default precision and scale; use CastField
// for declared decimal parameters.
func Cast(token string, t schema.FieldType, nullable bool) (any, error) {
	return CastField(token, schema.Field{Type: t, Nullable: nullable})
}

// CastField converts token according to f.
func CastField(token string, f schema.Field) (any, error) {
	if token == "" {
		if f.Nullable {
			return nil, nil
		}
		return nil, castErr(f, token, errEmptyNotNull)
	}

	switch f.Type {
	case schema.TypeString:
		return token, nil

	case schema.TypeBoolean:
		switch {
		case strings.EqualFold(token, "true"):
			return true, nil
		case strings.EqualFold(token, "false"):
			return false, nil
		}
		return nil, castErr(f, token, errors.New("expected true or false"))

	case schema.TypeInt32:
		v, err := strconv.ParseInt(token, 10, 32)
		if err != nil {
			return nil, castErr(f, token, numErr(err))
		}
		return int32(v), nil

	case schema.TypeInt64:
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, castErr(f, token, numErr(err))
		}
		return v, nil

	case schema.TypeFloat64:
		if !floatSyntax.MatchString(token) {
			return nil, castErr(f, token, errors.New("malformed number"))
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, castErr(f, token, numErr(err))
		}
		return v, nil

	case schema.TypeDate:
		v, err := time.Parse(schema.DateLayout, token)
		if err != nil {
			return nil, castErr(f, token, fmt.Errorf("expected %s", schema.DateLayout))
		}
		return v, nil

	case schema.TypeTimestamp:
		v, err := time.Parse(schema.TimestampLayout, token)
		if err != nil {
			return nil, castErr(f, token, errors.New("expected RFC 3339 timestamp"))
		}
		return v.UTC(), nil

	case schema.TypeDecimal:
		return castDecimal(token, f)

	default:
		return nil, castErr(f, token, fmt.Errorf("unsupported type %q", f.Type))
	}
}

// Plain decimal notation. Hex floats, digit separators, Inf and NaN are
// rejected.
var (
	decimalSyntax = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	floatSyntax   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
)

// castDecimal parses token at the field's precision and scale.
// Values with more fractional digits than the scale are rejected instead
// of being rounded.
func castDecimal(token string, f schema.Field) (any, error) {
	precision, scale := f.DecimalParams()

	if !decimalSyntax.MatchString(token) {
		return nil, castErr(f, token, errors.New("malformed decimal"))
	}
	if _, frac, ok := strings.Cut(token, "."); ok && int32(len(strings.TrimRight(frac, "0"))) > scale {
		return nil, castErr(f, token, fmt.Errorf("more than %d fractional digits", scale))
	}

	n, err := decimal128.FromString(token, precision, scale)
	if err != nil {
		return nil, castErr(f, token, err)
	}
	if !n.FitsInPrecision(precision) {
		return nil, castErr(f, token, fmt.Errorf("exceeds precision %d", precision))
	}
	return n, nil
}

// Format renders v in the canonical text Cast accepts for t.
// nil renders as the empty token.
func Format(v any, t schema.FieldType) (string, error) {
	return FormatField(v, schema.Field{Type: t})
}

// FormatField renders v using f's decimal scale when applicable.
func FormatField(v any, f schema.Field) (string, error) {
	if v == nil {
		return "", nil
	}

	switch x := v.(type) {
	case string:
		if f.Type == schema.TypeString {
			return x, nil
		}
	case bool:
		if f.Type == schema.TypeBoolean {
			return strconv.FormatBool(x), nil
		}
	case int32:
		if f.Type == schema.TypeInt32 {
			return strconv.FormatInt(int64(x), 10), nil
		}
	case int64:
		if f.Type == schema.TypeInt64 {
			return strconv.FormatInt(x, 10), nil
		}
	case float64:
		if f.Type == schema.TypeFloat64 {
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		}
	case time.Time:
		switch f.Type {
		case schema.TypeDate:
			return x.UTC().Format(schema.DateLayout), nil
		case schema.TypeTimestamp:
			return x.UTC().Format(schema.TimestampLayout), nil
		}
	case decimal128.Num:
		if f.Type == schema.TypeDecimal {
			_, scale := f.DecimalParams()
			return formatDecimal(x, scale), nil
		}
	}
	return "", fmt.Errorf("cannot format %T as %s", v, f.Type)
}

// formatDecimal renders n with exactly scale fractional digits.
func formatDecimal(n decimal128.Num, scale int32) string {
	neg := n.Sign() < 0
	if neg {
		n = n.Negate()
	}
	digits := n.BigInt().String()
	if scale > 0 {
		for int32(len(digits)) <= scale {
			digits = "0" + digits
		}
		cut := len(digits) - int(scale)
		digits = digits[:cut] + "." + digits[cut:]
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func castErr(f schema.Field, token string, err error) *CastError {
	return &CastError{Field: f.Name, Token: token, Type: f.Type, Err: err}
}

// numErr strips the strconv wrapper, keeping range and syntax causes.
func numErr(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		if errors.Is(ne.Err, strconv.ErrRange) {
			return errors.New("value out of range")
		}
		return errors.New("malformed number")
	}
	return err
}
