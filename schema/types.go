package schema

import (
	"errors"
	"strings"
)

// FieldType identifies the logical type of a column.
type FieldType string

const (
	TypeBoolean   FieldType = "BOOLEAN"
	TypeInt32     FieldType = "INT32"
	TypeInt64     FieldType = "INT64"
	TypeFloat64   FieldType = "FLOAT64"
	TypeString    FieldType = "STRING"
	TypeDate      FieldType = "DATE"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeDecimal   FieldType = "DECIMAL"
)

// Canonical textual layouts for temporal values. Tokens and literals that
// deviate from these layouts are rejected rather than guessed.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

// Default precision and scale for Decimal fields declared without them.
const (
	DefaultDecimalPrecision int32 = 38
	DefaultDecimalScale     int32 = 0
)

// typeAliases maps accepted spellings to canonical field types.
var typeAliases = map[string]FieldType{
	"BOOL":      TypeBoolean,
	"BOOLEAN":   TypeBoolean,
	"INT":       TypeInt32,
	"INT32":     TypeInt32,
	"INTEGER":   TypeInt32,
	"BIGINT":    TypeInt64,
	"INT64":     TypeInt64,
	"LONG":      TypeInt64,
	"DOUBLE":    TypeFloat64,
	"FLOAT64":   TypeFloat64,
	"STRING":    TypeString,
	"VARCHAR":   TypeString,
	"TEXT":      TypeString,
	"DATE":      TypeDate,
	"TIMESTAMP": TypeTimestamp,
	"DECIMAL":   TypeDecimal,
	"NUMERIC":   TypeDecimal,
}

// ErrUnknownType is returned when a type name cannot be resolved.
var ErrUnknownType = errors.New("unknown field type")

// ParseFieldType resolves a case-insensitive type name or alias.
func ParseFieldType(name string) (FieldType, error) {
	if t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", &TypeError{Name: name}
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeBoolean, TypeInt32, TypeInt64, TypeFloat64, TypeString,
		TypeDate, TypeTimestamp, TypeDecimal:
		return true
	}
	return false
}

// Numeric reports whether values of t compare numerically.
func (t FieldType) Numeric() bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeFloat64 || t == TypeDecimal
}

// Temporal reports whether t is Date or Timestamp.
func (t FieldType) Temporal() bool {
	return t == TypeDate || t == TypeTimestamp
}

// TypeError reports an unresolvable type name.
type TypeError struct {
	Name string
}

func (e *TypeError) Error() string {
	return "unknown field type: " + e.Name
}

func (e *TypeError) Unwrap() error { return ErrUnknownType }
