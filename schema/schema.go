package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownColumn indicates a requested column is absent from the schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrDuplicateColumn indicates a name appears more than once.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrInvalidSchema indicates a schema definition is malformed.
	ErrInvalidSchema = errors.New("invalid schema")
)

// Field describes a single column.
type Field struct {
	Name     string    `msgpack:"name"`
	Type     FieldType `msgpack:"type"`
	Nullable bool      `msgpack:"nullable"`

	// Precision and Scale apply to Decimal fields only.
	// Zero values mean DefaultDecimalPrecision / DefaultDecimalScale.
	Precision int32 `msgpack:"precision,omitempty"`
	Scale     int32 `msgpack:"scale,omitempty"`
}

// DecimalParams returns the effective precision and scale of a Decimal field.
func (f Field) DecimalParams() (precision, scale int32) {
	precision, scale = f.Precision, f.Scale
	if precision == 0 {
		precision = DefaultDecimalPrecision
	}
	if scale == 0 {
		scale = DefaultDecimalScale
	}
	return precision, scale
}

func (f Field) String() string {
	s := f.Name + ":" + strings.ToLower(string(f.Type))
	if f.Nullable {
		s += "?"
	}
	return s
}

// Schema is an immutable ordered list of uniquely named fields.
// Field order defines the positional layout of decoded records.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New validates fields and returns a schema.
// Names must be non-empty and unique; types must be supported.
func New(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}

	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field %d has empty name", ErrInvalidSchema, i)
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("%w: field %s: %w", ErrInvalidSchema, f.Name, &TypeError{Name: string(f.Type)})
		}
		if _, ok := s.index[f.Name]; ok {
			return nil, &ColumnError{Name: f.Name, Err: ErrDuplicateColumn}
		}
		if f.Type == TypeDecimal {
			p, sc := f.DecimalParams()
			if p < 1 || p > 38 || sc < 0 || sc > p {
				return nil, fmt.Errorf("%w: field %s: decimal(%d, %d) out of range", ErrInvalidSchema, f.Name, p, sc)
			}
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustNew is like New but panics on error. Intended for static schemas.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the i-th field.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns field names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Lookup returns the named field.
func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Equal reports whether both schemas have identical fields in identical order.
func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "schema<" + strings.Join(parts, ", ") + ">"
}

// ColumnError reports a problem with a named column.
type ColumnError struct {
	Name string
	Err  error
}

func (e *ColumnError) Error() string {
	return e.Err.Error() + ": " + e.Name
}

func (e *ColumnError) Unwrap() error { return e.Err }
