package schema

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ArrowType returns the Arrow data type used to materialize values of f.
func ArrowType(f Field) arrow.DataType {
	switch f.Type {
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeInt32:
		return arrow.PrimitiveTypes.Int32
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeDate:
		return arrow.FixedWidthTypes.Date32
	case TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_ns
	case TypeDecimal:
		p, s := f.DecimalParams()
		return &arrow.Decimal128Type{Precision: p, Scale: s}
	default:
		return arrow.BinaryTypes.String
	}
}

// ToArrow converts s to an Arrow schema with the same field order.
func ToArrow(s *Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = arrow.Field{Name: f.Name, Type: ArrowType(f), Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrow converts an Arrow schema. Narrow integer types widen to Int32,
// float32 widens to Float64 and every timestamp unit maps to Timestamp.
// Other Arrow types are rejected.
func FromArrow(as *arrow.Schema) (*Schema, error) {
	if as == nil {
		return nil, fmt.Errorf("%w: nil arrow schema", ErrInvalidSchema)
	}
	fields := make([]Field, 0, as.NumFields())
	for _, af := range as.Fields() {
		f := Field{Name: af.Name, Nullable: af.Nullable}
		switch dt := af.Type.(type) {
		case *arrow.BooleanType:
			f.Type = TypeBoolean
		case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type,
			*arrow.Uint8Type, *arrow.Uint16Type:
			f.Type = TypeInt32
		case *arrow.Int64Type, *arrow.Uint32Type:
			f.Type = TypeInt64
		case *arrow.Float32Type, *arrow.Float64Type:
			f.Type = TypeFloat64
		case *arrow.StringType, *arrow.LargeStringType:
			f.Type = TypeString
		case *arrow.Date32Type, *arrow.Date64Type:
			f.Type = TypeDate
		case *arrow.TimestampType:
			f.Type = TypeTimestamp
		case *arrow.Decimal128Type:
			f.Type = TypeDecimal
			f.Precision, f.Scale = dt.Precision, dt.Scale
		default:
			return nil, fmt.Errorf("%w: field %s: unsupported arrow type %s", ErrInvalidSchema, af.Name, af.Type)
		}
		fields = append(fields, f)
	}
	return New(fields...)
}
