package record

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/s3select-go/schema"
)

// DefaultBatchSize is the number of rows per Arrow record batch.
const DefaultBatchSize = 4096

// NextBatch reads up to size rows into an Arrow record batch.
// Returns io.EOF when no rows remain. The caller must release the batch.
func (r *RowReader) NextBatch(alloc memory.Allocator, size int) (arrow.RecordBatch, error) {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	builder := array.NewRecordBuilder(alloc, schema.ToArrow(r.output))
	defer builder.Release()

	n := 0
	for n < size && r.Next() {
		for i, v := range r.row {
			if err := appendValue(builder.Field(i), v); err != nil {
				r.Close()
				return nil, fmt.Errorf("field %s: %w", r.output.Field(i).Name, err)
			}
		}
		n++
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	return builder.NewRecordBatch(), nil
}

// ReadAll materializes the remaining rows as an Arrow RecordReader.
func (r *RowReader) ReadAll(alloc memory.Allocator, batchSize int) (array.RecordReader, error) {
	defer r.Close()

	var batches []arrow.RecordBatch
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	for {
		batch, err := r.NextBatch(alloc, batchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return array.NewRecordReader(schema.ToArrow(r.output), batches)
}

// Timestamps are stored as nanoseconds since the epoch in an int64.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// appendValue appends v, or a null when v is nil, to b.
func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	var ok bool
	switch b := b.(type) {
	case *array.BooleanBuilder:
		var x bool
		if x, ok = v.(bool); ok {
			b.Append(x)
		}
	case *array.Int32Builder:
		var x int32
		if x, ok = v.(int32); ok {
			b.Append(x)
		}
	case *array.Int64Builder:
		var x int64
		if x, ok = v.(int64); ok {
			b.Append(x)
		}
	case *array.Float64Builder:
		var x float64
		if x, ok = v.(float64); ok {
			b.Append(x)
		}
	case *array.StringBuilder:
		var x string
		if x, ok = v.(string); ok {
			b.Append(x)
		}
	case *array.Date32Builder:
		var x time.Time
		if x, ok = v.(time.Time); ok {
			b.Append(arrow.Date32FromTime(x))
		}
	case *array.TimestampBuilder:
		var x time.Time
		if x, ok = v.(time.Time); ok {
			if x.Before(minTimestamp) || x.After(maxTimestamp) {
				return fmt.Errorf("timestamp %s outside the nanosecond range", x.Format(schema.TimestampLayout))
			}
			b.Append(arrow.Timestamp(x.UnixNano()))
		}
	case *array.Decimal128Builder:
		var x decimal128.Num
		if x, ok = v.(decimal128.Num); ok {
			b.Append(x)
		}
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	if !ok {
		return fmt.Errorf("unexpected value %T", v)
	}
	return nil
}
