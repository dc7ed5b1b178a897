package record

import (
	"errors"
	"fmt"
	"iter"

	"github.com/hugr-lab/s3select-go/schema"
)

// Row is a typed record positionally aligned to the reader's output schema.
// Null values are nil.
type Row []any

// Stats summarizes a finished RowReader.
type Stats struct {
	// Records is the number of records decoded and cast.
	Records int64
	// Rows is the number of rows delivered after filtering.
	Rows int64
	// Err is the error that ended the stream, nil on clean exhaustion
	// or when the caller closed early.
	Err error
}

// RowOption configures a RowReader.
type RowOption func(*RowReader) error

// WithProjection narrows delivered rows to out's fields. Every field of out
// must exist in the decode schema.
func WithProjection(out *schema.Schema) RowOption {
	return func(r *RowReader) error {
		keep := make([]int, out.Len())
		for i := 0; i < out.Len(); i++ {
			idx := r.decode.Index(out.Field(i).Name)
			if idx < 0 {
				return &schema.ColumnError{Name: out.Field(i).Name, Err: schema.ErrUnknownColumn}
			}
			keep[i] = idx
		}
		r.output = out
		r.keep = keep
		return nil
	}
}

// WithFilter drops rows for which fn returns false. fn sees the full
// decoded row, before projection.
func WithFilter(fn func(Row) (bool, error)) RowOption {
	return func(r *RowReader) error {
		r.filter = fn
		return nil
	}
}

// WithCloseHook registers fn to run once when the reader finishes or is closed.
func WithCloseHook(fn func(Stats)) RowOption {
	return func(r *RowReader) error {
		r.onClose = fn
		return nil
	}
}

// RowReader casts decoded records into typed rows.
// Like the Decoder it wraps, it is single-pass and single-consumer.
type RowReader struct {
	dec     *Decoder
	decode  *schema.Schema
	output  *schema.Schema
	keep    []int
	filter  func(Row) (bool, error)
	onClose func(Stats)

	row      Row
	err      error
	records  int64
	rows     int64
	finished bool
}

// NewRowReader wraps dec, whose records are laid out as decode.
func NewRowReader(dec *Decoder, decode *schema.Schema, opts ...RowOption) (*RowReader, error) {
	if decode == nil {
		return nil, errors.New("row reader requires a decode schema")
	}
	if dec.width != decode.Len() {
		return nil, fmt.Errorf("%w: decoder expects %d tokens, schema has %d fields",
			ErrRecordArityMismatch, dec.width, decode.Len())
	}
	r := &RowReader{dec: dec, decode: decode, output: decode}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			dec.Close()
			return nil, err
		}
	}
	return r, nil
}

// Schema returns the layout of delivered rows.
func (r *RowReader) Schema() *schema.Schema { return r.output }

// Next advances to the next row that passes the filter.
func (r *RowReader) Next() bool {
	if r.finished {
		return false
	}
	for r.dec.Next() {
		row, err := r.castRecord(r.dec.Record())
		if err != nil {
			r.fail(err)
			return false
		}
		r.records++

		if r.filter != nil {
			ok, err := r.filter(row)
			if err != nil {
				r.fail(err)
				return false
			}
			if !ok {
				continue
			}
		}

		r.row = r.project(row)
		r.rows++
		return true
	}
	r.fail(r.dec.Err())
	return false
}

func (r *RowReader) castRecord(tokens []string) (Row, error) {
	row := make(Row, len(tokens))
	for i, tok := range tokens {
		v, err := CastField(tok, r.decode.Field(i))
		if err != nil {
			var ce *CastError
			if errors.As(err, &ce) {
				ce.Line = r.dec.Line()
			}
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func (r *RowReader) project(row Row) Row {
	if r.keep == nil {
		return row
	}
	out := make(Row, len(r.keep))
	for i, idx := range r.keep {
		out[i] = row[idx]
	}
	return out
}

// Row returns the current row. The row is owned by the caller.
func (r *RowReader) Row() Row { return r.row }

// Err returns the error that ended iteration, if any.
func (r *RowReader) Err() error { return r.err }

// Close releases the underlying stream. Partially read records are discarded.
func (r *RowReader) Close() error {
	err := r.dec.Close()
	r.fail(nil)
	return err
}

// All returns an iterator over the remaining rows. A decode or cast error
// is yielded once as the final element. Leaving the loop early closes the
// stream.
func (r *RowReader) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.row, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Collect reads every remaining row.
func (r *RowReader) Collect() ([]Row, error) {
	var rows []Row
	for row, err := range r.All() {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *RowReader) fail(err error) {
	if r.finished {
		return
	}
	r.finished = true
	r.row = nil
	r.err = err
	r.dec.Close()
	if r.onClose != nil {
		r.onClose(Stats{Records: r.records, Rows: r.rows, Err: err})
	}
}
