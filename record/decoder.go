package record

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrRecordArityMismatch indicates a record whose token count differs from
// the schema width.
var ErrRecordArityMismatch = errors.New("record arity mismatch")

// ErrRecordTooLarge indicates a record longer than the decoder's maximum
// record size.
var ErrRecordTooLarge = errors.New("record too large")

const (
	// DefaultDelimiter separates tokens within a record.
	DefaultDelimiter = ','

	// DefaultMaxRecordSize bounds a single record, terminator excluded.
	DefaultMaxRecordSize = 16 << 20
)

// ArityError reports a record with the wrong number of tokens.
type ArityError struct {
	Line int
	Got  int
	Want int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("record arity mismatch at line %d: got %d tokens, want %d", e.Line, e.Got, e.Want)
}

func (e *ArityError) Is(target error) bool { return target == ErrRecordArityMismatch }

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDelimiter sets the single-byte token delimiter.
func WithDelimiter(d byte) DecoderOption {
	return func(dec *Decoder) { dec.delim = d }
}

// WithSkipHeader drops the first record of the stream.
func WithSkipHeader() DecoderOption {
	return func(dec *Decoder) { dec.skipHeader = true }
}

// WithMaxRecordSize bounds the bytes of a single record. A record longer
// than n fails with ErrRecordTooLarge. n <= 0 keeps DefaultMaxRecordSize.
func WithMaxRecordSize(n int) DecoderOption {
	return func(dec *Decoder) {
		if n > 0 {
			dec.maxRecord = n
		}
	}
}

// Decoder reads newline-delimited records and splits each into tokens.
//
// Tokens are split on a single delimiter byte. Quoting and escaped
// delimiters are NOT interpreted: a delimiter inside a quoted value splits
// the value and normally surfaces as an arity mismatch.
//
// A Decoder is single-pass and single-consumer. The underlying stream is
// closed when the input is exhausted, on the first error, when ctx is
// cancelled (checked between records) and on Close.
type Decoder struct {
	ctx        context.Context
	rc         io.ReadCloser
	br         *bufio.Reader
	width      int
	delim      byte
	skipHeader bool
	maxRecord  int

	line   int
	tokens []string
	err    error
	done   bool
	closed bool
}

// NewDecoder returns a decoder expecting width tokens per record.
func NewDecoder(ctx context.Context, rc io.ReadCloser, width int, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		ctx:   ctx,
		rc:    rc,
		br:    bufio.NewReaderSize(rc, 64*1024),
		width:     width,
		delim:     DefaultDelimiter,
		maxRecord: DefaultMaxRecordSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next advances to the next record. It returns false at end of stream or
// on error; Err distinguishes the two.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	if err := d.ctx.Err(); err != nil {
		d.fail(err)
		return false
	}

	for {
		line, ok, err := d.readLine()
		if err != nil {
			d.fail(err)
			return false
		}
		if !ok {
			d.finish()
			return false
		}
		d.line++

		if d.skipHeader && d.line == 1 {
			continue
		}

		tokens := strings.Split(line, string(d.delim))
		if len(tokens) != d.width {
			d.fail(&ArityError{Line: d.line, Got: len(tokens), Want: d.width})
			return false
		}
		d.tokens = tokens
		return true
	}
}

// readLine returns the next record without its terminator.
// A final unterminated record is returned; an empty remainder is not.
func (d *Decoder) readLine() (string, bool, error) {
	var buf []byte
	for {
		chunk, err := d.br.ReadSlice('\n')
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return d.record(buf[:len(buf)-1])
		case errors.Is(err, bufio.ErrBufferFull):
			if len(buf) > d.maxRecord {
				return "", false, d.tooLarge()
			}
		case errors.Is(err, io.EOF):
			if len(buf) == 0 {
				return "", false, nil
			}
			return d.record(buf)
		default:
			return "", false, fmt.Errorf("read record %d: %w", d.line+1, err)
		}
	}
}

func (d *Decoder) record(b []byte) (string, bool, error) {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if len(b) > d.maxRecord {
		return "", false, d.tooLarge()
	}
	return string(b), true, nil
}

func (d *Decoder) tooLarge() error {
	return fmt.Errorf("%w: record %d exceeds %d bytes", ErrRecordTooLarge, d.line+1, d.maxRecord)
}

// Record returns the tokens of the current record.
// The slice is owned by the caller after the next call to Next.
func (d *Decoder) Record() []string { return d.tokens }

// Line returns the 1-based number of the current record, counting a
// skipped header.
func (d *Decoder) Line() int { return d.line }

// Err returns the first error encountered, or nil at clean end of stream.
func (d *Decoder) Err() error { return d.err }

// Close releases the underlying stream. It is safe to call more than once
// and after the decoder has finished on its own.
func (d *Decoder) Close() error {
	d.done = true
	d.tokens = nil
	if d.closed {
		return nil
	}
	d.closed = true
	return d.rc.Close()
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
	d.finish()
}

func (d *Decoder) finish() {
	d.done = true
	d.tokens = nil
	if !d.closed {
		d.closed = true
		if err := d.rc.Close(); err != nil && d.err == nil {
			d.err = fmt.Errorf("close stream: %w", err)
		}
	}
}
