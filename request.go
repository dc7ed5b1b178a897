package s3select

import (
	"fmt"

	"github.com/minio/minio-go/v7"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/schema"
)

// RequestInput describes one scan of one object.
type RequestInput struct {
	// Bucket and Key locate the object. REQUIRED.
	Bucket string
	Key    string

	// Schema is the full layout of the object's records. REQUIRED.
	Schema *schema.Schema

	// Columns to return, in order. Empty means every column.
	Columns []string

	// Filters are AND-ed row predicates over Schema.
	Filters []filter.Predicate
}

// Request is a fully built select request. Build it with BuildRequest.
type Request struct {
	Bucket string
	Key    string

	// Expression is the query text sent to the store.
	Expression string

	// Decode is the layout of the records the query returns: the output
	// columns followed by any columns only the residual filters need.
	Decode *schema.Schema

	// Output is the layout of the rows delivered to the caller.
	Output *schema.Schema

	// Residual holds the filters the store cannot evaluate. They must be
	// applied to decoded rows before projecting to Output.
	Residual []filter.Predicate

	Compression Compression
	Header      bool
	Delimiter   byte
}

// BuildRequest validates in against cfg and returns the request that
// scans it: the pruned output schema, the query with every expressible
// filter pushed down and the residual filters to apply locally.
func BuildRequest(cfg Config, in RequestInput) (Request, error) {
	if err := cfg.Validate(); err != nil {
		return Request{}, err
	}
	switch {
	case in.Bucket == "":
		return Request{}, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	case in.Key == "":
		return Request{}, fmt.Errorf("%w: key is required", ErrInvalidConfig)
	case in.Schema == nil:
		return Request{}, fmt.Errorf("%w: schema is required", ErrInvalidConfig)
	}

	output, err := schema.Prune(in.Schema, in.Columns)
	if err != nil {
		return Request{}, fmt.Errorf("prune schema: %w", err)
	}

	// Positions refer to the object's columns, so everything resolves
	// against the full schema.
	enc := filter.NewS3SelectEncoder(&filter.EncoderOptions{Positional: !cfg.Header})
	where, residual, err := enc.Split(in.Schema, in.Filters)
	if err != nil {
		return Request{}, fmt.Errorf("translate filters: %w", err)
	}
	// Every filter may end up evaluated locally, by residual or by the
	// full-scan path, so a literal that cannot compare fails here.
	for _, p := range in.Filters {
		if err := filter.CheckTypes(in.Schema, p); err != nil {
			return Request{}, fmt.Errorf("translate filters: %w", err)
		}
	}

	decode, err := decodeSchema(in.Schema, output, residual)
	if err != nil {
		return Request{}, err
	}

	expr, err := enc.SelectStatement(in.Schema, decode.Names(), where)
	if err != nil {
		return Request{}, fmt.Errorf("render query: %w", err)
	}

	return Request{
		Bucket:      in.Bucket,
		Key:         in.Key,
		Expression:  expr,
		Decode:      decode,
		Output:      output,
		Residual:    residual,
		Compression: cfg.compression(),
		Header:      cfg.Header,
		Delimiter:   cfg.delimiter(),
	}, nil
}

// decodeSchema extends output with the fields residual filters reference
// but the caller did not ask for.
func decodeSchema(full, output *schema.Schema, residual []filter.Predicate) (*schema.Schema, error) {
	var extra []string
	for _, name := range filter.Fields(residual...) {
		if output.Index(name) < 0 {
			extra = append(extra, name)
		}
	}
	if len(extra) == 0 {
		return output, nil
	}
	return schema.Prune(full, append(output.Names(), extra...))
}

// Strict reports whether every filter was pushed to the store.
func (r Request) Strict() bool { return len(r.Residual) == 0 }

// SelectOptions returns the request in minio-go form: a SQL expression
// over delimited input and output.
func (r Request) SelectOptions() minio.SelectObjectOptions {
	header := minio.CSVFileHeaderInfoNone
	if r.Header {
		header = minio.CSVFileHeaderInfoUse
	}
	delim := string([]byte{r.Delimiter})

	return minio.SelectObjectOptions{
		Expression:     r.Expression,
		ExpressionType: minio.QueryExpressionTypeSQL,
		InputSerialization: minio.SelectObjectInputSerialization{
			CompressionType: selectCompression(r.Compression),
			CSV: &minio.CSVInputOptions{
				FileHeaderInfo:  header,
				RecordDelimiter: "\n",
				FieldDelimiter:  delim,
			},
		},
		OutputSerialization: minio.SelectObjectOutputSerialization{
			CSV: &minio.CSVOutputOptions{
				RecordDelimiter: "\n",
				FieldDelimiter:  delim,
			},
		},
	}
}

func selectCompression(c Compression) minio.SelectCompressionType {
	switch c {
	case CompressionGzip:
		return minio.SelectCompressionGZIP
	case CompressionBzip2:
		return minio.SelectCompressionBZIP
	case CompressionZstd:
		return minio.SelectCompressionZSTD
	default:
		return minio.SelectCompressionNONE
	}
}
