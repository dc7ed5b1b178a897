package s3select

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/internal/compress"
	"github.com/hugr-lab/s3select-go/internal/recovery"
	"github.com/hugr-lab/s3select-go/internal/scanctx"
	"github.com/hugr-lab/s3select-go/record"
	"github.com/hugr-lab/s3select-go/schema"
)

// Scanner reads typed rows from objects, pushing projection and filters
// down to the store when it can.
//
// Each scan creates its own Executor, so no client outlives the request
// it serves. A Scanner is safe for concurrent use.
type Scanner struct {
	cfg         Config
	logger      *slog.Logger
	metrics     *Metrics
	newExecutor ExecutorFactory
	limiter     *rate.Limiter
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithExecutorFactory replaces the minio-go executor.
func WithExecutorFactory(f ExecutorFactory) ScannerOption {
	return func(s *Scanner) { s.newExecutor = f }
}

// WithMetrics records scan activity in m.
func WithMetrics(m *Metrics) ScannerOption {
	return func(s *Scanner) { s.metrics = m }
}

// NewScanner validates cfg and returns a scanner over it.
func NewScanner(cfg Config, opts ...ScannerOption) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		cfg:         cfg,
		logger:      cfg.logger(),
		newExecutor: NewMinioExecutor,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan reads the object described by in. Rows follow in.Columns and
// satisfy every filter. The caller must drain or Close the reader.
func (s *Scanner) Scan(ctx context.Context, in RequestInput) (*record.RowReader, error) {
	rows, err := recovery.RecoverToValue(s.logger, "scan", func() (*record.RowReader, error) {
		return s.scan(ctx, in)
	})
	if err != nil {
		s.metrics.fail(err)
		return nil, err
	}
	return rows, nil
}

// ScanArrow is Scan materialised into Arrow record batches of at most
// batchSize rows. A batchSize <= 0 uses record.DefaultBatchSize.
func (s *Scanner) ScanArrow(ctx context.Context, in RequestInput, alloc memory.Allocator, batchSize int) (array.RecordReader, error) {
	rows, err := s.Scan(ctx, in)
	if err != nil {
		return nil, err
	}
	return rows.ReadAll(alloc, batchSize)
}

// ScanPartitions scans every partition in its own pipeline, at most
// Config.MaxConcurrency at a time, and hands each reader to fn. Readers
// are closed when fn returns. The first failure cancels the remaining
// partitions and is returned.
func (s *Scanner) ScanPartitions(ctx context.Context, parts []RequestInput, fn func(ctx context.Context, part int, rows *record.RowReader) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.maxConcurrency())

	for i, part := range parts {
		g.Go(func() error {
			return recovery.RecoverToError(s.logger, "scan partition", func() error {
				rows, err := s.Scan(ctx, part)
				if err != nil {
					return fmt.Errorf("partition %d: %w", i, err)
				}
				defer rows.Close()

				if err := fn(ctx, i, rows); err != nil {
					return fmt.Errorf("partition %d: %w", i, err)
				}
				return nil
			})
		})
	}
	return g.Wait()
}

func (s *Scanner) scan(ctx context.Context, in RequestInput) (*record.RowReader, error) {
	req, err := BuildRequest(s.cfg, in)
	if err != nil {
		return nil, err
	}

	ctx, scanID := scanctx.EnsureScanID(ctx, uuid.NewString)
	logger := s.logger.With(
		"scan_id", scanID,
		"bucket", req.Bucket,
		"key", req.Key,
	)

	exec, err := s.newExecutor(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if s.cfg.DisablePushdown {
		return s.getObject(ctx, exec, req, in, logger)
	}
	return s.selectObject(ctx, exec, req, logger)
}

// selectObject runs the query server-side and decodes its result.
func (s *Scanner) selectObject(ctx context.Context, exec Executor, req Request, logger *slog.Logger) (*record.RowReader, error) {
	logger.Debug("Select request",
		"expression", req.Expression,
		"residual", len(req.Residual),
	)
	s.metrics.request(ModeSelect)

	body, err := exec.Select(ctx, req)
	if err != nil {
		logger.Error("Select request failed", "error", err)
		return nil, err
	}
	counted := &countingReader{rc: body}

	dec := record.NewDecoder(ctx, counted, req.Decode.Len(),
		record.WithDelimiter(req.Delimiter),
		record.WithMaxRecordSize(s.cfg.MaxRecordSize),
	)
	return s.rowReader(dec, req.Decode, req.Output, req.Residual, ModeSelect, counted, logger)
}

// getObject downloads the whole object and applies every filter locally.
func (s *Scanner) getObject(ctx context.Context, exec Executor, req Request, in RequestInput, logger *slog.Logger) (*record.RowReader, error) {
	logger.Debug("Get request", "filters", len(in.Filters))
	s.metrics.request(ModeGet)

	body, err := exec.Get(ctx, req.Bucket, req.Key)
	if err != nil {
		logger.Error("Get request failed", "error", err)
		return nil, err
	}
	counted := &countingReader{rc: body}

	rc, err := compress.NewReader(counted, req.Compression)
	if err != nil {
		return nil, err
	}

	opts := []record.DecoderOption{
		record.WithDelimiter(req.Delimiter),
		record.WithMaxRecordSize(s.cfg.MaxRecordSize),
	}
	if req.Header {
		opts = append(opts, record.WithSkipHeader())
	}
	dec := record.NewDecoder(ctx, rc, in.Schema.Len(), opts...)
	return s.rowReader(dec, in.Schema, req.Output, in.Filters, ModeGet, counted, logger)
}

func (s *Scanner) rowReader(dec *record.Decoder, decode, output *schema.Schema, preds []filter.Predicate,
	mode string, counted *countingReader, logger *slog.Logger) (*record.RowReader, error) {
	start := time.Now()

	opts := []record.RowOption{
		record.WithProjection(output),
		record.WithCloseHook(func(st record.Stats) {
			// Runs from Close, which must not panic out of a deferred call.
			recovery.Recover(logger, "scan close hook", func() {
				bytes := counted.n.Load()
				s.metrics.finish(mode, st.Rows, bytes, time.Since(start).Seconds())
				if st.Err != nil {
					s.metrics.fail(st.Err)
					logger.Error("Scan failed",
						"error", st.Err,
						"kind", ErrorKind(st.Err),
						"records", st.Records,
					)
					return
				}
				logger.Info("Scan finished",
					"mode", mode,
					"records", st.Records,
					"rows", st.Rows,
					"bytes", bytes,
				)
			})
		}),
	}

	if len(preds) > 0 {
		match, err := filter.Matcher(decode, preds)
		if err != nil {
			dec.Close()
			return nil, err
		}
		opts = append(opts, record.WithFilter(func(r record.Row) (bool, error) {
			return match(r)
		}))
	}

	rows, err := record.NewRowReader(dec, decode, opts...)
	if err != nil {
		dec.Close()
		return nil, err
	}
	return rows, nil
}

// countingReader counts bytes read from the store.
type countingReader struct {
	rc io.ReadCloser
	n  atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Close() error { return c.rc.Close() }
