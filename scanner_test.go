package s3select

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/internal/recovery"
	"github.com/hugr-lab/s3select-go/internal/scanctx"
	"github.com/hugr-lab/s3select-go/record"
	"github.com/hugr-lab/s3select-go/schema"
)

// body is a response stream that records whether it was closed.
type body struct {
	io.Reader
	closed atomic.Bool
}

func (b *body) Close() error {
	b.closed.Store(true)
	return nil
}

// fakeStore serves canned select results and objects by key.
type fakeStore struct {
	mu       sync.Mutex
	results  map[string]string
	objects  map[string][]byte
	requests []Request
	scanIDs  []string
	gets     []string
	bodies   []*body
	created  atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{results: map[string]string{}, objects: map[string][]byte{}}
}

func (f *fakeStore) factory(context.Context, Config) (Executor, error) {
	f.created.Add(1)
	return f, nil
}

func (f *fakeStore) open(data []byte) *body {
	b := &body{Reader: bytes.NewReader(data)}
	f.bodies = append(f.bodies, b)
	return b
}

func (f *fakeStore) Select(ctx context.Context, req Request) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	id, _ := scanctx.ScanIDFromContext(ctx)
	f.scanIDs = append(f.scanIDs, id)
	res, ok := f.results[req.Key]
	if !ok {
		return nil, errors.New("no such key: " + req.Key)
	}
	return f.open([]byte(res)), nil
}

func (f *fakeStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, bucket+"/"+key)
	obj, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return f.open(obj), nil
}

func (f *fakeStore) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bodies {
		if !b.closed.Load() {
			return false
		}
	}
	return true
}

func quietConfig(cfg Config) Config {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newTestScanner(t testing.TB, cfg Config, store *fakeStore, opts ...ScannerOption) *Scanner {
	t.Helper()
	opts = append([]ScannerOption{WithExecutorFactory(store.factory)}, opts...)
	s, err := NewScanner(quietConfig(cfg), opts...)
	require.NoError(t, err)
	return s
}

func TestScanPushdownWithResidual(t *testing.T) {
	store := newFakeStore()
	// What the store returns for SELECT s._2, s._3 ... WHERE s._4 = 'Pune'.
	store.results["people.csv"] = "Alice,34\nBob,\nCarol,20\nDan,31\n"

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := newTestScanner(t, Config{Endpoint: "h"}, store, WithMetrics(metrics))

	rows, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"name"},
		Filters: []filter.Predicate{
			filter.Equals("city", filter.String("Pune")),
			filter.GreaterThan("age", filter.Float(30.5)),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, rows.Schema().Names())

	got, err := rows.Collect()
	require.NoError(t, err)
	assert.Equal(t, []record.Row{{"Alice"}, {"Dan"}}, got)

	require.Len(t, store.requests, 1)
	assert.Equal(t, `SELECT s._2, s._3 FROM S3Object s WHERE s._4 = 'Pune'`, store.requests[0].Expression)
	assert.Empty(t, store.gets)
	assert.True(t, store.allClosed())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(ModeSelect)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Rows))
	assert.Equal(t, float64(len(store.results["people.csv"])), testutil.ToFloat64(metrics.Bytes.WithLabelValues(ModeSelect)))
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestScanFallbackFiltersLocally(t *testing.T) {
	store := newFakeStore()
	store.objects["people.csv.gz"] = gzipBytes(t,
		"id,name,age,city\n1,Alice,34,Pune\n2,Bob,,Pune\n3,Carol,45,Delhi\n4,Dan,31,Pune\n")

	cfg := Config{Endpoint: "h", Header: true, Compression: CompressionGzip, DisablePushdown: true}
	s := newTestScanner(t, cfg, store)

	rows, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv.gz",
		Schema:  peopleSchema(),
		Columns: []string{"id"},
		Filters: []filter.Predicate{
			filter.GreaterThan("age", filter.Int(30)),
			filter.Equals("city", filter.String("Pune")),
		},
	})
	require.NoError(t, err)

	got, err := rows.Collect()
	require.NoError(t, err)
	assert.Equal(t, []record.Row{{int32(1)}, {int32(4)}}, got)

	assert.Empty(t, store.requests)
	assert.Equal(t, []string{"b/people.csv.gz"}, store.gets)
	assert.True(t, store.allClosed())
}

func TestScanArityMismatchAborts(t *testing.T) {
	store := newFakeStore()
	store.results["bad.csv"] = "1,Alice\n3,Carol,Extra\n4,Dan\n"

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store, WithMetrics(metrics))

	rows, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "bad.csv",
		Schema:  peopleSchema(),
		Columns: []string{"id", "name"},
	})
	require.NoError(t, err)

	got, err := rows.Collect()
	assert.ErrorIs(t, err, record.ErrRecordArityMismatch)
	assert.Equal(t, []record.Row{{int32(1), "Alice"}}, got)
	assert.False(t, rows.Next(), "no rows after an arity failure")
	assert.True(t, store.allClosed())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("arity")))
}

func TestScanBuildErrorCreatesNoExecutor(t *testing.T) {
	store := newFakeStore()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := newTestScanner(t, Config{Endpoint: "h"}, store, WithMetrics(metrics))

	_, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "k",
		Schema:  peopleSchema(),
		Columns: []string{"missing"},
	})
	assert.ErrorIs(t, err, schema.ErrUnknownColumn)
	assert.Zero(t, store.created.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("translation")))
}

func TestScanLiteralMismatchSendsNoRequest(t *testing.T) {
	for _, disable := range []bool{false, true} {
		store := newFakeStore()
		// An all-null age column would otherwise yield zero rows and no error.
		store.results["people.csv"] = "\n\n"
		store.objects["people.csv"] = []byte("1,Alice,,Pune\n")
		cfg := testConfig()
		cfg.Header = false
		cfg.DisablePushdown = disable
		s := newTestScanner(t, cfg, store)

		_, err := s.Scan(context.Background(), RequestInput{
			Bucket:  "b",
			Key:     "people.csv",
			Schema:  peopleSchema(),
			Columns: []string{"age"},
			Filters: []filter.Predicate{filter.Equals("age", filter.String("thirty"))},
		})
		assert.ErrorIs(t, err, filter.ErrTypeMismatch)
		assert.Equal(t, "translation", ErrorKind(err))
		assert.Zero(t, store.created.Load())
		assert.Empty(t, store.requests)
		assert.Empty(t, store.gets)
	}
}

func TestScanExecutorError(t *testing.T) {
	s, err := NewScanner(quietConfig(Config{Endpoint: "h"}), WithExecutorFactory(
		func(context.Context, Config) (Executor, error) { return nil, ErrNoCredentials },
	))
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), RequestInput{Bucket: "b", Key: "k", Schema: peopleSchema()})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestScanSelectError(t *testing.T) {
	store := newFakeStore()
	s := newTestScanner(t, Config{Endpoint: "h"}, store)

	_, err := s.Scan(context.Background(), RequestInput{Bucket: "b", Key: "absent", Schema: peopleSchema()})
	assert.ErrorContains(t, err, "no such key")
}

func TestNewScannerValidates(t *testing.T) {
	_, err := NewScanner(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestScanArrow(t *testing.T) {
	store := newFakeStore()
	store.results["people.csv"] = "1,Alice,34\n2,Bob,\n3,Carol,45\n"
	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store)

	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	rdr, err := s.ScanArrow(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"id", "name", "age"},
	}, alloc, 2)
	require.NoError(t, err)
	defer rdr.Release()

	var total int64
	for rdr.Next() {
		rec := rdr.RecordBatch()
		total += rec.NumRows()
		assert.Equal(t, int64(3), rec.NumCols())
	}
	require.NoError(t, rdr.Err())
	assert.Equal(t, int64(3), total)
}

func TestScanArrowNullColumn(t *testing.T) {
	store := newFakeStore()
	store.results["people.csv"] = "34\n\n"
	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store)

	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	rdr, err := s.ScanArrow(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"age"},
	}, alloc, 0)
	require.NoError(t, err)
	defer rdr.Release()

	require.True(t, rdr.Next())
	col := rdr.RecordBatch().Column(0).(*array.Int32)
	assert.Equal(t, int32(34), col.Value(0))
	assert.True(t, col.IsNull(1))
}

func TestScanPartitions(t *testing.T) {
	store := newFakeStore()
	store.results["p0"] = "1,Alice\n2,Bob\n"
	store.results["p1"] = "3,Carol\n"
	store.results["p2"] = "4,Dan\n5,Eve\n6,Frank\n"

	s := newTestScanner(t, Config{Endpoint: "h", Header: true, MaxConcurrency: 2}, store)

	parts := make([]RequestInput, 3)
	for i := range parts {
		parts[i] = RequestInput{
			Bucket:  "b",
			Key:     "p" + string(rune('0'+i)),
			Schema:  peopleSchema(),
			Columns: []string{"id", "name"},
		}
	}

	var mu sync.Mutex
	counts := map[int]int{}
	err := s.ScanPartitions(context.Background(), parts, func(_ context.Context, part int, rows *record.RowReader) error {
		got, err := rows.Collect()
		if err != nil {
			return err
		}
		mu.Lock()
		counts[part] = len(got)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[int]int{0: 2, 1: 1, 2: 3}, counts)
	assert.Equal(t, int32(3), store.created.Load(), "one executor per partition")
	assert.True(t, store.allClosed())
}

func TestScanPartitionsFailure(t *testing.T) {
	store := newFakeStore()
	store.results["p0"] = "1,Alice\n"

	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store)
	parts := []RequestInput{
		{Bucket: "b", Key: "p0", Schema: peopleSchema(), Columns: []string{"id", "name"}},
		{Bucket: "b", Key: "missing", Schema: peopleSchema(), Columns: []string{"id", "name"}},
	}

	err := s.ScanPartitions(context.Background(), parts, func(context.Context, int, *record.RowReader) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partition 1")
}

func TestScanPartitionsRecoversPanic(t *testing.T) {
	store := newFakeStore()
	store.results["p0"] = "1,Alice\n"

	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store)
	parts := []RequestInput{{Bucket: "b", Key: "p0", Schema: peopleSchema(), Columns: []string{"id", "name"}}}

	err := s.ScanPartitions(context.Background(), parts, func(context.Context, int, *record.RowReader) error {
		panic("consumer bug")
	})
	assert.ErrorIs(t, err, recovery.ErrPanic)
	assert.True(t, store.allClosed())
}

func TestScanMaxRecordSize(t *testing.T) {
	for _, pushdown := range []bool{true, false} {
		store := newFakeStore()
		store.results["people.csv"] = "1,Al\n2,Bartholomew\n"
		store.objects["people.csv"] = []byte("1,Al,3,Pune\n2,Bartholomew,40,Pune\n")
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		s := newTestScanner(t, Config{Endpoint: "h", MaxRecordSize: 12, DisablePushdown: !pushdown}, store, WithMetrics(metrics))

		rows, err := s.Scan(context.Background(), RequestInput{
			Bucket:  "b",
			Key:     "people.csv",
			Schema:  peopleSchema(),
			Columns: []string{"id", "name"},
		})
		require.NoError(t, err)

		got, err := rows.Collect()
		assert.ErrorIs(t, err, record.ErrRecordTooLarge, "pushdown=%v", pushdown)
		assert.Equal(t, []record.Row{{int32(1), "Al"}}, got)
		assert.True(t, store.allClosed())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("record_size")))
	}
}

func TestScanRecoversExecutorPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s, err := NewScanner(quietConfig(Config{Endpoint: "h"}),
		WithMetrics(metrics),
		WithExecutorFactory(func(context.Context, Config) (Executor, error) {
			panic("factory bug")
		}),
	)
	require.NoError(t, err)

	rows, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"id", "name"},
	})
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, recovery.ErrPanic)
	assert.Contains(t, err.Error(), "factory bug")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("panic")))
}

// panicHandler panics when it sees msg.
type panicHandler struct {
	slog.Handler
	msg string
}

func (h panicHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Message == h.msg {
		panic("handler bug")
	}
	return h.Handler.Handle(ctx, r)
}

func (h panicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return panicHandler{Handler: h.Handler.WithAttrs(attrs), msg: h.msg}
}

func (h panicHandler) WithGroup(name string) slog.Handler {
	return panicHandler{Handler: h.Handler.WithGroup(name), msg: h.msg}
}

func TestScanCloseHookPanicIsContained(t *testing.T) {
	store := newFakeStore()
	store.results["people.csv"] = "1,Alice\n2,Bob\n"

	cfg := Config{Endpoint: "h", Header: true}
	cfg.Logger = slog.New(panicHandler{Handler: slog.NewTextHandler(io.Discard, nil), msg: "Scan finished"})
	s, err := NewScanner(cfg, WithExecutorFactory(store.factory))
	require.NoError(t, err)

	rows, err := s.Scan(context.Background(), RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"id", "name"},
	})
	require.NoError(t, err)

	var got []record.Row
	assert.NotPanics(t, func() {
		got, err = rows.Collect()
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, rows.Close())
	assert.True(t, store.allClosed())
}

func TestScanCanceled(t *testing.T) {
	store := newFakeStore()
	store.results["people.csv"] = strings.Repeat("1,Alice\n", 100)
	s := newTestScanner(t, Config{Endpoint: "h", Header: true}, store)

	ctx, cancel := context.WithCancel(context.Background())
	rows, err := s.Scan(ctx, RequestInput{
		Bucket:  "b",
		Key:     "people.csv",
		Schema:  peopleSchema(),
		Columns: []string{"id", "name"},
	})
	require.NoError(t, err)

	require.True(t, rows.Next())
	cancel()
	for rows.Next() {
	}
	assert.ErrorIs(t, rows.Err(), context.Canceled)
	assert.True(t, store.allClosed())
}

func TestScanRateLimited(t *testing.T) {
	store := newFakeStore()
	store.results["people.csv"] = "1,Alice\n"
	s := newTestScanner(t, Config{Endpoint: "h", Header: true, RequestsPerSecond: 1000}, store)
	require.NotNil(t, s.limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, RequestInput{Bucket: "b", Key: "people.csv", Schema: peopleSchema(), Columns: []string{"id", "name"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{ErrInvalidConfig, "config"},
		{ErrNoCredentials, "credentials"},
		{filter.ErrUnsupportedPredicate, "translation"},
		{&filter.FieldError{Field: "x"}, "translation"},
		{record.ErrRecordArityMismatch, "arity"},
		{&record.CastError{Err: errors.New("bad")}, "cast"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("%w: scan: boom", recovery.ErrPanic), "panic"},
		{fmt.Errorf("%w: record 3 exceeds 8 bytes", record.ErrRecordTooLarge), "record_size"},
		{errors.New("connection reset"), "transport"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, ErrorKind(tt.err), "%v", tt.err)
	}
}
