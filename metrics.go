package s3select

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/internal/recovery"
	"github.com/hugr-lab/s3select-go/record"
	"github.com/hugr-lab/s3select-go/schema"
)

// Scan modes.
const (
	ModeSelect = "select"
	ModeGet    = "get"
)

// Metrics counts scan activity. A nil *Metrics records nothing.
type Metrics struct {
	// Requests counts requests to the store by mode.
	Requests *prometheus.CounterVec
	// Rows counts rows delivered to callers.
	Rows prometheus.Counter
	// Bytes counts response bytes read from the store by mode.
	Bytes *prometheus.CounterVec
	// Errors counts failed scans by error kind.
	Errors *prometheus.CounterVec
	// Duration observes scan wall time from request to close, by mode.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the scan metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3select_requests_total",
				Help: "Total number of object store requests",
			},
			[]string{"mode"},
		),
		Rows: f.NewCounter(
			prometheus.CounterOpts{
				Name: "s3select_rows_total",
				Help: "Total number of rows delivered",
			},
		),
		Bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3select_response_bytes_total",
				Help: "Total number of response bytes read",
			},
			[]string{"mode"},
		),
		Errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3select_errors_total",
				Help: "Total number of failed scans",
			},
			[]string{"kind"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3select_scan_duration_seconds",
				Help:    "Scan latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
}

func (m *Metrics) request(mode string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(mode).Inc()
}

func (m *Metrics) finish(mode string, rows, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.Rows.Add(float64(rows))
	m.Bytes.WithLabelValues(mode).Add(float64(bytes))
	m.Duration.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) fail(err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(ErrorKind(err)).Inc()
}

// ErrorKind classifies err for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfig):
		return "config"
	case errors.Is(err, ErrNoCredentials):
		return "credentials"
	case errors.Is(err, filter.ErrUnsupportedPredicate),
		errors.Is(err, filter.ErrUnknownField),
		errors.Is(err, filter.ErrTypeMismatch),
		errors.Is(err, schema.ErrUnknownColumn),
		errors.Is(err, schema.ErrDuplicateColumn):
		return "translation"
	case errors.Is(err, record.ErrRecordArityMismatch):
		return "arity"
	case errors.Is(err, record.ErrRecordTooLarge):
		return "record_size"
	case errors.Is(err, record.ErrCast):
		return "cast"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, recovery.ErrPanic):
		return "panic"
	default:
		return "transport"
	}
}
