package s3select

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/s3select-go/internal/compress"
)

// Config contains connection and query settings for an object store
// supporting S3 Select.
type Config struct {
	// Endpoint is the object store address, "host:port" or a URL.
	// REQUIRED. An http:// scheme disables TLS.
	Endpoint string

	// Region of the bucket.
	// OPTIONAL: Defaults to DefaultRegion.
	Region string

	// PathStyleAccess addresses buckets as endpoint/bucket instead of
	// bucket.endpoint. Most self-hosted stores need it.
	PathStyleAccess bool

	// AccessKey and SecretKey form the static credential pair.
	// OPTIONAL: Used only when both are set; otherwise the ambient
	// providers of CredentialChain are consulted.
	AccessKey string
	SecretKey string

	// Compression of stored objects.
	// OPTIONAL: Defaults to CompressionNone.
	Compression Compression

	// Header reports that objects start with a header row naming the
	// columns. Without one, columns are addressed by position.
	Header bool

	// Delimiter separates fields within a record.
	// OPTIONAL: Defaults to ','.
	Delimiter byte

	// Insecure disables TLS.
	Insecure bool

	// DisablePushdown downloads whole objects and filters locally instead of
	// issuing select requests.
	DisablePushdown bool

	// MaxConcurrency bounds the partitions scanned at once.
	// OPTIONAL: Defaults to DefaultMaxConcurrency.
	MaxConcurrency int

	// RequestsPerSecond throttles requests to the store.
	// OPTIONAL: 0 means unlimited.
	RequestsPerSecond float64

	// MaxRecordSize bounds the bytes of one record in a result stream.
	// OPTIONAL: Defaults to record.DefaultMaxRecordSize.
	MaxRecordSize int

	// Logger for scan logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Compression names an object compression format.
type Compression = compress.Format

// Supported compression formats.
const (
	CompressionNone  = compress.None
	CompressionGzip  = compress.Gzip
	CompressionBzip2 = compress.Bzip2
	CompressionZstd  = compress.Zstd
)

const (
	DefaultRegion         = "us-east-1"
	DefaultDelimiter      = ','
	DefaultMaxConcurrency = 4
)

// Option keys recognised by ConfigFromOptions and ParseConfigYAML.
const (
	OptionEndpoint          = "endpoint"
	OptionRegion            = "region"
	OptionPathStyleAccess   = "path_style_access"
	OptionAccessKey         = "access_key"
	OptionSecretKey         = "secret_key"
	OptionCompression       = "compression"
	OptionHeader            = "header"
	OptionDelimiter         = "delimiter"
	OptionUseSSL            = "use_ssl"
	OptionPushdown          = "pushdown"
	OptionMaxConcurrency    = "max_concurrency"
	OptionRequestsPerSecond = "requests_per_second"
	OptionMaxRecordSize     = "max_record_size"
)

// Standard errors returned by the s3select package.
var (
	// ErrInvalidConfig indicates Config or request input validation failed.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNoCredentials indicates every credential provider declined.
	ErrNoCredentials = errors.New("no credentials available")
)

// ConfigFromOptions builds a Config from string options as passed by a
// host engine. Keys are case-insensitive; unrecognised keys are ignored.
// The result is validated.
func ConfigFromOptions(opts map[string]string) (Config, error) {
	var cfg Config
	useSSL := ""

	for k, v := range opts {
		var err error
		switch strings.ToLower(strings.TrimSpace(k)) {
		case OptionEndpoint:
			cfg.Endpoint = strings.TrimSpace(v)
		case OptionRegion:
			cfg.Region = strings.TrimSpace(v)
		case OptionPathStyleAccess:
			cfg.PathStyleAccess, err = parseBool(v)
		case OptionAccessKey:
			cfg.AccessKey = v
		case OptionSecretKey:
			cfg.SecretKey = v
		case OptionCompression:
			cfg.Compression, err = compress.ParseFormat(v)
		case OptionHeader:
			cfg.Header, err = parseBool(v)
		case OptionDelimiter:
			cfg.Delimiter, err = parseDelimiter(v)
		case OptionUseSSL:
			useSSL = v
		case OptionPushdown:
			var pushdown bool
			pushdown, err = parseBool(v)
			cfg.DisablePushdown = !pushdown
		case OptionMaxConcurrency:
			cfg.MaxConcurrency, err = strconv.Atoi(strings.TrimSpace(v))
			if err == nil && cfg.MaxConcurrency < 1 {
				err = errors.New("must be positive")
			}
		case OptionRequestsPerSecond:
			cfg.RequestsPerSecond, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		case OptionMaxRecordSize:
			cfg.MaxRecordSize, err = strconv.Atoi(strings.TrimSpace(v))
			if err == nil && cfg.MaxRecordSize < 1 {
				err = errors.New("must be positive")
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("%w: option %s: %v", ErrInvalidConfig, k, err)
		}
	}

	if useSSL != "" {
		secure, err := parseBool(useSSL)
		if err != nil {
			return Config{}, fmt.Errorf("%w: option %s: %v", ErrInvalidConfig, OptionUseSSL, err)
		}
		cfg.Insecure = !secure
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfigYAML reads a flat YAML mapping with the ConfigFromOptions keys.
func ParseConfigYAML(data []byte) (Config, error) {
	opts, err := OptionsFromYAML(data)
	if err != nil {
		return Config{}, err
	}
	return ConfigFromOptions(opts)
}

// OptionsFromYAML flattens a YAML mapping of scalars into string options.
// Null values are dropped.
func OptionsFromYAML(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidConfig, err)
	}

	opts := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%w: option %s: expected a scalar", ErrInvalidConfig, k)
		case nil:
			continue
		}
		opts[k] = fmt.Sprint(v)
	}
	return opts, nil
}

// Validate checks the configuration before any resource is acquired.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, OptionEndpoint)
	}
	if _, _, err := c.endpoint(); err != nil {
		return err
	}
	switch c.Compression {
	case "", CompressionNone, CompressionGzip, CompressionBzip2, CompressionZstd:
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, string(c.Compression))
	}
	if d := c.Delimiter; d == '\n' || d == '\r' {
		return fmt.Errorf("%w: delimiter cannot be a line terminator", ErrInvalidConfig)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("%w: %s and %s must be set together", ErrInvalidConfig, OptionAccessKey, OptionSecretKey)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, OptionMaxConcurrency)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, OptionRequestsPerSecond)
	}
	if c.MaxRecordSize < 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, OptionMaxRecordSize)
	}
	return nil
}

// endpoint returns the host:port to dial and whether to use TLS.
func (c Config) endpoint() (string, bool, error) {
	ep := strings.TrimSpace(c.Endpoint)
	secure := !c.Insecure

	if strings.Contains(ep, "://") {
		u, err := url.Parse(ep)
		if err != nil {
			return "", false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, OptionEndpoint, err)
		}
		switch u.Scheme {
		case "http":
			secure = false
		case "https":
		default:
			return "", false, fmt.Errorf("%w: %s: unsupported scheme %q", ErrInvalidConfig, OptionEndpoint, u.Scheme)
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("%w: %s: must not contain a path", ErrInvalidConfig, OptionEndpoint)
		}
		ep = u.Host
	}
	if ep == "" {
		return "", false, fmt.Errorf("%w: %s has no host", ErrInvalidConfig, OptionEndpoint)
	}
	return ep, secure, nil
}

func (c Config) region() string {
	if c.Region == "" {
		return DefaultRegion
	}
	return c.Region
}

func (c Config) delimiter() byte {
	if c.Delimiter == 0 {
		return DefaultDelimiter
	}
	return c.Delimiter
}

func (c Config) compression() Compression {
	if c.Compression == "" {
		return CompressionNone
	}
	return c.Compression
}

func (c Config) maxConcurrency() int {
	if c.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return c.MaxConcurrency
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%q is not true or false", v)
}

// parseDelimiter accepts a single byte or the escapes \t and \\.
func parseDelimiter(v string) (byte, error) {
	switch v {
	case `\t`:
		return '\t', nil
	case `\\`:
		return '\\', nil
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("%q is not a single character", v)
	}
	if v[0] == '\n' || v[0] == '\r' {
		return 0, errors.New("line terminators cannot delimit fields")
	}
	return v[0], nil
}
