// Package compress opens decompressing readers over whole-object downloads.
// The select path never needs it: the service decompresses server-side.
package compress

import (
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format names an object compression format.
type Format string

const (
	None  Format = "NONE"
	Gzip  Format = "GZIP"
	Bzip2 Format = "BZIP2"
	Zstd  Format = "ZSTD"
)

// ErrUnknownFormat is returned for a format name outside the known set.
var ErrUnknownFormat = errors.New("unknown compression format")

// ParseFormat resolves a case-insensitive format name. The empty string
// is None.
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "NONE":
		return None, nil
	case "GZIP", "GZ":
		return Gzip, nil
	case "BZIP2", "BZ2":
		return Bzip2, nil
	case "ZSTD":
		return Zstd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// NewReader wraps rc so reads return decompressed bytes. Closing the
// result releases the decompressor and closes rc. On error rc is closed.
func NewReader(rc io.ReadCloser, f Format) (io.ReadCloser, error) {
	switch f {
	case None, "":
		return rc, nil

	case Gzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error {
			zerr := zr.Close()
			if err := rc.Close(); err != nil {
				return err
			}
			return zerr
		}}, nil

	case Bzip2:
		return &readCloser{Reader: bzip2.NewReader(rc), close: rc.Close}, nil

	case Zstd:
		// Single goroutine: one decoder per object stream.
		zr, err := zstd.NewReader(rc, zstd.WithDecoderConcurrency(1))
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error {
			zr.Close()
			return rc.Close()
		}}, nil
	}

	rc.Close()
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

type readCloser struct {
	io.Reader
	close func() error
	done  bool
}

func (r *readCloser) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.close()
}
