// Package scanctx carries scan identifiers through request contexts so that
// log lines of one scan, or of one distributed task, can be correlated.
package scanctx

import "context"

// scanKey is the unexported context key for the scan ID.
type scanKey struct{}

// WithScanID returns a new context with the scan ID stored.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanKey{}, id)
}

// ScanIDFromContext retrieves the scan ID if present.
// Returns ("", false) if no scan ID is set.
func ScanIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scanKey{}).(string)
	return id, ok && id != ""
}

// EnsureScanID returns ctx unchanged when it already carries a scan ID,
// otherwise a context with one made by newID.
func EnsureScanID(ctx context.Context, newID func() string) (context.Context, string) {
	if id, ok := ScanIDFromContext(ctx); ok {
		return ctx, id
	}
	id := newID()
	return WithScanID(ctx, id), id
}
