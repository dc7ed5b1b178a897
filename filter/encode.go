package filter

import (
	"strings"

	"github.com/hugr-lab/s3select-go/schema"
)

// Encoder converts predicates to query text.
// Implementations handle dialect-specific syntax.
type Encoder interface {
	// Encode converts a single predicate to a condition.
	// Returns ErrUnsupportedPredicate if the dialect cannot express it.
	Encode(s *schema.Schema, p Predicate) (string, error)

	// EncodeFilters converts all predicates to a WHERE clause body.
	// Returns the condition portion without "WHERE" keyword.
	// Returns empty string for an empty predicate list.
	EncodeFilters(s *schema.Schema, preds []Predicate) (string, error)
}

// DefaultAlias is the source alias every column reference is qualified with.
const DefaultAlias = "s"

// EncoderOptions configures encoding behavior.
type EncoderOptions struct {
	// Alias qualifies column references. Defaults to DefaultAlias.
	Alias string

	// Positional renders columns as _N, N being the 1-based position of the
	// field in the schema. Use for delimited objects without a header row.
	Positional bool

	// ColumnMapping maps schema field names to object column names.
	// Columns not in the map use their schema names. Ignored when Positional.
	ColumnMapping map[string]string
}

// escapeString escapes single quotes in a string value.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteLiteral returns a string literal with proper escaping.
func quoteLiteral(s string) string {
	return "'" + escapeString(s) + "'"
}

// quoteIdentifier returns a double-quoted identifier.
// Quoted identifiers are matched case-sensitively by the service, so every
// name is quoted.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// likeEscape is the escape character declared in LIKE patterns.
const likeEscape = '\\'

// escapeLike escapes LIKE wildcards so pattern matches text literally.
func escapeLike(pattern string) string {
	var sb strings.Builder
	sb.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '%' || c == '_' || c == likeEscape {
			sb.WriteByte(likeEscape)
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
