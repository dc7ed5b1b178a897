package filter

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hugr-lab/s3select-go/schema"
)

// SourceTable is the fixed source name of the S3 Select dialect.
const SourceTable = "S3Object"

// S3SelectEncoder encodes predicates to the S3 Select SQL dialect over
// delimited text objects.
//
// Every cell of a delimited object is text on the server side, so operands
// of non-String fields are cast (INT, FLOAT, DECIMAL, BOOL, TIMESTAMP) and
// nullable fields map the empty cell to NULL with NULLIF, matching the
// values the record decoder produces. Date fields compare as text, which is
// ordered correctly for the canonical YYYY-MM-DD layout.
type S3SelectEncoder struct {
	opts *EncoderOptions
}

var _ Encoder = (*S3SelectEncoder)(nil)

// NewS3SelectEncoder creates a new S3 Select encoder.
// If opts is nil, default options are used.
func NewS3SelectEncoder(opts *EncoderOptions) *S3SelectEncoder {
	o := EncoderOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Alias == "" {
		o.Alias = DefaultAlias
	}
	return &S3SelectEncoder{opts: &o}
}

// Translate renders a complete query: every field of s in schema order as
// the projection and preds, AND-ed, as the WHERE clause. An empty predicate
// list produces no WHERE clause. Any predicate the dialect cannot express
// fails the whole translation; use Split to push down what is expressible.
func (e *S3SelectEncoder) Translate(s *schema.Schema, preds []Predicate) (string, error) {
	where, err := e.EncodeFilters(s, preds)
	if err != nil {
		return "", err
	}
	return e.SelectStatement(s, s.Names(), where)
}

// SelectStatement renders SELECT <columns> FROM S3Object <alias> [WHERE where].
// Columns are resolved against s and listed in the given order.
func (e *S3SelectEncoder) SelectStatement(s *schema.Schema, columns []string, where string) (string, error) {
	if len(columns) == 0 {
		columns = s.Names()
	}

	refs := make([]string, len(columns))
	for i, name := range columns {
		ref, err := e.Column(s, name)
		if err != nil {
			return "", err
		}
		refs[i] = ref
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(refs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(SourceTable)
	sb.WriteString(" ")
	sb.WriteString(e.opts.Alias)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String(), nil
}

// Column returns the alias-qualified reference of the named field.
func (e *S3SelectEncoder) Column(s *schema.Schema, name string) (string, error) {
	idx := s.Index(name)
	if idx < 0 {
		return "", &FieldError{Field: name}
	}
	if e.opts.Positional {
		return e.opts.Alias + "._" + strconv.Itoa(idx+1), nil
	}
	if mapped, ok := e.opts.ColumnMapping[name]; ok {
		name = mapped
	}
	return e.opts.Alias + "." + quoteIdentifier(name), nil
}

// EncodeFilters converts all predicates to a WHERE clause body.
// Multiple predicates are AND-ed together.
func (e *S3SelectEncoder) EncodeFilters(s *schema.Schema, preds []Predicate) (string, error) {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if err := Validate(s, p); err != nil {
			return "", err
		}
		encoded, err := e.Encode(s, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, encoded)
	}
	return joinConjuncts(parts), nil
}

// Split pushes down every expressible top-level conjunct and returns the
// others as residual predicates that the caller must apply locally.
// Nested AND nodes are flattened first, so a partially expressible
// conjunction is still partially pushed. An unknown field reference is an
// error regardless of expressibility.
func (e *S3SelectEncoder) Split(s *schema.Schema, preds []Predicate) (string, []Predicate, error) {
	var parts []string
	var residual []Predicate

	for _, p := range flattenAnd(preds) {
		if err := Validate(s, p); err != nil {
			return "", nil, err
		}
		encoded, err := e.Encode(s, p)
		if errors.Is(err, ErrUnsupportedPredicate) {
			residual = append(residual, p)
			continue
		}
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, encoded)
	}
	return joinConjuncts(parts), residual, nil
}

// joinConjuncts joins conditions as (a) AND (b) ...
func joinConjuncts(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, ") AND (") + ")"
}

// flattenAnd expands AND nodes into their children, recursively.
func flattenAnd(preds []Predicate) []Predicate {
	var out []Predicate
	for _, p := range preds {
		if c, ok := p.(*Conjunction); ok && c.Op == TypeAnd && len(c.Children) > 0 {
			out = append(out, flattenAnd(c.Children)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Encode converts a single predicate to a condition.
func (e *S3SelectEncoder) Encode(s *schema.Schema, p Predicate) (string, error) {
	switch pr := p.(type) {
	case *Comparison:
		return e.encodeComparison(s, pr)
	case *InList:
		return e.encodeIn(s, pr)
	case *NullCheck:
		return e.encodeNullCheck(s, pr)
	case *StringMatch:
		return e.encodeStringMatch(s, pr)
	case *Conjunction:
		return e.encodeConjunction(s, pr)
	case *Negation:
		return e.encodeNegation(s, pr)
	case nil:
		return "", &UnsupportedError{Reason: "nil predicate"}
	default:
		return "", &UnsupportedError{Predicate: p.Type(), Reason: "unknown predicate kind"}
	}
}

// comparisonOps maps comparison types to dialect operators.
var comparisonOps = map[PredicateType]string{
	TypeEquals:         "=",
	TypeNotEquals:      "<>",
	TypeGreaterThan:    ">",
	TypeGreaterOrEqual: ">=",
	TypeLessThan:       "<",
	TypeLessOrEqual:    "<=",
}

// encodeComparison encodes field <op> literal.
func (e *S3SelectEncoder) encodeComparison(s *schema.Schema, c *Comparison) (string, error) {
	op, ok := comparisonOps[c.Op]
	if !ok {
		return "", &UnsupportedError{Predicate: c.Op, Field: c.Field, Reason: "unknown comparison operator"}
	}
	f, operand, err := e.operand(s, c.Field)
	if err != nil {
		return "", err
	}
	lit, err := e.formatLiteral(f, c.Value)
	if err != nil {
		return "", unsupported(c, c.Field, err)
	}
	return operand + " " + op + " " + lit, nil
}

// encodeIn encodes field IN (values...).
func (e *S3SelectEncoder) encodeIn(s *schema.Schema, in *InList) (string, error) {
	f, operand, err := e.operand(s, in.Field)
	if err != nil {
		return "", err
	}
	if len(in.Values) == 0 {
		return "", &UnsupportedError{Predicate: TypeIn, Field: in.Field, Reason: "empty value list"}
	}

	values := make([]string, len(in.Values))
	for i, v := range in.Values {
		lit, err := e.formatLiteral(f, v)
		if err != nil {
			return "", unsupported(in, in.Field, err)
		}
		values[i] = lit
	}
	return operand + " IN (" + strings.Join(values, ", ") + ")", nil
}

// encodeNullCheck encodes IS [NOT] NULL. The empty cell counts as NULL.
func (e *S3SelectEncoder) encodeNullCheck(s *schema.Schema, n *NullCheck) (string, error) {
	col, err := e.Column(s, n.Field)
	if err != nil {
		return "", err
	}
	expr := "NULLIF(" + col + ", '')"
	if n.Negated {
		return expr + " IS NOT NULL", nil
	}
	return expr + " IS NULL", nil
}

// encodeStringMatch encodes prefix/suffix/substring tests as LIKE patterns.
func (e *S3SelectEncoder) encodeStringMatch(s *schema.Schema, m *StringMatch) (string, error) {
	f, operand, err := e.operand(s, m.Field)
	if err != nil {
		return "", err
	}
	if f.Type != schema.TypeString {
		return "", &UnsupportedError{Predicate: m.Op, Field: m.Field, Reason: "pattern match on " + string(f.Type) + " field"}
	}

	pattern := escapeLike(m.Value)
	switch m.Op {
	case TypeStartsWith:
		pattern = pattern + "%"
	case TypeEndsWith:
		pattern = "%" + pattern
	case TypeContains:
		pattern = "%" + pattern + "%"
	default:
		return "", &UnsupportedError{Predicate: m.Op, Field: m.Field, Reason: "unknown string match"}
	}
	return operand + " LIKE " + quoteLiteral(pattern) + " ESCAPE " + quoteLiteral(string(likeEscape)), nil
}

// encodeConjunction encodes AND/OR. Every child must be expressible;
// dropping a child would change the result of either operator.
func (e *S3SelectEncoder) encodeConjunction(s *schema.Schema, c *Conjunction) (string, error) {
	if c.Op != TypeAnd && c.Op != TypeOr {
		return "", &UnsupportedError{Predicate: c.Op, Reason: "unknown conjunction"}
	}
	if len(c.Children) == 0 {
		return "", &UnsupportedError{Predicate: c.Op, Reason: "no operands"}
	}

	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		encoded, err := e.Encode(s, child)
		if err != nil {
			return "", err
		}
		parts[i] = encoded
	}

	op := " AND "
	if c.Op == TypeOr {
		op = " OR "
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

// encodeNegation encodes NOT (child).
func (e *S3SelectEncoder) encodeNegation(s *schema.Schema, n *Negation) (string, error) {
	child, err := e.Encode(s, n.Child)
	if err != nil {
		return "", err
	}
	return "NOT (" + child + ")", nil
}

// operand returns the field and the typed expression used to compare it.
func (e *S3SelectEncoder) operand(s *schema.Schema, name string) (schema.Field, string, error) {
	f, ok := s.Lookup(name)
	if !ok {
		return schema.Field{}, "", &FieldError{Field: name}
	}
	expr, err := e.Column(s, name)
	if err != nil {
		return f, "", err
	}
	if f.Nullable {
		expr = "NULLIF(" + expr + ", '')"
	}
	if t := castType(f.Type); t != "" {
		expr = "CAST(" + expr + " AS " + t + ")"
	}
	return f, expr, nil
}

// castType returns the dialect type a text cell is cast to before comparison.
// String and Date compare as text.
func castType(t schema.FieldType) string {
	switch t {
	case schema.TypeInt32, schema.TypeInt64:
		return "INT"
	case schema.TypeFloat64:
		return "FLOAT"
	case schema.TypeDecimal:
		return "DECIMAL"
	case schema.TypeBoolean:
		return "BOOL"
	case schema.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return ""
	}
}

var (
	errNullLiteral = errors.New("null literal never compares true")
	errLiteralKind = errors.New("literal type does not match field type")
	errNotFinite   = errors.New("non-finite float literal")
	errInt32Range  = errors.New("integer literal out of int32 range")
	errBadTemporal = errors.New("literal is not in the canonical layout")
)

// formatLiteral renders v as a literal comparable with field f.
func (e *S3SelectEncoder) formatLiteral(f schema.Field, v Literal) (string, error) {
	if v.IsNull() {
		return "", errNullLiteral
	}

	switch f.Type {
	case schema.TypeString:
		if v.Kind == KindString {
			return quoteLiteral(v.Str), nil
		}

	case schema.TypeBoolean:
		if v.Kind == KindBoolean {
			return strconv.FormatBool(v.Bool), nil
		}

	case schema.TypeInt32:
		if v.Kind == KindInteger {
			if v.Int < math.MinInt32 || v.Int > math.MaxInt32 {
				return "", errInt32Range
			}
			return strconv.FormatInt(v.Int, 10), nil
		}

	case schema.TypeInt64:
		if v.Kind == KindInteger {
			return strconv.FormatInt(v.Int, 10), nil
		}

	case schema.TypeFloat64, schema.TypeDecimal:
		switch v.Kind {
		case KindInteger:
			return strconv.FormatInt(v.Int, 10), nil
		case KindFloat:
			if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
				return "", errNotFinite
			}
			return strconv.FormatFloat(v.Float, 'f', -1, 64), nil
		}

	case schema.TypeDate:
		if v.Kind == KindString {
			if _, err := time.Parse(schema.DateLayout, v.Str); err != nil {
				return "", errBadTemporal
			}
			return quoteLiteral(v.Str), nil
		}

	case schema.TypeTimestamp:
		if v.Kind == KindString {
			if _, err := time.Parse(schema.TimestampLayout, v.Str); err != nil {
				return "", errBadTemporal
			}
			return "CAST(" + quoteLiteral(v.Str) + " AS TIMESTAMP)", nil
		}
	}
	return "", errLiteralKind
}

func unsupported(p Predicate, field string, cause error) error {
	return &UnsupportedError{Predicate: p.Type(), Field: field, Reason: cause.Error()}
}
