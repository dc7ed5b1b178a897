package filter

import (
	"cmp"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/decimal128"

	"github.com/hugr-lab/s3select-go/schema"
)

// truth is a SQL three-valued logic result.
type truth int8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Matcher validates preds against s and returns a function reporting
// whether a row laid out as s satisfies all of them. Rows for which a
// predicate evaluates to NULL do not match, as in a SQL WHERE clause.
//
// Unknown fields and literals that can never compare with their field are
// reported here, not when the first row arrives.
func Matcher(s *schema.Schema, preds []Predicate) (func(row []any) (bool, error), error) {
	for _, p := range preds {
		if err := CheckTypes(s, p); err != nil {
			return nil, err
		}
	}
	return func(row []any) (bool, error) {
		if len(row) != s.Len() {
			return false, fmt.Errorf("row has %d values, schema has %d fields", len(row), s.Len())
		}
		for _, p := range preds {
			t, err := eval(s, p, row)
			if err != nil {
				return false, err
			}
			if t != isTrue {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

// Eval reports whether row, laid out as s, satisfies p.
func Eval(s *schema.Schema, p Predicate, row []any) (bool, error) {
	match, err := Matcher(s, []Predicate{p})
	if err != nil {
		return false, err
	}
	return match(row)
}

func eval(s *schema.Schema, p Predicate, row []any) (truth, error) {
	switch pr := p.(type) {
	case *Comparison:
		f, v := lookup(s, pr.Field, row)
		if v == nil || pr.Value.IsNull() {
			return unknown, nil
		}
		c, err := compareValue(f, v, pr.Value)
		if err != nil {
			return unknown, err
		}
		switch pr.Op {
		case TypeEquals:
			return truthOf(c == 0), nil
		case TypeNotEquals:
			return truthOf(c != 0), nil
		case TypeGreaterThan:
			return truthOf(c > 0), nil
		case TypeGreaterOrEqual:
			return truthOf(c >= 0), nil
		case TypeLessThan:
			return truthOf(c < 0), nil
		case TypeLessOrEqual:
			return truthOf(c <= 0), nil
		}
		return unknown, &UnsupportedError{Predicate: pr.Op, Field: pr.Field, Reason: "unknown comparison operator"}

	case *InList:
		f, v := lookup(s, pr.Field, row)
		if v == nil {
			return unknown, nil
		}
		result := isFalse
		for _, lit := range pr.Values {
			if lit.IsNull() {
				result = unknown
				continue
			}
			c, err := compareValue(f, v, lit)
			if err != nil {
				return unknown, err
			}
			if c == 0 {
				return isTrue, nil
			}
		}
		return result, nil

	case *NullCheck:
		_, v := lookup(s, pr.Field, row)
		return truthOf((v == nil) != pr.Negated), nil

	case *StringMatch:
		f, v := lookup(s, pr.Field, row)
		if v == nil {
			return unknown, nil
		}
		str, ok := v.(string)
		if !ok {
			return unknown, typeMismatch(f, KindString)
		}
		switch pr.Op {
		case TypeStartsWith:
			return truthOf(strings.HasPrefix(str, pr.Value)), nil
		case TypeEndsWith:
			return truthOf(strings.HasSuffix(str, pr.Value)), nil
		case TypeContains:
			return truthOf(strings.Contains(str, pr.Value)), nil
		}
		return unknown, &UnsupportedError{Predicate: pr.Op, Field: pr.Field, Reason: "unknown string match"}

	case *Conjunction:
		if len(pr.Children) == 0 {
			return unknown, &UnsupportedError{Predicate: pr.Op, Reason: "no operands"}
		}
		// AND: false dominates; OR: true dominates; otherwise NULL wins over the identity.
		dominant, identity := isFalse, isTrue
		if pr.Op == TypeOr {
			dominant, identity = isTrue, isFalse
		} else if pr.Op != TypeAnd {
			return unknown, &UnsupportedError{Predicate: pr.Op, Reason: "unknown conjunction"}
		}
		result := identity
		for _, child := range pr.Children {
			t, err := eval(s, child, row)
			if err != nil {
				return unknown, err
			}
			if t == dominant {
				return dominant, nil
			}
			if t == unknown {
				result = unknown
			}
		}
		return result, nil

	case *Negation:
		t, err := eval(s, pr.Child, row)
		if err != nil {
			return unknown, err
		}
		switch t {
		case isTrue:
			return isFalse, nil
		case isFalse:
			return isTrue, nil
		}
		return unknown, nil
	}
	return unknown, &UnsupportedError{Reason: fmt.Sprintf("unknown predicate %T", p)}
}

// CheckTypes reports an unknown field or a literal incompatible with the
// field it is applied to, using the comparison rules of Eval. Null literals
// pass: they make the predicate unknown, not invalid.
func CheckTypes(s *schema.Schema, p Predicate) error {
	switch pr := p.(type) {
	case *Comparison:
		f, err := resolveField(s, pr.Field)
		if err != nil {
			return err
		}
		return checkLiteral(f, pr.Value)

	case *InList:
		f, err := resolveField(s, pr.Field)
		if err != nil {
			return err
		}
		for _, lit := range pr.Values {
			if err := checkLiteral(f, lit); err != nil {
				return err
			}
		}
		return nil

	case *NullCheck:
		_, err := resolveField(s, pr.Field)
		return err

	case *StringMatch:
		f, err := resolveField(s, pr.Field)
		if err != nil {
			return err
		}
		if f.Type != schema.TypeString {
			return typeMismatch(f, KindString)
		}
		return nil

	case *Conjunction:
		for _, c := range pr.Children {
			if err := CheckTypes(s, c); err != nil {
				return err
			}
		}
		return nil

	case *Negation:
		return CheckTypes(s, pr.Child)
	}
	return &UnsupportedError{Reason: fmt.Sprintf("unknown predicate %T", p)}
}

func resolveField(s *schema.Schema, name string) (schema.Field, error) {
	f, ok := s.Lookup(name)
	if !ok {
		return schema.Field{}, &FieldError{Field: name}
	}
	return f, nil
}

// checkLiteral mirrors compareValue without a row value.
func checkLiteral(f schema.Field, lit Literal) error {
	if lit.IsNull() {
		return nil
	}
	switch f.Type {
	case schema.TypeString:
		if lit.Kind == KindString {
			return nil
		}
	case schema.TypeBoolean:
		if lit.Kind == KindBoolean {
			return nil
		}
	case schema.TypeInt32, schema.TypeInt64, schema.TypeFloat64:
		if lit.Kind == KindInteger || lit.Kind == KindFloat {
			return nil
		}
	case schema.TypeDecimal:
		if _, ok := literalRat(lit); ok {
			return nil
		}
	case schema.TypeDate, schema.TypeTimestamp:
		if lit.Kind != KindString {
			break
		}
		if _, err := parseTemporal(f, lit.Str); err != nil {
			return err
		}
		return nil
	}
	return typeMismatch(f, lit.Kind)
}

func parseTemporal(f schema.Field, text string) (time.Time, error) {
	layout := schema.TimestampLayout
	if f.Type == schema.TypeDate {
		layout = schema.DateLayout
	}
	t, err := time.Parse(layout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %s: literal %q is not in the canonical layout", ErrTypeMismatch, f.Name, text)
	}
	return t, nil
}

func lookup(s *schema.Schema, name string, row []any) (schema.Field, any) {
	idx := s.Index(name)
	return s.Field(idx), row[idx]
}

// compareValue orders a non-null row value against a non-null literal.
func compareValue(f schema.Field, v any, lit Literal) (int, error) {
	switch x := v.(type) {
	case string:
		if lit.Kind == KindString {
			return strings.Compare(x, lit.Str), nil
		}
	case bool:
		if lit.Kind == KindBoolean {
			return compareBool(x, lit.Bool), nil
		}
	case int32:
		return compareInt(f, int64(x), lit)
	case int64:
		return compareInt(f, x, lit)
	case float64:
		switch lit.Kind {
		case KindInteger:
			return cmp.Compare(x, float64(lit.Int)), nil
		case KindFloat:
			return cmp.Compare(x, lit.Float), nil
		}
	case decimal128.Num:
		r, ok := literalRat(lit)
		if !ok {
			break
		}
		_, scale := f.DecimalParams()
		num := new(big.Rat).SetFrac(x.BigInt(), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil))
		return num.Cmp(r), nil
	case time.Time:
		if lit.Kind != KindString {
			break
		}
		t, err := parseTemporal(f, lit.Str)
		if err != nil {
			return 0, err
		}
		return x.Compare(t), nil
	}
	return 0, typeMismatch(f, lit.Kind)
}

func compareInt(f schema.Field, x int64, lit Literal) (int, error) {
	switch lit.Kind {
	case KindInteger:
		return cmp.Compare(x, lit.Int), nil
	case KindFloat:
		return cmp.Compare(float64(x), lit.Float), nil
	}
	return 0, typeMismatch(f, lit.Kind)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func literalRat(lit Literal) (*big.Rat, bool) {
	switch lit.Kind {
	case KindInteger:
		return new(big.Rat).SetInt64(lit.Int), true
	case KindFloat:
		// Shortest decimal form, so Float(19.99) equals a 19.99 decimal.
		return new(big.Rat).SetString(strconv.FormatFloat(lit.Float, 'g', -1, 64))
	}
	return nil, false
}

func typeMismatch(f schema.Field, kind LiteralKind) error {
	return fmt.Errorf("%w: field %s (%s) against %s literal", ErrTypeMismatch, f.Name, f.Type, kind)
}
