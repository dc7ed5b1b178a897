package filter

import (
	"strconv"
)

// PredicateType identifies the specific predicate operation.
type PredicateType string

const (
	// Comparison operators
	TypeEquals         PredicateType = "EQUALS"
	TypeNotEquals      PredicateType = "NOT_EQUALS"
	TypeGreaterThan    PredicateType = "GREATER_THAN"
	TypeGreaterOrEqual PredicateType = "GREATER_OR_EQUAL"
	TypeLessThan       PredicateType = "LESS_THAN"
	TypeLessOrEqual    PredicateType = "LESS_OR_EQUAL"
	TypeIn             PredicateType = "IN"

	// Null checks
	TypeIsNull    PredicateType = "IS_NULL"
	TypeIsNotNull PredicateType = "IS_NOT_NULL"

	// String matching
	TypeStartsWith PredicateType = "STRING_STARTS_WITH"
	TypeEndsWith   PredicateType = "STRING_ENDS_WITH"
	TypeContains   PredicateType = "STRING_CONTAINS"

	// Logical operators
	TypeAnd PredicateType = "AND"
	TypeOr  PredicateType = "OR"
	TypeNot PredicateType = "NOT"
)

// Predicate is the interface implemented by all predicate node types.
// Use type switches to access specific node data.
type Predicate interface {
	// Type returns the predicate operation.
	Type() PredicateType

	// predicateMarker prevents external implementation.
	predicateMarker()
}

// Comparison represents `field <op> literal`.
type Comparison struct {
	Op    PredicateType
	Field string
	Value Literal
}

// InList represents `field IN (values...)`.
type InList struct {
	Field  string
	Values []Literal
}

// NullCheck represents `field IS [NOT] NULL`.
type NullCheck struct {
	Field   string
	Negated bool
}

// StringMatch represents prefix, suffix and substring tests on a String field.
type StringMatch struct {
	Op    PredicateType
	Field string
	Value string
}

// Conjunction represents AND/OR over two or more children.
type Conjunction struct {
	Op       PredicateType
	Children []Predicate
}

// Negation represents NOT child.
type Negation struct {
	Child Predicate
}

func (c *Comparison) Type() PredicateType  { return c.Op }
func (c *InList) Type() PredicateType      { return TypeIn }
func (c *StringMatch) Type() PredicateType { return c.Op }
func (c *Conjunction) Type() PredicateType { return c.Op }
func (c *Negation) Type() PredicateType    { return TypeNot }

func (c *NullCheck) Type() PredicateType {
	if c.Negated {
		return TypeIsNotNull
	}
	return TypeIsNull
}

func (*Comparison) predicateMarker()  {}
func (*InList) predicateMarker()      {}
func (*NullCheck) predicateMarker()   {}
func (*StringMatch) predicateMarker() {}
func (*Conjunction) predicateMarker() {}
func (*Negation) predicateMarker()    {}

// Equals returns field = value.
func Equals(field string, value Literal) Predicate {
	return &Comparison{Op: TypeEquals, Field: field, Value: value}
}

// NotEquals returns field <> value.
func NotEquals(field string, value Literal) Predicate {
	return &Comparison{Op: TypeNotEquals, Field: field, Value: value}
}

// GreaterThan returns field > value.
func GreaterThan(field string, value Literal) Predicate {
	return &Comparison{Op: TypeGreaterThan, Field: field, Value: value}
}

// GreaterOrEqual returns field >= value.
func GreaterOrEqual(field string, value Literal) Predicate {
	return &Comparison{Op: TypeGreaterOrEqual, Field: field, Value: value}
}

// LessThan returns field < value.
func LessThan(field string, value Literal) Predicate {
	return &Comparison{Op: TypeLessThan, Field: field, Value: value}
}

// LessOrEqual returns field <= value.
func LessOrEqual(field string, value Literal) Predicate {
	return &Comparison{Op: TypeLessOrEqual, Field: field, Value: value}
}

// In returns field IN (values...).
func In(field string, values ...Literal) Predicate {
	return &InList{Field: field, Values: values}
}

// IsNull returns field IS NULL.
func IsNull(field string) Predicate { return &NullCheck{Field: field} }

// IsNotNull returns field IS NOT NULL.
func IsNotNull(field string) Predicate { return &NullCheck{Field: field, Negated: true} }

// StartsWith matches String values beginning with prefix.
func StartsWith(field, prefix string) Predicate {
	return &StringMatch{Op: TypeStartsWith, Field: field, Value: prefix}
}

// EndsWith matches String values ending with suffix.
func EndsWith(field, suffix string) Predicate {
	return &StringMatch{Op: TypeEndsWith, Field: field, Value: suffix}
}

// Contains matches String values containing substr.
func Contains(field, substr string) Predicate {
	return &StringMatch{Op: TypeContains, Field: field, Value: substr}
}

// And returns the conjunction of its arguments.
func And(left, right Predicate, more ...Predicate) Predicate {
	return &Conjunction{Op: TypeAnd, Children: append([]Predicate{left, right}, more...)}
}

// Or returns the disjunction of its arguments.
func Or(left, right Predicate, more ...Predicate) Predicate {
	return &Conjunction{Op: TypeOr, Children: append([]Predicate{left, right}, more...)}
}

// Not returns the negation of p.
func Not(p Predicate) Predicate { return &Negation{Child: p} }

// LiteralKind identifies the type of a literal value.
type LiteralKind uint8

const (
	KindNull LiteralKind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
)

func (k LiteralKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Literal is a constant operand. Only the member matching Kind is meaningful.
type Literal struct {
	Kind  LiteralKind `msgpack:"k"`
	Str   string      `msgpack:"s,omitempty"`
	Int   int64       `msgpack:"i,omitempty"`
	Float float64     `msgpack:"f,omitempty"`
	Bool  bool        `msgpack:"b,omitempty"`
}

// String returns a string literal. Date and Timestamp fields take string
// literals in the canonical layouts.
func String(s string) Literal { return Literal{Kind: KindString, Str: s} }

// Int returns an integer literal.
func Int(i int64) Literal { return Literal{Kind: KindInteger, Int: i} }

// Float returns a floating-point literal.
func Float(f float64) Literal { return Literal{Kind: KindFloat, Float: f} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: KindBoolean, Bool: b} }

// Null returns the null literal.
func Null() Literal { return Literal{Kind: KindNull} }

// IsNull reports whether l is the null literal.
func (l Literal) IsNull() bool { return l.Kind == KindNull }
