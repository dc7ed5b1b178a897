package filter

import (
	"fmt"

	"github.com/hugr-lab/s3select-go/internal/msgpack"
)

// node is the wire form of a predicate tree.
type node struct {
	Op       PredicateType `msgpack:"op"`
	Field    string        `msgpack:"field,omitempty"`
	Value    *Literal      `msgpack:"value,omitempty"`
	Values   []Literal     `msgpack:"values,omitempty"`
	Pattern  string        `msgpack:"pattern,omitempty"`
	Children []node        `msgpack:"children,omitempty"`
}

// MarshalPredicates serializes preds to MessagePack.
func MarshalPredicates(preds []Predicate) ([]byte, error) {
	nodes := make([]node, 0, len(preds))
	for _, p := range preds {
		n, err := toNode(p)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return msgpack.Encode(nodes)
}

// UnmarshalPredicates restores predicates written by MarshalPredicates.
func UnmarshalPredicates(data []byte) ([]Predicate, error) {
	var nodes []node
	if err := msgpack.Decode(data, &nodes); err != nil {
		return nil, err
	}
	preds := make([]Predicate, 0, len(nodes))
	for _, n := range nodes {
		p, err := fromNode(n)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func toNode(p Predicate) (node, error) {
	switch pr := p.(type) {
	case *Comparison:
		v := pr.Value
		return node{Op: pr.Op, Field: pr.Field, Value: &v}, nil
	case *InList:
		return node{Op: TypeIn, Field: pr.Field, Values: pr.Values}, nil
	case *NullCheck:
		return node{Op: pr.Type(), Field: pr.Field}, nil
	case *StringMatch:
		return node{Op: pr.Op, Field: pr.Field, Pattern: pr.Value}, nil
	case *Conjunction:
		children := make([]node, 0, len(pr.Children))
		for _, c := range pr.Children {
			cn, err := toNode(c)
			if err != nil {
				return node{}, err
			}
			children = append(children, cn)
		}
		return node{Op: pr.Op, Children: children}, nil
	case *Negation:
		child, err := toNode(pr.Child)
		if err != nil {
			return node{}, err
		}
		return node{Op: TypeNot, Children: []node{child}}, nil
	}
	return node{}, fmt.Errorf("cannot serialize predicate %T", p)
}

func fromNode(n node) (Predicate, error) {
	switch n.Op {
	case TypeEquals, TypeNotEquals, TypeGreaterThan, TypeGreaterOrEqual, TypeLessThan, TypeLessOrEqual:
		if n.Value == nil {
			return nil, fmt.Errorf("predicate %s on %s: missing value", n.Op, n.Field)
		}
		return &Comparison{Op: n.Op, Field: n.Field, Value: *n.Value}, nil
	case TypeIn:
		return &InList{Field: n.Field, Values: n.Values}, nil
	case TypeIsNull:
		return &NullCheck{Field: n.Field}, nil
	case TypeIsNotNull:
		return &NullCheck{Field: n.Field, Negated: true}, nil
	case TypeStartsWith, TypeEndsWith, TypeContains:
		return &StringMatch{Op: n.Op, Field: n.Field, Value: n.Pattern}, nil
	case TypeAnd, TypeOr:
		if len(n.Children) < 2 {
			return nil, fmt.Errorf("predicate %s: expected at least 2 operands, got %d", n.Op, len(n.Children))
		}
		children := make([]Predicate, 0, len(n.Children))
		for _, c := range n.Children {
			p, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			children = append(children, p)
		}
		return &Conjunction{Op: n.Op, Children: children}, nil
	case TypeNot:
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("predicate NOT: expected 1 operand, got %d", len(n.Children))
		}
		child, err := fromNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &Negation{Child: child}, nil
	}
	return nil, fmt.Errorf("unknown predicate type %q", n.Op)
}
