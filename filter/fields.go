package filter

import (
	"github.com/hugr-lab/s3select-go/schema"
)

// Fields returns the distinct field names referenced by preds, in order of
// first appearance.
func Fields(preds ...Predicate) []string {
	var names []string
	seen := make(map[string]struct{})
	var walk func(p Predicate)
	walk = func(p Predicate) {
		var name string
		switch pr := p.(type) {
		case *Comparison:
			name = pr.Field
		case *InList:
			name = pr.Field
		case *NullCheck:
			name = pr.Field
		case *StringMatch:
			name = pr.Field
		case *Conjunction:
			for _, c := range pr.Children {
				walk(c)
			}
			return
		case *Negation:
			walk(pr.Child)
			return
		default:
			return
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, p := range preds {
		walk(p)
	}
	return names
}

// Validate checks that every field referenced by p exists in s.
func Validate(s *schema.Schema, p Predicate) error {
	for _, name := range Fields(p) {
		if s.Index(name) < 0 {
			return &FieldError{Field: name}
		}
	}
	return nil
}
