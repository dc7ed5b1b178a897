package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/schema"
)

var errFilterSyntax = errors.New("invalid filter")

var comparisons = map[string]func(string, filter.Literal) filter.Predicate{
	"=":  filter.Equals,
	"==": filter.Equals,
	"!=": filter.NotEquals,
	"<>": filter.NotEquals,
	">":  filter.GreaterThan,
	">=": filter.GreaterOrEqual,
	"<":  filter.LessThan,
	"<=": filter.LessOrEqual,
}

var matches = map[string]func(string, string) filter.Predicate{
	"starts_with": filter.StartsWith,
	"ends_with":   filter.EndsWith,
	"contains":    filter.Contains,
}

// parseFilter reads "[not] field op value". Operators are the comparisons,
// "in" with '|' separated values, "is [not] null" and the string matches
// starts_with, ends_with and contains. Values are typed by the field and
// may be wrapped in single quotes.
func parseFilter(s *schema.Schema, expr string) (filter.Predicate, error) {
	name, rest := cutWord(expr)
	if strings.EqualFold(name, "not") {
		p, err := parseFilter(s, rest)
		if err != nil {
			return nil, err
		}
		return filter.Not(p), nil
	}
	op, rest := cutWord(rest)
	if name == "" || op == "" {
		return nil, fmt.Errorf("%w %q: expected 'field op value'", errFilterSyntax, expr)
	}

	f, ok := s.Lookup(name)
	if !ok {
		return nil, &filter.FieldError{Field: name}
	}
	op = strings.ToLower(op)

	if op == "is" {
		switch strings.ToLower(strings.Join(strings.Fields(rest), " ")) {
		case "null":
			return filter.IsNull(name), nil
		case "not null":
			return filter.IsNotNull(name), nil
		}
		return nil, fmt.Errorf("%w %q: expected 'is null' or 'is not null'", errFilterSyntax, expr)
	}
	if rest == "" {
		return nil, fmt.Errorf("%w %q: missing value", errFilterSyntax, expr)
	}

	if build, ok := comparisons[op]; ok {
		v, err := parseLiteral(f, rest)
		if err != nil {
			return nil, err
		}
		return build(name, v), nil
	}
	if build, ok := matches[op]; ok {
		return build(name, unquote(rest)), nil
	}
	if op == "in" {
		var values []filter.Literal
		for _, part := range strings.Split(rest, "|") {
			v, err := parseLiteral(f, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return filter.In(name, values...), nil
	}
	return nil, fmt.Errorf("%w %q: unknown operator %q", errFilterSyntax, expr, op)
}

// parseLiteral types text after f.
func parseLiteral(f schema.Field, text string) (filter.Literal, error) {
	text = unquote(text)
	switch f.Type {
	case schema.TypeInt32, schema.TypeInt64, schema.TypeFloat64, schema.TypeDecimal:
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return filter.Int(i), nil
		}
		x, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return filter.Literal{}, fmt.Errorf("%w: %s: %q is not a number", errFilterSyntax, f.Name, text)
		}
		return filter.Float(x), nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return filter.Literal{}, fmt.Errorf("%w: %s: %q is not a boolean", errFilterSyntax, f.Name, text)
		}
		return filter.Bool(b), nil
	}
	return filter.String(text), nil
}

// cutWord splits off the first space-delimited word.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
