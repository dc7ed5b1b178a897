package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Prune returns a schema containing only the named columns.
// If names is empty, returns s unchanged (no projection pushdown).
// Field order in the returned schema matches the order of names, which
// also fixes the positional layout of every decoded row.
// An unknown or repeated name fails the whole call; no partial schema
// is returned.
func Prune(s *Schema, names []string) (*Schema, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	if len(names) == 0 {
		return s, nil
	}

	fields := make([]Field, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		idx, ok := s.index[name]
		if !ok {
			return nil, &ColumnError{Name: name, Err: ErrUnknownColumn}
		}
		if _, dup := seen[name]; dup {
			return nil, &ColumnError{Name: name, Err: ErrDuplicateColumn}
		}
		seen[name] = struct{}{}
		fields = append(fields, s.fields[idx])
	}

	return New(fields...)
}

// Parse builds a schema from a compact definition such as
// "id:int32,name:string?,price:decimal(10,2)". A trailing '?' marks the
// field nullable.
func Parse(def string) (*Schema, error) {
	var fields []Field
	for _, part := range splitTopLevel(def) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: field %q has no type", ErrInvalidSchema, part)
		}
		f := Field{Name: strings.TrimSpace(name)}
		typ = strings.TrimSpace(typ)
		if strings.HasSuffix(typ, "?") {
			f.Nullable = true
			typ = strings.TrimSuffix(typ, "?")
		}
		if base, args, ok := strings.Cut(typ, "("); ok {
			p, s, err := parseDecimalArgs(strings.TrimSuffix(args, ")"))
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidSchema, f.Name, err)
			}
			f.Precision, f.Scale = p, s
			typ = base
		}
		t, err := ParseFieldType(typ)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %w", ErrInvalidSchema, f.Name, err)
		}
		f.Type = t
		fields = append(fields, f)
	}
	return New(fields...)
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func parseDecimalArgs(args string) (int32, int32, error) {
	ps, ss, _ := strings.Cut(args, ",")
	p, err := strconv.ParseInt(strings.TrimSpace(ps), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad precision %q", ps)
	}
	var sc int64
	if strings.TrimSpace(ss) != "" {
		sc, err = strconv.ParseInt(strings.TrimSpace(ss), 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("bad scale %q", ss)
		}
	}
	return int32(p), int32(sc), nil
}
