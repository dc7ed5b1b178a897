package schema

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		Field{Name: "id", Type: TypeInt32},
		Field{Name: "name", Type: TypeString, Nullable: true},
		Field{Name: "age", Type: TypeInt32},
		Field{Name: "city", Type: TypeString},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		want   error
	}{
		{"empty", nil, ErrInvalidSchema},
		{"empty name", []Field{{Name: "", Type: TypeInt32}}, ErrInvalidSchema},
		{"bad type", []Field{{Name: "a", Type: "BLOB"}}, ErrUnknownType},
		{"duplicate", []Field{{Name: "a", Type: TypeInt32}, {Name: "a", Type: TypeString}}, ErrDuplicateColumn},
		{"decimal scale", []Field{{Name: "d", Type: TypeDecimal, Precision: 4, Scale: 6}}, ErrInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPruneOrder(t *testing.T) {
	s := testSchema(t)

	pruned, err := Prune(s, []string{"city", "id"})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	names := pruned.Names()
	if len(names) != 2 || names[0] != "city" || names[1] != "id" {
		t.Errorf("expected [city id], got %v", names)
	}
	if pruned.Field(0).Type != TypeString || pruned.Field(1).Type != TypeInt32 {
		t.Errorf("field types not preserved: %s", pruned)
	}
}

func TestPruneEmptyReturnsFullSchema(t *testing.T) {
	s := testSchema(t)

	for _, names := range [][]string{nil, {}} {
		pruned, err := Prune(s, names)
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		if pruned != s {
			t.Errorf("expected unchanged schema, got %s", pruned)
		}
	}
}

func TestPruneUnknownColumn(t *testing.T) {
	s := testSchema(t)

	pruned, err := Prune(s, []string{"id", "missing"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
	if pruned != nil {
		t.Errorf("expected no partial schema, got %s", pruned)
	}

	var ce *ColumnError
	if !errors.As(err, &ce) || ce.Name != "missing" {
		t.Errorf("expected ColumnError for 'missing', got %v", err)
	}
}

func TestPruneDuplicate(t *testing.T) {
	s := testSchema(t)

	if _, err := Prune(s, []string{"id", "id"}); !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("expected ErrDuplicateColumn, got %v", err)
	}
}

func TestPruneIdempotent(t *testing.T) {
	s := testSchema(t)

	once, err := Prune(s, []string{"age", "name"})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	twice, err := Prune(once, once.Names())
	if err != nil {
		t.Fatalf("second Prune failed: %v", err)
	}
	if !once.Equal(twice) {
		t.Errorf("expected %s, got %s", once, twice)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("id:int32, name:string?, price:decimal(10,2), ts:timestamp?")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []Field{
		{Name: "id", Type: TypeInt32},
		{Name: "name", Type: TypeString, Nullable: true},
		{Name: "price", Type: TypeDecimal, Precision: 10, Scale: 2},
		{Name: "ts", Type: TypeTimestamp, Nullable: true},
	}
	if s.Len() != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), s.Len())
	}
	for i, f := range want {
		if s.Field(i) != f {
			t.Errorf("field %d: expected %+v, got %+v", i, f, s.Field(i))
		}
	}

	if _, err := Parse("id"); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema for missing type, got %v", err)
	}
	if _, err := Parse("id:blob"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestArrowRoundTrip(t *testing.T) {
	s := MustNew(
		Field{Name: "flag", Type: TypeBoolean},
		Field{Name: "id", Type: TypeInt64},
		Field{Name: "score", Type: TypeFloat64, Nullable: true},
		Field{Name: "day", Type: TypeDate},
		Field{Name: "at", Type: TypeTimestamp},
		Field{Name: "amount", Type: TypeDecimal, Precision: 12, Scale: 3},
		Field{Name: "label", Type: TypeString},
	)

	as := ToArrow(s)
	if as.NumFields() != s.Len() {
		t.Fatalf("expected %d arrow fields, got %d", s.Len(), as.NumFields())
	}
	if dt, ok := as.Field(5).Type.(*arrow.Decimal128Type); !ok || dt.Precision != 12 || dt.Scale != 3 {
		t.Errorf("unexpected decimal type: %s", as.Field(5).Type)
	}
	if !as.Field(2).Nullable {
		t.Error("expected score to be nullable")
	}
	if ts, ok := as.Field(4).Type.(*arrow.TimestampType); !ok || ts.Unit != arrow.Nanosecond {
		t.Errorf("timestamps must keep nanoseconds, got %s", as.Field(4).Type)
	}

	back, err := FromArrow(as)
	if err != nil {
		t.Fatalf("FromArrow failed: %v", err)
	}
	if !s.Equal(back) {
		t.Errorf("expected %s, got %s", s, back)
	}
}

func TestFromArrowUnsupported(t *testing.T) {
	as := arrow.NewSchema([]arrow.Field{
		{Name: "blob", Type: arrow.BinaryTypes.Binary},
	}, nil)

	if _, err := FromArrow(as); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}
