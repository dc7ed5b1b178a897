package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/schema"
)

func peopleSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse("id:int32,name:string,age:int32?,city:string,score:float64,active:bool,in_stock:bool")
	require.NoError(t, err)
	return s
}

func TestParseFilter(t *testing.T) {
	s := peopleSchema(t)
	tests := []struct {
		expr string
		want filter.Predicate
	}{
		{"age > 30", filter.GreaterThan("age", filter.Int(30))},
		{"age >= 30", filter.GreaterOrEqual("age", filter.Int(30))},
		{"age < 30.5", filter.LessThan("age", filter.Float(30.5))},
		{"age <> 30", filter.NotEquals("age", filter.Int(30))},
		{"city = Chennai", filter.Equals("city", filter.String("Chennai"))},
		{"city = 'New Delhi'", filter.Equals("city", filter.String("New Delhi"))},
		{"city = 'it''s'", filter.Equals("city", filter.String("it's"))},
		{"score < 2", filter.LessThan("score", filter.Int(2))},
		{"score <= 2.5", filter.LessOrEqual("score", filter.Float(2.5))},
		{"active = true", filter.Equals("active", filter.Bool(true))},
		{"in_stock = false", filter.Equals("in_stock", filter.Bool(false))},
		{"id in 1|3| 5", filter.In("id", filter.Int(1), filter.Int(3), filter.Int(5))},
		{"age is null", filter.IsNull("age")},
		{"age IS NOT NULL", filter.IsNotNull("age")},
		{"city starts_with Pu", filter.StartsWith("city", "Pu")},
		{"name ends_with son", filter.EndsWith("name", "son")},
		{"name contains 'li'", filter.Contains("name", "li")},
		{"not city = Pune", filter.Not(filter.Equals("city", filter.String("Pune")))},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := parseFilter(s, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilterErrors(t *testing.T) {
	s := peopleSchema(t)

	_, err := parseFilter(s, "zip = 1")
	assert.ErrorIs(t, err, filter.ErrUnknownField)

	for _, expr := range []string{"", "age", "age >", "age ~ 3", "age = x", "score = abc", "active = maybe", "age is empty"} {
		_, err := parseFilter(s, expr)
		assert.ErrorIs(t, err, errFilterSyntax, expr)
	}
}

func TestPlanCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"plan",
		"--option", "endpoint=localhost:9000",
		"--option", "header=true",
		"--schema", "id:int32,name:string,age:int32?,city:string",
		"--columns", "age,city",
		"--filter", "age > 30",
		"--filter", "city = Chennai",
	})
	require.NoError(t, cmd.Execute())

	assert.Equal(t,
		`SELECT s."age", s."city" FROM S3Object s WHERE (CAST(NULLIF(s."age", '') AS INT) > 30) AND (s."city" = 'Chennai')`+"\n",
		out.String())
}

func TestPlanCommandResidual(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"plan",
		"--option", "endpoint=localhost:9000",
		"--schema", "id:int32,age:int32?",
		"--columns", "id",
		"--filter", "age > 30.5",
	})
	require.NoError(t, cmd.Execute())

	assert.Equal(t,
		"SELECT s._1, s._2 FROM S3Object s\n-- 1 filter(s) evaluated locally on age\n",
		out.String())
}

func TestPlanCommandLiteralMismatch(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"plan",
		"--option", "endpoint=localhost:9000",
		"--schema", "id:int32,ts:timestamp",
		"--filter", "ts > 2024-01-01",
	})
	assert.ErrorIs(t, cmd.Execute(), filter.ErrTypeMismatch)
}

func TestPlanCommandInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"plan", "--schema", "id:int32"})
	assert.Error(t, cmd.Execute())
}
