// Package query provides parameterized SQL building utilities for PostgreSQL.
//
// Every dynamic value goes through a numbered placeholder ($1, $2, ...) and every
// identifier is quoted with pq.QuoteIdentifier after being checked against
// ValidIdentifier. Callers never interpolate values into SQL text.
//
// Example usage:
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("tenant_id", tenantID)
//	wb.AddTimeRange("created_at", start, end)
//	wb.AddEquals("status", []string{"paid", "partial"})
//	where, args := wb.BuildWithPrefix()
//	// WHERE "tenant_id" = $1 AND "created_at" >= $2 AND "created_at" < $3 AND "status" = ANY($4)
package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is a plain lower-case SQL identifier.
func ValidIdentifier(name string) bool {
	return len(name) <= 63 && identifierPattern.MatchString(name)
}

// Ident quotes an identifier for safe inclusion in SQL text.
func Ident(name string) string {
	return pq.QuoteIdentifier(name)
}

// WhereBuilder constructs SQL WHERE clauses with numbered, parameterized arguments.
// Conditions built with Condition share the same argument list, so a SELECT list
// and a WHERE clause built from one builder bind consistently.
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// Bind appends an argument and returns its placeholder.
func (wb *WhereBuilder) Bind(value interface{}) string {
	wb.args = append(wb.args, value)
	return "$" + strconv.Itoa(len(wb.args))
}

// Condition builds an equality predicate for column without adding it to the
// WHERE clause. Slices match any element, nil matches NULL.
func (wb *WhereBuilder) Condition(column string, value interface{}) string {
	col := Ident(column)
	if value == nil {
		return col + " IS NULL"
	}
	if values, ok := sliceValue(value); ok {
		return fmt.Sprintf("%s = ANY(%s)", col, wb.Bind(pq.Array(values)))
	}
	return fmt.Sprintf("%s = %s", col, wb.Bind(value))
}

// AddEquals adds an equality predicate (see Condition) to the WHERE clause.
func (wb *WhereBuilder) AddEquals(column string, value interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, wb.Condition(column, value))
	return wb
}

// AddTimeRange adds a half-open [start, end) predicate on column.
func (wb *WhereBuilder) AddTimeRange(column string, start, end time.Time) *WhereBuilder {
	col := Ident(column)
	wb.clauses = append(wb.clauses,
		fmt.Sprintf("%s >= %s", col, wb.Bind(start)),
		fmt.Sprintf("%s < %s", col, wb.Bind(end)),
	)
	return wb
}

// AddClause adds a raw WHERE clause. Each '?' in clause is replaced by the next
// numbered placeholder bound to the matching argument.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	var sb strings.Builder
	next := 0
	for _, r := range clause {
		if r == '?' && next < len(args) {
			sb.WriteString(wb.Bind(args[next]))
			next++
			continue
		}
		sb.WriteRune(r)
	}
	wb.clauses = append(wb.clauses, sb.String())
	return wb
}

// Build constructs the final WHERE clause and returns it with arguments.
// Clauses are joined with "AND". Returns ("1=1", args) if no clauses were added.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", wb.args
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns the WHERE clause with "WHERE " prefix.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

// Args returns the arguments bound so far.
func (wb *WhereBuilder) Args() []interface{} {
	return wb.args
}

// Count returns the number of clauses added to the builder.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}

// sliceValue converts list-valued filters into a slice pq.Array can encode.
// Mixed []interface{} values (as decoded from YAML or JSON) become []string
// unless every element is numeric.
func sliceValue(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case []byte:
		return nil, false
	case []string, []int64, []float64, []bool:
		return v, true
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, true
	case []interface{}:
		return normalizeInterfaces(v), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return normalizeInterfaces(items), true
}

func normalizeInterfaces(items []interface{}) interface{} {
	numbers := make([]float64, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case int:
			numbers = append(numbers, float64(n))
		case int64:
			numbers = append(numbers, float64(n))
		case float64:
			numbers = append(numbers, n)
		default:
			strs := make([]string, len(items))
			for i, it := range items {
				strs[i] = fmt.Sprint(it)
			}
			return strs
		}
	}
	return numbers
}
