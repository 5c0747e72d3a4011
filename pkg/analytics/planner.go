package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/byronwade/thorbis.com-sub011/pkg/query"
)

// tenantColumn scopes every tenant table.
const tenantColumn = "tenant_id"

// Query is a planned aggregate query for one metric over one window. Every
// value is bound through Args; identifiers come from the validated catalog.
type Query struct {
	Metric   string
	TenantID string
	Table    string
	Window   Window
	GroupBy  []string
	SQL      string
	Args     []interface{}
}

// Row is one aggregate row returned by a DataSource. Group is empty for
// ungrouped queries.
type Row struct {
	Group string
	Value float64
}

// PlanQuery builds the aggregate query for def over w.
//
// Predicates are ANDed in a fixed order: tenant, time window, then the merge
// of the metric's default filters with the caller's filters (the caller wins
// on a key collision), in key order. Caller filter and group-by fields must be
// declared dimensions of the metric or keys of its default filters.
func PlanQuery(def MetricDefinition, tenantID string, w Window, filters map[string]interface{}, groupBy []string) (*Query, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	}

	allowed := make(map[string]bool, len(def.Dimensions)+len(def.Filters))
	for _, dim := range def.Dimensions {
		allowed[dim] = true
	}
	for field := range def.Filters {
		allowed[field] = true
	}

	merged := make(map[string]interface{}, len(def.Filters)+len(filters))
	for field, value := range def.Filters {
		merged[field] = value
	}
	for field, value := range filters {
		if !allowed[field] {
			return nil, fmt.Errorf("%w: %s does not support filter %q", ErrInvalidFilter, def.Name, field)
		}
		if !isFilterValue(value) {
			return nil, fmt.Errorf("%w: unsupported value for filter %q", ErrInvalidFilter, field)
		}
		merged[field] = value
	}

	groups := def.GroupBy
	if len(groupBy) > 0 {
		groups = groupBy
	}
	dims := make(map[string]bool, len(def.Dimensions))
	for _, dim := range def.Dimensions {
		dims[dim] = true
	}
	for _, g := range groups {
		if !dims[g] {
			return nil, fmt.Errorf("%w: %s cannot be grouped by %q", ErrInvalidFilter, def.Name, g)
		}
	}

	wb := query.NewWhereBuilder()
	wb.AddEquals(tenantColumn, tenantID)
	wb.AddTimeRange(def.TimeField, w.Start, w.End)
	for _, field := range sortedKeys(merged) {
		wb.AddEquals(field, merged[field])
	}

	agg, err := aggregateExpr(def, wb)
	if err != nil {
		return nil, err
	}

	where, args := wb.BuildWithPrefix()

	var sb strings.Builder
	if len(groups) > 0 {
		sb.WriteString("SELECT ")
		sb.WriteString(groupKeyExpr(groups))
		sb.WriteString(" AS group_key, ")
	} else {
		sb.WriteString("SELECT '' AS group_key, ")
	}
	sb.WriteString(agg)
	sb.WriteString(" AS value FROM ")
	sb.WriteString(query.Ident(def.Table))
	sb.WriteString(" ")
	sb.WriteString(where)
	if len(groups) > 0 {
		sb.WriteString(" GROUP BY 1 ORDER BY 1")
	}

	return &Query{
		Metric:   def.Name,
		TenantID: tenantID,
		Table:    def.Table,
		Window:   w,
		GroupBy:  append([]string(nil), groups...),
		SQL:      sb.String(),
		Args:     args,
	}, nil
}

// aggregateExpr renders the metric's aggregation. Ratio sub-expressions bind
// their conditions through wb so placeholders stay consistent with WHERE.
func aggregateExpr(def MetricDefinition, wb *query.WhereBuilder) (string, error) {
	field := query.Ident(def.Field)

	switch def.Type {
	case MetricSum, MetricRevenue:
		return fmt.Sprintf("COALESCE(SUM(%s), 0)::float8", field), nil
	case MetricCount:
		return fmt.Sprintf("COUNT(%s)::float8", field), nil
	case MetricAverage, MetricDuration:
		return fmt.Sprintf("COALESCE(AVG(%s), 0)::float8", field), nil
	case MetricRate, MetricPercentage:
		num, ok := def.Calculations["numerator"]
		if !ok {
			return "", fmt.Errorf("%w: %s has no numerator", ErrInvalidCatalog, def.Name)
		}
		den, ok := def.Calculations["denominator"]
		if !ok {
			return "", fmt.Errorf("%w: %s has no denominator", ErrInvalidCatalog, def.Name)
		}
		numExpr := calculationExpr(num, wb)
		denExpr := calculationExpr(den, wb)
		scale := ""
		if def.Type == MetricPercentage {
			scale = "100.0 * "
		}
		return fmt.Sprintf("COALESCE(%s(%s)::float8 / NULLIF((%s)::float8, 0), 0)", scale, numExpr, denExpr), nil
	default:
		return "", fmt.Errorf("%w: unknown metric type %q", ErrInvalidCatalog, def.Type)
	}
}

func calculationExpr(calc Calculation, wb *query.WhereBuilder) string {
	target := query.Ident(calc.Field)
	if len(calc.Where) > 0 {
		conds := make([]string, 0, len(calc.Where))
		for _, field := range sortedKeys(calc.Where) {
			conds = append(conds, wb.Condition(field, calc.Where[field]))
		}
		target = fmt.Sprintf("CASE WHEN %s THEN %s END", strings.Join(conds, " AND "), target)
	}

	if calc.Aggregation == "count" {
		return fmt.Sprintf("COUNT(%s)", target)
	}
	return fmt.Sprintf("COALESCE(SUM(%s), 0)", target)
}

func groupKeyExpr(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = query.Ident(f) + "::text"
	}
	return "CONCAT_WS('|', " + strings.Join(parts, ", ") + ")"
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
