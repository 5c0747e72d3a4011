package analytics

import "time"

// TimeRange names a reporting window.
type TimeRange string

const (
	RangeHour    TimeRange = "hour"
	RangeDay     TimeRange = "day"
	RangeWeek    TimeRange = "week"
	RangeMonth   TimeRange = "month"
	RangeQuarter TimeRange = "quarter"
	RangeYear    TimeRange = "year"
	RangeCustom  TimeRange = "custom"
)

// MetricType selects the aggregation operator of a metric.
type MetricType string

const (
	MetricRevenue    MetricType = "revenue"
	MetricCount      MetricType = "count"
	MetricAverage    MetricType = "average"
	MetricSum        MetricType = "sum"
	MetricPercentage MetricType = "percentage"
	MetricRate       MetricType = "rate"
	MetricDuration   MetricType = "duration"
)

// Category groups metrics for insight scans.
type Category string

const (
	CategoryRevenue    Category = "revenue"
	CategoryCustomer   Category = "customer"
	CategoryOperations Category = "operations"
	CategoryMarketing  Category = "marketing"
)

// Direction is the qualitative movement of a metric.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Calculation is a named derived sub-expression of a metric, used as the
// numerator or denominator of ratio metrics.
type Calculation struct {
	Aggregation string                 `yaml:"aggregation" json:"aggregation"`
	Field       string                 `yaml:"field" json:"field"`
	Where       map[string]interface{} `yaml:"where,omitempty" json:"where,omitempty"`
}

// MetricDefinition describes how one metric is computed from a tenant table.
type MetricDefinition struct {
	Name         string                 `yaml:"-" json:"name"`
	Label        string                 `yaml:"label" json:"label"`
	Type         MetricType             `yaml:"type" json:"type"`
	Category     Category               `yaml:"category" json:"category"`
	Table        string                 `yaml:"table" json:"table"`
	Field        string                 `yaml:"field" json:"field"`
	TimeField    string                 `yaml:"timeField,omitempty" json:"timeField"`
	Filters      map[string]interface{} `yaml:"filters,omitempty" json:"filters,omitempty"`
	GroupBy      []string               `yaml:"groupBy,omitempty" json:"groupBy,omitempty"`
	Dimensions   []string               `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Calculations map[string]Calculation `yaml:"calculations,omitempty" json:"calculations,omitempty"`
}

// ComparisonSpec asks for a comparison against another period. Custom
// comparisons carry explicit bounds; named ranges shift the current window
// back by the range's duration.
type ComparisonSpec struct {
	TimeRange TimeRange  `json:"timeRange" validate:"required,oneof=hour day week month quarter year custom"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// AnalyticsRequest is a caller's report request.
type AnalyticsRequest struct {
	TenantID   string                 `json:"tenantId,omitempty" validate:"omitempty,max=128"`
	Industry   string                 `json:"industry,omitempty" validate:"omitempty,max=64"`
	Metrics    []string               `json:"metrics" validate:"required,min=1,max=50,dive,required,max=128"`
	TimeRange  TimeRange              `json:"timeRange" validate:"required,oneof=hour day week month quarter year custom"`
	StartDate  *time.Time             `json:"startDate,omitempty"`
	EndDate    *time.Time             `json:"endDate,omitempty"`
	GroupBy    []string               `json:"groupBy,omitempty" validate:"omitempty,max=5,dive,required"`
	Filters    map[string]interface{} `json:"filters,omitempty"`
	Comparison *ComparisonSpec        `json:"comparison,omitempty" validate:"omitempty"`
}

// ResultRow is one computed value of a metric, optionally for a group.
type ResultRow struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Group  string  `json:"group,omitempty"`
}

// Trend is a metric's movement against the preceding window of equal length.
type Trend struct {
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previousValue"`
	PercentChange float64   `json:"percentChange"`
	Direction     Direction `json:"direction"`
	NoBaseline    bool      `json:"noBaseline,omitempty"`
}

// Comparison is a metric's movement against a caller-specified period.
type Comparison struct {
	Current       float64   `json:"current"`
	Previous      float64   `json:"previous"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percentChange"`
	Direction     Direction `json:"direction"`
	NoBaseline    bool      `json:"noBaseline,omitempty"`
}

// Window is a half-open [Start, End) instant range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ResultMetadata describes how a result was produced.
type ResultMetadata struct {
	TotalRows   int           `json:"totalRows"`
	Granularity string        `json:"granularity"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Cached      bool          `json:"cached"`
	Took        time.Duration `json:"took"`
	Window      Window        `json:"window"`
	Comparison  *Window       `json:"comparison,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// AnalyticsResult is a computed report. It is never mutated after it is
// returned; cache hits decode a fresh copy.
type AnalyticsResult struct {
	Data        []ResultRow           `json:"data"`
	Summary     map[string]float64    `json:"summary"`
	Trends      map[string]Trend      `json:"trends"`
	Comparisons map[string]Comparison `json:"comparisons,omitempty"`
	Metadata    ResultMetadata        `json:"metadata"`
}

// InsightType is the advisory category of an insight.
type InsightType string

const (
	InsightOpportunity InsightType = "opportunity"
	InsightWarning     InsightType = "warning"
	InsightTrend       InsightType = "trend"
	InsightAnomaly     InsightType = "anomaly"
)

// Impact ranks an insight.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Insight is a rule-based advisory derived from a tenant's metric history.
type Insight struct {
	ID               string      `json:"id"`
	Type             InsightType `json:"type"`
	Category         Category    `json:"category"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Impact           Impact      `json:"impact"`
	Industry         string      `json:"industry"`
	Metric           string      `json:"metric"`
	Value            float64     `json:"value"`
	Change           float64     `json:"change"`
	Actionable       bool        `json:"actionable"`
	SuggestedActions []string    `json:"suggestedActions,omitempty"`
	GeneratedAt      time.Time   `json:"generatedAt"`
}

// ChartType is a rendering hint for a dashboard widget.
type ChartType string

const (
	ChartLine  ChartType = "line"
	ChartBar   ChartType = "bar"
	ChartPie   ChartType = "pie"
	ChartKPI   ChartType = "kpi"
	ChartTable ChartType = "table"
	ChartArea  ChartType = "area"
)

// DashboardWidget is one panel of a dashboard template.
type DashboardWidget struct {
	ID        string    `yaml:"id" json:"id"`
	Title     string    `yaml:"title" json:"title"`
	ChartType ChartType `yaml:"chartType" json:"chartType"`
	Metrics   []string  `yaml:"metrics" json:"metrics"`
	TimeRange TimeRange `yaml:"timeRange" json:"timeRange"`
	GroupBy   []string  `yaml:"groupBy,omitempty" json:"groupBy,omitempty"`
}

// Dashboard is a built-in starter dashboard for an industry.
type Dashboard struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Industry    string            `yaml:"industry" json:"industry"`
	Description string            `yaml:"description" json:"description"`
	Widgets     []DashboardWidget `yaml:"widgets" json:"widgets"`
}

// Request converts the widget into a report request for industry.
func (w DashboardWidget) Request(industry string) AnalyticsRequest {
	return AnalyticsRequest{
		Industry:  industry,
		Metrics:   append([]string(nil), w.Metrics...),
		TimeRange: w.TimeRange,
		GroupBy:   append([]string(nil), w.GroupBy...),
	}
}
