package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

// InsightConfig holds the tunable thresholds of the insight scans. Percentages
// are expressed as percent, not fractions.
type InsightConfig struct {
	HistoryBuckets       int
	BucketDuration       time.Duration
	GrowthOpportunityPct float64
	DeclineWarningPct    float64
	AnomalyZScore        float64
	MinAnomalyHistory    int
	SustainedGrowthPct   float64
	HighImpactPct        float64
	MediumImpactPct      float64
}

// DefaultInsightConfig returns the default thresholds
func DefaultInsightConfig() InsightConfig {
	return InsightConfig{
		HistoryBuckets:       8,
		BucketDuration:       7 * 24 * time.Hour,
		GrowthOpportunityPct: 10,
		DeclineWarningPct:    -5,
		AnomalyZScore:        2.5,
		MinAnomalyHistory:    4,
		SustainedGrowthPct:   5,
		HighImpactPct:        25,
		MediumImpactPct:      10,
	}
}

// Validate checks that the thresholds are usable.
func (c InsightConfig) Validate() error {
	if c.HistoryBuckets < 2 {
		return fmt.Errorf("history buckets must be at least 2")
	}
	if c.BucketDuration <= 0 {
		return fmt.Errorf("bucket duration must be positive")
	}
	if c.DeclineWarningPct >= 0 {
		return fmt.Errorf("decline warning threshold must be negative")
	}
	if c.AnomalyZScore <= 0 {
		return fmt.Errorf("anomaly z-score must be positive")
	}
	if c.MinAnomalyHistory < 2 {
		return fmt.Errorf("anomaly history must be at least 2 buckets")
	}
	if c.MediumImpactPct > c.HighImpactPct {
		return fmt.Errorf("medium impact threshold exceeds high impact threshold")
	}
	return nil
}

// MetricSeries is the bucketed history of one metric, oldest first.
type MetricSeries struct {
	Industry string
	Metric   MetricDefinition
	Values   []float64
}

type insightScan struct {
	name string
	run  func(series []MetricSeries) []Insight
}

// InsightGenerator runs rule-based scans over metric history.
type InsightGenerator struct {
	config  InsightConfig
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string
}

// NewInsightGenerator creates a new insight generator
func NewInsightGenerator(cfg InsightConfig, logger logrus.FieldLogger, metrics *observability.Metrics, now func() time.Time) *InsightGenerator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &InsightGenerator{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		now:     now,
		newID:   uuid.NewString,
	}
}

func (g *InsightGenerator) scans() []insightScan {
	return []insightScan{
		{name: "revenue_trend", run: g.scanRevenueTrend},
		{name: "customer_behavior", run: g.scanCustomerBehavior},
		{name: "anomaly", run: g.scanAnomalies},
		{name: "opportunity", run: g.scanOpportunities},
	}
}

// Generate runs every scan and returns the union of what the successful scans
// found, ordered by impact then title. A failing scan is logged and skipped.
func (g *InsightGenerator) Generate(series []MetricSeries) []Insight {
	out := []Insight{}
	for _, scan := range g.scans() {
		found, err := g.runScan(scan, series)
		if err != nil {
			g.logger.WithField("scan", scan.name).WithError(err).Error("Insight scan failed")
			g.metrics.RecordScanFailure(scan.name)
			continue
		}
		out = append(out, found...)
	}

	generatedAt := g.now().UTC()
	for i := range out {
		out[i].ID = g.newID()
		out[i].GeneratedAt = generatedAt
		g.metrics.RecordInsight(string(out[i].Type))
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := impactRank(out[i].Impact), impactRank(out[j].Impact)
		if ri != rj {
			return ri < rj
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Industry < out[j].Industry
	})
	return out
}

func (g *InsightGenerator) runScan(scan insightScan, series []MetricSeries) (found []Insight, err error) {
	defer func() {
		if rerr := observability.MustRecover(recover()); rerr != nil {
			found, err = nil, fmt.Errorf("scan %s: %w", scan.name, rerr)
		}
	}()
	return scan.run(series), nil
}

// scanRevenueTrend compares the latest bucket of revenue metrics with the one
// before it.
func (g *InsightGenerator) scanRevenueTrend(series []MetricSeries) []Insight {
	var out []Insight
	for _, s := range series {
		if s.Metric.Category != CategoryRevenue {
			continue
		}
		latest, growth, ok := latestGrowth(s.Values)
		if !ok {
			continue
		}

		switch {
		case growth > g.config.GrowthOpportunityPct:
			out = append(out, g.newInsight(s, InsightOpportunity, latest, growth,
				fmt.Sprintf("%s is growing", s.Metric.Label),
				fmt.Sprintf("%s grew %.1f%% over the last period. Consider scaling what is driving it.", s.Metric.Label, growth),
				[]string{"Review which services or channels drove the increase", "Plan capacity for sustained demand"}))
		case growth < g.config.DeclineWarningPct:
			out = append(out, g.newInsight(s, InsightWarning, latest, growth,
				fmt.Sprintf("%s is declining", s.Metric.Label),
				fmt.Sprintf("%s fell %.1f%% over the last period.", s.Metric.Label, math.Abs(growth)),
				[]string{"Check pricing and discounting", "Follow up on open estimates and unpaid invoices"}))
		}
	}
	return out
}

// scanCustomerBehavior flags growth and decline of customer metrics.
func (g *InsightGenerator) scanCustomerBehavior(series []MetricSeries) []Insight {
	var out []Insight
	for _, s := range series {
		if s.Metric.Category != CategoryCustomer {
			continue
		}
		latest, growth, ok := latestGrowth(s.Values)
		if !ok {
			continue
		}

		switch {
		case growth < g.config.DeclineWarningPct:
			out = append(out, g.newInsight(s, InsightWarning, latest, growth,
				fmt.Sprintf("Fewer %s", strings.ToLower(s.Metric.Label)),
				fmt.Sprintf("%s dropped %.1f%% compared with the previous period.", s.Metric.Label, math.Abs(growth)),
				[]string{"Reach out to lapsed customers", "Review recent customer feedback"}))
		case growth > g.config.GrowthOpportunityPct:
			out = append(out, g.newInsight(s, InsightTrend, latest, growth,
				fmt.Sprintf("More %s", strings.ToLower(s.Metric.Label)),
				fmt.Sprintf("%s rose %.1f%% compared with the previous period.", s.Metric.Label, growth),
				nil))
		}
	}
	return out
}

// scanAnomalies scores the latest bucket against the buckets before it.
func (g *InsightGenerator) scanAnomalies(series []MetricSeries) []Insight {
	var out []Insight
	for _, s := range series {
		n := len(s.Values)
		if n < g.config.MinAnomalyHistory+1 {
			continue
		}
		baseline := stats.Float64Data(s.Values[:n-1])
		latest := s.Values[n-1]

		mean, err := stats.Mean(baseline)
		if err != nil {
			continue
		}
		sd, err := stats.StandardDeviation(baseline)
		if err != nil || sd == 0 {
			continue
		}

		z := (latest - mean) / sd
		if math.Abs(z) < g.config.AnomalyZScore {
			continue
		}

		change := 0.0
		if mean != 0 {
			change = finite((latest - mean) / math.Abs(mean) * 100)
		}
		direction := "above"
		if z < 0 {
			direction = "below"
		}
		out = append(out, g.newInsight(s, InsightAnomaly, latest, change,
			fmt.Sprintf("Unusual %s", strings.ToLower(s.Metric.Label)),
			fmt.Sprintf("%s is %.1f standard deviations %s its recent average of %.2f.", s.Metric.Label, math.Abs(z), direction, mean),
			[]string{"Verify the underlying records for data entry errors", "Check for one-off events in this period"}))
	}
	return out
}

// scanOpportunities fits a least-squares line to operations and marketing
// metrics and flags sustained movement.
func (g *InsightGenerator) scanOpportunities(series []MetricSeries) []Insight {
	var out []Insight
	for _, s := range series {
		if s.Metric.Category != CategoryOperations && s.Metric.Category != CategoryMarketing {
			continue
		}
		n := len(s.Values)
		if n < 3 {
			continue
		}

		mean, err := stats.Mean(stats.Float64Data(s.Values))
		if err != nil || mean <= 0 {
			continue
		}
		points := make(stats.Series, n)
		for i, v := range s.Values {
			points[i] = stats.Coordinate{X: float64(i), Y: v}
		}
		fitted, err := stats.LinearRegression(points)
		if err != nil || len(fitted) != n {
			continue
		}

		slopePct := finite((fitted[n-1].Y - fitted[0].Y) / float64(n-1) / mean * 100)
		total := finite(slopePct * float64(n-1))
		latest := s.Values[n-1]

		switch {
		case slopePct >= g.config.SustainedGrowthPct:
			out = append(out, g.newInsight(s, InsightOpportunity, latest, total,
				fmt.Sprintf("Sustained growth in %s", strings.ToLower(s.Metric.Label)),
				fmt.Sprintf("%s has grown about %.1f%% per period across the last %d periods.", s.Metric.Label, slopePct, n),
				[]string{"Invest further in what is working", "Make sure staffing keeps up with demand"}))
		case slopePct <= -g.config.SustainedGrowthPct:
			out = append(out, g.newInsight(s, InsightWarning, latest, total,
				fmt.Sprintf("Sustained decline in %s", strings.ToLower(s.Metric.Label)),
				fmt.Sprintf("%s has fallen about %.1f%% per period across the last %d periods.", s.Metric.Label, math.Abs(slopePct), n),
				[]string{"Review scheduling and campaign performance"}))
		}
	}
	return out
}

func (g *InsightGenerator) newInsight(s MetricSeries, typ InsightType, value, change float64, title, description string, actions []string) Insight {
	return Insight{
		Type:             typ,
		Category:         s.Metric.Category,
		Title:            title,
		Description:      description,
		Impact:           g.impact(change),
		Industry:         s.Industry,
		Metric:           s.Metric.Name,
		Value:            finite(value),
		Change:           finite(change),
		Actionable:       len(actions) > 0,
		SuggestedActions: actions,
	}
}

func (g *InsightGenerator) impact(change float64) Impact {
	abs := math.Abs(change)
	switch {
	case abs >= g.config.HighImpactPct:
		return ImpactHigh
	case abs >= g.config.MediumImpactPct:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// latestGrowth returns the last value and its percent change from the value
// before it. Series without a non-zero baseline are skipped.
func latestGrowth(values []float64) (latest, growth float64, ok bool) {
	n := len(values)
	if n < 2 {
		return 0, 0, false
	}
	latest, previous := values[n-1], values[n-2]
	if previous == 0 {
		return latest, 0, false
	}
	pct, _, _ := percentChange(latest, previous, 0)
	return latest, pct, true
}

func impactRank(i Impact) int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	default:
		return 2
	}
}
