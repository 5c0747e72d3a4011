package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	set, err := DefaultTemplates(catalog)
	require.NoError(t, err)

	all := set.ForIndustry("")
	assert.Len(t, all, 5)
	assert.Len(t, set.ForIndustry("hs"), 2)
	assert.NotNil(t, set.ForIndustry("legal"))
	assert.Empty(t, set.ForIndustry("legal"))

	widgets := set.Widgets()
	total := 0
	for _, d := range all {
		total += len(d.Widgets)
	}
	assert.Len(t, widgets, total)

	for _, iw := range widgets {
		req := iw.Widget.Request(iw.Industry)
		assert.NoError(t, ValidateRequest("org-1", req), "widget %s", iw.Widget.ID)
		for _, m := range req.Metrics {
			_, err := catalog.Lookup(iw.Industry, m)
			assert.NoError(t, err)
		}
	}
}

func TestLoadTemplates_Rejects(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	widget := func(body string) string {
		return `version: 1
dashboards:
  - id: d1
    name: Test
    industry: hs
    widgets:
` + body
	}

	tests := []struct {
		name string
		yaml string
	}{
		{"wrong version", "version: 2\ndashboards: []\n"},
		{"unknown field", "version: 1\ncolour: red\n"},
		{"unknown industry", `version: 1
dashboards:
  - id: d1
    industry: legal
    widgets:
      - {id: w1, chartType: kpi, metrics: [totalRevenue], timeRange: month}
`},
		{"no widgets", "version: 1\ndashboards:\n  - {id: d1, industry: hs, widgets: []}\n"},
		{"unknown metric", widget("      - {id: w1, chartType: kpi, metrics: [bayUtilization], timeRange: month}\n")},
		{"bad chart", widget("      - {id: w1, chartType: radar, metrics: [totalRevenue], timeRange: month}\n")},
		{"custom range", widget("      - {id: w1, chartType: kpi, metrics: [totalRevenue], timeRange: custom}\n")},
		{"bad group", widget("      - {id: w1, chartType: bar, metrics: [newLeads], timeRange: month, groupBy: [technician_id]}\n")},
		{"duplicate widget", widget(`      - {id: w1, chartType: kpi, metrics: [totalRevenue], timeRange: month}
      - {id: w1, chartType: kpi, metrics: [newLeads], timeRange: month}
`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTemplates(strings.NewReader(tt.yaml), catalog)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadTemplates_Valid(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	set, err := LoadTemplates(strings.NewReader(`version: 1
dashboards:
  - id: custom
    name: Custom
    industry: rest
    widgets:
      - {id: sales, chartType: line, metrics: [totalSales], timeRange: week, groupBy: [channel]}
`), catalog)
	require.NoError(t, err)

	dashboards := set.ForIndustry("rest")
	require.Len(t, dashboards, 1)
	assert.Equal(t, []string{"channel"}, dashboards[0].Widgets[0].GroupBy)
	assert.Empty(t, set.ForIndustry("hs"))
}

func TestLoadTemplatesFile_Missing(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = LoadTemplatesFile("/nonexistent/templates.yaml", catalog)
	assert.Error(t, err)
}
