package analytics

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{"auto", "hs", "rest", "ret"}, catalog.Industries())
	assert.Equal(t, "Home Services", catalog.IndustryName("hs"))
	assert.True(t, catalog.HasIndustry("ret"))
	assert.False(t, catalog.HasIndustry("legal"))

	def, err := catalog.Lookup("hs", "totalRevenue")
	require.NoError(t, err)
	assert.Equal(t, "totalRevenue", def.Name)
	assert.Equal(t, MetricRevenue, def.Type)
	assert.Equal(t, "invoices", def.Table)
	assert.Equal(t, "total_amount", def.Field)
	assert.Equal(t, "created_at", def.TimeField)
	assert.Equal(t, map[string]interface{}{"status": "paid"}, def.Filters)
}

func TestCatalog_DefaultTimeField(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	def, err := catalog.Lookup("rest", "totalSales")
	require.NoError(t, err)
	assert.Equal(t, "created_at", def.TimeField)
}

func TestCatalog_Lookup(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	tests := []struct {
		name     string
		industry string
		metric   string
		wantErr  error
	}{
		{"found in partition", "hs", "activeCustomers", nil},
		{"unknown metric", "hs", "bogus", ErrUnknownMetric},
		{"metric from another partition", "hs", "bayUtilization", ErrUnknownMetric},
		{"unknown industry", "legal", "totalRevenue", ErrUnknownIndustry},
		{"unique without industry", "", "bayUtilization", nil},
		{"ambiguous without industry", "", "activeCustomers", ErrAmbiguousMetric},
		{"unknown without industry", "", "bogus", ErrUnknownMetric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := catalog.Lookup(tt.industry, tt.metric)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.metric, def.Name)
		})
	}
}

func TestCatalog_MetricsSorted(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	defs, err := catalog.Metrics("ret")
	require.NoError(t, err)

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"averageBasketSize", "conversionRate", "newCustomers", "returnRate", "totalSales"}, names)

	_, err = catalog.Metrics("legal")
	assert.ErrorIs(t, err, ErrUnknownIndustry)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "wrong version",
			yaml: "version: 2\nindustries: {}\n",
		},
		{
			name: "no industries",
			yaml: "version: 1\n",
		},
		{
			name: "unknown field",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: count
        category: revenue
        table: jobs
        field: id
        colour: red
`,
		},
		{
			name: "unknown type",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: median
        category: revenue
        table: jobs
        field: id
`,
		},
		{
			name: "unsafe table identifier",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: count
        category: revenue
        table: "jobs; DROP TABLE jobs"
        field: id
`,
		},
		{
			name: "ratio without denominator",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: percentage
        category: operations
        table: jobs
        field: id
        calculations:
          numerator:
            aggregation: count
            field: id
`,
		},
		{
			name: "group-by outside dimensions",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: count
        category: operations
        table: jobs
        field: id
        groupBy: [technician_id]
        dimensions: [status]
`,
		},
		{
			name: "empty partition",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics: {}
`,
		},
		{
			name: "nested filter value",
			yaml: `version: 1
industries:
  hs:
    name: HS
    metrics:
      m:
        label: M
        type: count
        category: operations
        table: jobs
        field: id
        filters:
          status:
            in: [a, b]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalog_ListFilter(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(`version: 1
industries:
  hs:
    name: HS
    metrics:
      openJobs:
        label: Open Jobs
        type: count
        category: operations
        table: jobs
        field: id
        filters:
          status: [scheduled, dispatched]
        dimensions: [status]
        groupBy: [status]
`))
	require.NoError(t, err)

	def, err := catalog.Lookup("hs", "openJobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, def.GroupBy)
	assert.Equal(t, []interface{}{"scheduled", "dispatched"}, def.Filters["status"])
}
