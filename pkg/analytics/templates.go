package analytics

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// TemplateSet holds the built-in starter dashboards. It is read-only after
// loading.
type TemplateSet struct {
	dashboards []Dashboard
}

type templateFile struct {
	Version    int         `yaml:"version"`
	Dashboards []Dashboard `yaml:"dashboards"`
}

// DefaultTemplates loads the built-in dashboards, checked against catalog.
func DefaultTemplates(catalog *Catalog) (*TemplateSet, error) {
	return LoadTemplates(bytes.NewReader(defaultTemplatesYAML), catalog)
}

// LoadTemplatesFile loads dashboards from a YAML file.
func LoadTemplatesFile(path string, catalog *Catalog) (*TemplateSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open templates %s: %w", path, err)
	}
	defer f.Close()

	return LoadTemplates(f, catalog)
}

// LoadTemplates decodes dashboards and checks every widget against catalog:
// the industry must exist, widget metrics must resolve in that industry and
// group-by fields must be dimensions of each widget metric.
func LoadTemplates(r io.Reader, catalog *Catalog) (*TemplateSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file templateFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: templates: %v", ErrInvalidCatalog, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported templates version %d", ErrInvalidCatalog, file.Version)
	}

	ids := make(map[string]bool)
	for _, d := range file.Dashboards {
		if d.ID == "" || ids[d.ID] {
			return nil, fmt.Errorf("%w: dashboard id %q is empty or duplicated", ErrInvalidCatalog, d.ID)
		}
		ids[d.ID] = true
		if !catalog.HasIndustry(d.Industry) {
			return nil, fmt.Errorf("%w: dashboard %s: unknown industry %q", ErrInvalidCatalog, d.ID, d.Industry)
		}
		if len(d.Widgets) == 0 {
			return nil, fmt.Errorf("%w: dashboard %s has no widgets", ErrInvalidCatalog, d.ID)
		}
		for _, w := range d.Widgets {
			if err := validateWidget(catalog, d.Industry, w); err != nil {
				return nil, fmt.Errorf("%w: dashboard %s widget %s: %v", ErrInvalidCatalog, d.ID, w.ID, err)
			}
			if ids[w.ID] {
				return nil, fmt.Errorf("%w: widget id %q is duplicated", ErrInvalidCatalog, w.ID)
			}
			ids[w.ID] = true
		}
	}

	return &TemplateSet{dashboards: file.Dashboards}, nil
}

func validateWidget(catalog *Catalog, industry string, w DashboardWidget) error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch w.ChartType {
	case ChartLine, ChartBar, ChartPie, ChartKPI, ChartTable, ChartArea:
	default:
		return fmt.Errorf("unknown chart type %q", w.ChartType)
	}
	if _, ok := RangeDuration(w.TimeRange); !ok {
		return fmt.Errorf("widgets need a named time range, got %q", w.TimeRange)
	}
	if len(w.Metrics) == 0 {
		return fmt.Errorf("no metrics")
	}

	for _, name := range w.Metrics {
		def, err := catalog.Lookup(industry, name)
		if err != nil {
			return err
		}
		dims := make(map[string]bool, len(def.Dimensions))
		for _, dim := range def.Dimensions {
			dims[dim] = true
		}
		for _, g := range w.GroupBy {
			if !dims[g] {
				return fmt.Errorf("%s cannot be grouped by %q", name, g)
			}
		}
	}
	return nil
}

// ForIndustry returns copies of the dashboards for industry, or of every
// dashboard when industry is empty. An unknown industry has no dashboards.
func (t *TemplateSet) ForIndustry(industry string) []Dashboard {
	out := []Dashboard{}
	for _, d := range t.dashboards {
		if industry != "" && d.Industry != industry {
			continue
		}
		out = append(out, copyDashboard(d))
	}
	return out
}

// Widgets returns every widget of every dashboard with its industry.
func (t *TemplateSet) Widgets() []IndustryWidget {
	var out []IndustryWidget
	for _, d := range t.dashboards {
		for _, w := range d.Widgets {
			out = append(out, IndustryWidget{Industry: d.Industry, Widget: copyWidget(w)})
		}
	}
	return out
}

// IndustryWidget pairs a widget with the industry of its dashboard.
type IndustryWidget struct {
	Industry string
	Widget   DashboardWidget
}

func copyDashboard(d Dashboard) Dashboard {
	out := d
	out.Widgets = make([]DashboardWidget, len(d.Widgets))
	for i, w := range d.Widgets {
		out.Widgets[i] = copyWidget(w)
	}
	return out
}

func copyWidget(w DashboardWidget) DashboardWidget {
	out := w
	out.Metrics = append([]string(nil), w.Metrics...)
	out.GroupBy = append([]string(nil), w.GroupBy...)
	return out
}
