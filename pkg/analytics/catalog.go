package analytics

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/byronwade/thorbis.com-sub011/pkg/query"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var metricNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Catalog is the closed registry of metric definitions, partitioned by
// industry tag. It is read-only after loading and safe for concurrent use.
type Catalog struct {
	partitions map[string]map[string]MetricDefinition
	names      map[string]string
	industries []string
}

type catalogFile struct {
	Version    int                          `yaml:"version"`
	Industries map[string]industryPartition `yaml:"industries"`
}

type industryPartition struct {
	Name    string                      `yaml:"name"`
	Metrics map[string]MetricDefinition `yaml:"metrics"`
}

// DefaultCatalog loads the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
}

// LoadCatalogFile loads and validates a catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()

	return LoadCatalog(f)
}

// LoadCatalog decodes and validates a catalog. Unknown YAML fields are rejected
// so typos surface at load time.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported catalog version %d", ErrInvalidCatalog, file.Version)
	}
	if len(file.Industries) == 0 {
		return nil, fmt.Errorf("%w: no industries defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		partitions: make(map[string]map[string]MetricDefinition, len(file.Industries)),
		names:      make(map[string]string, len(file.Industries)),
	}

	for industry, partition := range file.Industries {
		if !query.ValidIdentifier(industry) {
			return nil, fmt.Errorf("%w: invalid industry tag %q", ErrInvalidCatalog, industry)
		}
		if len(partition.Metrics) == 0 {
			return nil, fmt.Errorf("%w: industry %s has no metrics", ErrInvalidCatalog, industry)
		}

		metrics := make(map[string]MetricDefinition, len(partition.Metrics))
		for name, def := range partition.Metrics {
			def.Name = name
			if def.TimeField == "" {
				def.TimeField = "created_at"
			}
			if err := validateMetric(def); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidCatalog, industry, name, err)
			}
			metrics[name] = def
		}

		c.partitions[industry] = metrics
		c.names[industry] = partition.Name
		c.industries = append(c.industries, industry)
	}
	sort.Strings(c.industries)

	return c, nil
}

// Industries returns the industry tags in sorted order.
func (c *Catalog) Industries() []string {
	return append([]string(nil), c.industries...)
}

// IndustryName returns the display name of an industry.
func (c *Catalog) IndustryName(industry string) string {
	return c.names[industry]
}

// HasIndustry reports whether the catalog has a partition for industry.
func (c *Catalog) HasIndustry(industry string) bool {
	_, ok := c.partitions[industry]
	return ok
}

// Lookup resolves a metric name. With an industry, only that partition is
// searched. Without one, every partition is searched and a name defined in
// more than one partition is ambiguous.
func (c *Catalog) Lookup(industry, name string) (MetricDefinition, error) {
	if industry != "" {
		partition, ok := c.partitions[industry]
		if !ok {
			return MetricDefinition{}, fmt.Errorf("%w: %s", ErrUnknownIndustry, industry)
		}
		def, ok := partition[name]
		if !ok {
			return MetricDefinition{}, fmt.Errorf("%w: %s in %s", ErrUnknownMetric, name, industry)
		}
		return def, nil
	}

	var (
		found   MetricDefinition
		matches []string
	)
	for _, ind := range c.industries {
		if def, ok := c.partitions[ind][name]; ok {
			found = def
			matches = append(matches, ind)
		}
	}

	switch len(matches) {
	case 0:
		return MetricDefinition{}, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	case 1:
		return found, nil
	default:
		return MetricDefinition{}, fmt.Errorf("%w: %s is defined for %v", ErrAmbiguousMetric, name, matches)
	}
}

// Metrics lists an industry's metric definitions in name order.
func (c *Catalog) Metrics(industry string) ([]MetricDefinition, error) {
	partition, ok := c.partitions[industry]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndustry, industry)
	}

	defs := make([]MetricDefinition, 0, len(partition))
	for _, def := range partition {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func validateMetric(def MetricDefinition) error {
	if !metricNamePattern.MatchString(def.Name) {
		return fmt.Errorf("invalid metric name")
	}
	if def.Label == "" {
		return fmt.Errorf("label is required")
	}

	switch def.Type {
	case MetricRevenue, MetricCount, MetricAverage, MetricSum, MetricDuration:
	case MetricPercentage, MetricRate:
		for _, part := range []string{"numerator", "denominator"} {
			if _, ok := def.Calculations[part]; !ok {
				return fmt.Errorf("%s metric requires a %s calculation", def.Type, part)
			}
		}
	default:
		return fmt.Errorf("unknown metric type %q", def.Type)
	}

	switch def.Category {
	case CategoryRevenue, CategoryCustomer, CategoryOperations, CategoryMarketing:
	default:
		return fmt.Errorf("unknown category %q", def.Category)
	}

	for _, ident := range []string{def.Table, def.Field, def.TimeField} {
		if !query.ValidIdentifier(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}

	dims := make(map[string]bool, len(def.Dimensions))
	for _, dim := range def.Dimensions {
		if !query.ValidIdentifier(dim) {
			return fmt.Errorf("invalid dimension %q", dim)
		}
		dims[dim] = true
	}
	for _, g := range def.GroupBy {
		if !dims[g] {
			return fmt.Errorf("group-by field %q is not a dimension", g)
		}
	}
	if err := validatePredicate(def.Filters); err != nil {
		return fmt.Errorf("filters: %w", err)
	}

	for name, calc := range def.Calculations {
		if calc.Aggregation != "sum" && calc.Aggregation != "count" {
			return fmt.Errorf("calculation %s: unknown aggregation %q", name, calc.Aggregation)
		}
		if !query.ValidIdentifier(calc.Field) {
			return fmt.Errorf("calculation %s: invalid field %q", name, calc.Field)
		}
		if err := validatePredicate(calc.Where); err != nil {
			return fmt.Errorf("calculation %s: %w", name, err)
		}
	}

	return nil
}

// validatePredicate checks a field -> value map. Values must be scalars or
// lists of scalars.
func validatePredicate(pred map[string]interface{}) error {
	for field, value := range pred {
		if !query.ValidIdentifier(field) {
			return fmt.Errorf("invalid field %q", field)
		}
		if !isFilterValue(value) {
			return fmt.Errorf("unsupported value for %s", field)
		}
	}
	return nil
}

func isFilterValue(v interface{}) bool {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	case []interface{}:
		for _, item := range val {
			switch item.(type) {
			case string, bool, int, int64, float64:
			default:
				return false
			}
		}
		return len(val) > 0
	case []string:
		return len(val) > 0
	default:
		return false
	}
}
