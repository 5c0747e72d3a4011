package analytics

import "errors"

var (
	// ErrInvalidRequest is returned when a request is rejected before any query runs
	ErrInvalidRequest = errors.New("invalid analytics request")

	// ErrTenantMismatch is returned when the request names a different tenant than the caller
	ErrTenantMismatch = errors.New("request tenant does not match caller tenant")

	// ErrUnknownMetric is returned when a metric name is absent from the catalog partition
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrAmbiguousMetric is returned when a metric name resolves in more than one industry
	ErrAmbiguousMetric = errors.New("ambiguous metric")

	// ErrUnknownIndustry is returned when an industry has no catalog partition
	ErrUnknownIndustry = errors.New("unknown industry")

	// ErrInvalidCatalog is returned when a catalog or template file fails validation
	ErrInvalidCatalog = errors.New("invalid metric catalog")

	// ErrInvalidFilter is returned when a filter or grouping field is not allowed for a metric
	ErrInvalidFilter = errors.New("filter field not allowed for metric")
)
