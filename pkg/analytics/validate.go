package analytics

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/byronwade/thorbis.com-sub011/pkg/query"
)

const maxTenantIDLength = 128

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateTenantID checks a tenant id used to scope queries and cache keys.
func ValidateTenantID(tenantID string) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	case len(tenantID) > maxTenantIDLength:
		return fmt.Errorf("%w: tenant id is too long", ErrInvalidRequest)
	case strings.Contains(tenantID, ":"):
		return fmt.Errorf("%w: tenant id must not contain ':'", ErrInvalidRequest)
	}
	return nil
}

// ValidateRequest checks the shape of req for tenantID. Every failure wraps
// ErrInvalidRequest; a request naming another tenant also wraps
// ErrTenantMismatch.
func ValidateRequest(tenantID string, req AnalyticsRequest) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}
	if req.TenantID != "" && req.TenantID != tenantID {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrTenantMismatch)
	}

	if err := getValidator().Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describeValidation(err))
	}

	if !knownRange(req.TimeRange) {
		return fmt.Errorf("%w: unknown time range %q", ErrInvalidRequest, req.TimeRange)
	}
	if err := checkBounds("", req.TimeRange, req.StartDate != nil || req.EndDate != nil); err != nil {
		return err
	}
	if req.TimeRange == RangeCustom {
		if _, err := explicitWindow(req.StartDate, req.EndDate); err != nil {
			return err
		}
	}

	if c := req.Comparison; c != nil {
		if !knownRange(c.TimeRange) {
			return fmt.Errorf("%w: unknown comparison range %q", ErrInvalidRequest, c.TimeRange)
		}
		if err := checkBounds("comparison ", c.TimeRange, c.StartDate != nil || c.EndDate != nil); err != nil {
			return err
		}
		if c.TimeRange == RangeCustom {
			if _, err := explicitWindow(c.StartDate, c.EndDate); err != nil {
				return fmt.Errorf("comparison: %w", err)
			}
		}
	}

	for _, field := range req.GroupBy {
		if !query.ValidIdentifier(field) {
			return fmt.Errorf("%w: invalid group-by field %q", ErrInvalidRequest, field)
		}
	}
	for field, value := range req.Filters {
		if !query.ValidIdentifier(field) {
			return fmt.Errorf("%w: invalid filter field %q", ErrInvalidRequest, field)
		}
		if !isFilterValue(value) {
			return fmt.Errorf("%w: unsupported value for filter %q", ErrInvalidRequest, field)
		}
	}

	return nil
}

func knownRange(tr TimeRange) bool {
	_, ok := rangeDurations[tr]
	return ok || tr == RangeCustom
}

// checkBounds rejects explicit dates on a named range. Dates are accepted
// only with the custom range.
func checkBounds(prefix string, tr TimeRange, hasDates bool) error {
	if tr != RangeCustom && hasDates {
		return fmt.Errorf("%w: %sstartDate and endDate are only allowed with a custom range", ErrInvalidRequest, prefix)
	}
	return nil
}

// normalizeRequest returns a copy of req in canonical form: metrics sorted and
// deduplicated, timestamps in UTC, empty collections dropped.
func normalizeRequest(tenantID string, req AnalyticsRequest) AnalyticsRequest {
	out := req
	out.TenantID = tenantID

	seen := make(map[string]bool, len(req.Metrics))
	out.Metrics = make([]string, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		if !seen[m] {
			seen[m] = true
			out.Metrics = append(out.Metrics, m)
		}
	}
	sort.Strings(out.Metrics)

	out.StartDate = utcPtr(req.StartDate)
	out.EndDate = utcPtr(req.EndDate)

	if len(req.GroupBy) == 0 {
		out.GroupBy = nil
	} else {
		out.GroupBy = append([]string(nil), req.GroupBy...)
	}
	if len(req.Filters) == 0 {
		out.Filters = nil
	} else {
		out.Filters = make(map[string]interface{}, len(req.Filters))
		for k, v := range req.Filters {
			out.Filters[k] = v
		}
	}

	if req.Comparison != nil {
		cmp := *req.Comparison
		cmp.StartDate = utcPtr(cmp.StartDate)
		cmp.EndDate = utcPtr(cmp.EndDate)
		out.Comparison = &cmp
	}

	return out
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
