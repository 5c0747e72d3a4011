package analytics

// CRITICAL INVARIANT: REPORT CACHE KEYS
// Report keys are "report:v1:<sha256>" over canonicalRequest. The store scopes
// every key and tag under the tenant, and the tenant id is also part of the
// hashed payload. Two requests that differ only in metric order, duplicate
// metrics, map insertion order or timestamp zone must hash identically.
//
// Any change to canonicalRequest or its normalization must bump the version
// segment so entries written by older builds are never read back.

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/byronwade/thorbis.com-sub011/pkg/cache"
	"github.com/byronwade/thorbis.com-sub011/pkg/observability"
)

const (
	reportKeyVersion  = "v1"
	insightKeyVersion = "v1"
	allIndustries     = "all"
)

type canonicalComparison struct {
	TimeRange TimeRange  `json:"timeRange"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type canonicalRequest struct {
	TenantID   string                 `json:"tenantId"`
	Industry   string                 `json:"industry"`
	Metrics    []string               `json:"metrics"`
	TimeRange  TimeRange              `json:"timeRange"`
	StartDate  *time.Time             `json:"startDate,omitempty"`
	EndDate    *time.Time             `json:"endDate,omitempty"`
	GroupBy    []string               `json:"groupBy,omitempty"`
	Filters    map[string]interface{} `json:"filters,omitempty"`
	Comparison *canonicalComparison   `json:"comparison,omitempty"`
}

// ReportCacheKey returns the tenant-relative cache key of req. The request is
// normalized first, so callers may pass it as received.
func ReportCacheKey(tenantID string, req AnalyticsRequest) (string, error) {
	n := normalizeRequest(tenantID, req)
	c := canonicalRequest{
		TenantID:  tenantID,
		Industry:  n.Industry,
		Metrics:   n.Metrics,
		TimeRange: n.TimeRange,
		StartDate: n.StartDate,
		EndDate:   n.EndDate,
		GroupBy:   n.GroupBy,
		Filters:   n.Filters,
	}
	if n.Comparison != nil {
		c.Comparison = &canonicalComparison{
			TimeRange: n.Comparison.TimeRange,
			StartDate: n.Comparison.StartDate,
			EndDate:   n.Comparison.EndDate,
		}
	}

	hash, err := cache.CanonicalHash(c)
	if err != nil {
		return "", err
	}
	return cache.JoinKey("report", reportKeyVersion, hash), nil
}

func insightCacheKey(industry string) string {
	if industry == "" {
		industry = allIndustries
	}
	return cache.JoinKey("insights", insightKeyVersion, industry)
}

// resultCache wraps a cache.Store with JSON values. Every backend failure
// degrades to a miss.
type resultCache struct {
	store   cache.Store
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

func (c *resultCache) load(ctx context.Context, tenantID, key, keyType string, dst interface{}) bool {
	data, err := c.store.Get(ctx, tenantID, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"cache_key": key,
			}).WithError(err).Warn("Cache read failed, computing instead")
			c.metrics.RecordCacheError(keyType, "get")
		}
		c.metrics.RecordCacheMiss(keyType)
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"cache_key": key,
		}).WithError(err).Warn("Discarding undecodable cache entry")
		c.metrics.RecordCacheError(keyType, "decode")
		c.metrics.RecordCacheMiss(keyType)
		return false
	}

	c.metrics.RecordCacheHit(keyType)
	return true
}

func (c *resultCache) save(ctx context.Context, tenantID, key, keyType string, data []byte, ttl time.Duration, tags []string) {
	if err := c.store.Set(ctx, tenantID, key, data, ttl, tags...); err != nil {
		c.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"cache_key": key,
		}).WithError(err).Warn("Cache write failed")
		c.metrics.RecordCacheError(keyType, "set")
	}
}

func tableTags(tables []string) []string {
	tags := make([]string, len(tables))
	for i, t := range tables {
		tags[i] = cache.TableTag(t)
	}
	return tags
}
