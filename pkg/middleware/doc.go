// Package middleware provides per-tenant HTTP rate limiting for the analytics API.
//
// # Limiters
//
// RateLimiter is an in-process token bucket: RequestsPerWindow tokens refill
// over WindowDuration and BurstSize extra tokens absorb spikes.
//
// DistributedRateLimiter keeps a fixed window counter in Redis so all server
// instances share one budget per tenant.
//
// # Usage
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "analytics:ratelimit")
//	router.Handle("/tenants/{tenant}/reports", middleware.TenantRateLimit(limiter, metrics)(reports))
//
// Denied requests get 429 with Retry-After. Limiter errors fail open.
package middleware
