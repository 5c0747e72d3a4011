package cache

import "errors"

var (
	// ErrCacheMiss is returned when a cache key is not found or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey is returned when a cache key is empty
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrUnknownBackend is returned by NewStore for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown cache backend")
)
