package client

import "context"

// CachedResponse is one stored GET response: the body the registry
// served and the ETag it served it under.
type CachedResponse struct {
	ETag string `json:"etag"`
	Body []byte `json:"body"`
}

// Cache stores GET responses keyed by request URL so the client can
// issue conditional requests and serve 304s from the stored body.
// Implementations must be safe for concurrent use and return (nil, nil)
// on a miss. The client consults caches best-effort: lookup and store
// failures are logged and the request proceeds without the cache.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, res *CachedResponse) error
}
