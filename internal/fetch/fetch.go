// Package fetch implements cachegate's read path: the composition of the
// byte-bounded cache, the singleflight coordinator, and the store registry
// (spec §4.5).
package fetch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cachegate/cachegate/internal/contenttype"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/objcache"
	"github.com/cachegate/cachegate/internal/store"
)

// Result is what a successful read returns to the HTTP handler.
type Result struct {
	Bytes       []byte
	ContentType string
	Size        int64
}

// PrefetchResult is returned by the detached prefetch entry point.
type PrefetchResult struct {
	CacheHit bool
	Bytes    int64
}

// Fetcher glues the cache, singleflight group, and store registry together.
type Fetcher struct {
	cache    *objcache.Cache
	registry store.Locator
	metrics  *metrics.Registry
	group    singleflight.Group

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Fetcher over an existing cache and store registry.
func New(cache *objcache.Cache, registry store.Locator, m *metrics.Registry) *Fetcher {
	return &Fetcher{cache: cache, registry: registry, metrics: m, now: time.Now}
}

// Get performs steps 1-3 of §4.5 for (bucketID, path): cache lookup, then a
// singleflight-coordinated store fetch on miss. ctx only governs how long
// this particular caller is willing to wait: canceling it demotes the
// caller to an ordinary waiter of its own future and returns ctx.Err(), it
// never cancels the in-flight fetch other waiters (or the cache) depend on
// (§4.4/§5).
func (f *Fetcher) Get(ctx context.Context, bucketID, path string) (Result, error) {
	key := objcache.Key{BucketID: bucketID, Path: path}

	if obj, ok := f.cache.Get(key, f.now()); ok {
		f.metrics.IncCacheHit()
		return Result{Bytes: obj.Bytes, ContentType: obj.ContentType, Size: obj.Size}, nil
	}
	f.metrics.IncCacheMiss()

	sfKey := bucketID + "\x00" + path
	ch := f.group.DoChan(sfKey, func() (interface{}, error) {
		return f.populate(bucketID, path, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// populate is the body of the singleflight slot: it calls the store, picks
// a content type, and attempts a cache insert. The store call runs under a
// context detached from whichever request happened to trigger it, so that
// request's cancellation demotes it to an ordinary waiter of its own future
// instead of aborting the fetch for every coalesced waiter (§4.4/§5).
func (f *Fetcher) populate(bucketID, path string, key objcache.Key) (Result, error) {
	adapter, err := f.registry.Lookup(bucketID)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	obj, err := adapter.Get(context.Background(), path)
	f.metrics.ObserveUpstreamLatency(bucketID, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, err
		}
		f.metrics.IncUpstreamError()
		return Result{}, err
	}

	contentType := contenttype.Resolve(obj.ContentType, path, obj.Bytes)
	size := int64(len(obj.Bytes))

	f.cache.Insert(key, objcache.Object{Bytes: obj.Bytes, ContentType: contentType, Size: size}, f.now())

	return Result{Bytes: obj.Bytes, ContentType: contentType, Size: size}, nil
}

// Prefetch runs the same cache→singleflight→store path as Get but detached
// from any requesting HTTP transaction, and always returns immediately: on a
// cache hit it reports CacheHit with the object's size; on a miss it starts
// Get in a background goroutine under context.Background() and reports
// CacheHit false with Bytes 0. ctx is not used.
func (f *Fetcher) Prefetch(ctx context.Context, bucketID, path string) PrefetchResult {
	key := objcache.Key{BucketID: bucketID, Path: path}
	if obj, ok := f.cache.Get(key, f.now()); ok {
		return PrefetchResult{CacheHit: true, Bytes: obj.Size}
	}

	go func() {
		_, _ = f.Get(context.Background(), bucketID, path)
	}()

	return PrefetchResult{CacheHit: false, Bytes: 0}
}

// CacheStats exposes the underlying cache's size observers for /stats.
func (f *Fetcher) CacheStats() (bytesUsed int64, entries int) {
	return f.cache.SizeBytes(), f.cache.Len()
}
