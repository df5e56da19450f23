// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about packaging runs, cache operations, and registry calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPackagingHooks(&myPackagingHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Packaging().OnFetchStart(ctx, crate, version)
//	// ... fetch metadata ...
//	observability.Packaging().OnFetchComplete(ctx, crate, version, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Packaging Hooks
// =============================================================================

// PackagingHooks receives events from the crate packaging pipeline.
type PackagingHooks interface {
	// Registry fetch events
	OnFetchStart(ctx context.Context, crate, version string)
	OnFetchComplete(ctx context.Context, crate, version string, duration time.Duration, err error)

	// Archive extraction events
	OnExtractStart(ctx context.Context, crate, version string)
	OnExtractComplete(ctx context.Context, crate, version string, modified bool, duration time.Duration, err error)

	// Feature resolution events
	OnResolveStart(ctx context.Context, crate string, featureCount int)
	OnResolveComplete(ctx context.Context, crate string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPackagingHooks is a no-op implementation of PackagingHooks.
type NoopPackagingHooks struct{}

func (NoopPackagingHooks) OnFetchStart(context.Context, string, string) {}
func (NoopPackagingHooks) OnFetchComplete(context.Context, string, string, time.Duration, error) {
}
func (NoopPackagingHooks) OnExtractStart(context.Context, string, string) {}
func (NoopPackagingHooks) OnExtractComplete(context.Context, string, string, bool, time.Duration, error) {
}
func (NoopPackagingHooks) OnResolveStart(context.Context, string, int)                     {}
func (NoopPackagingHooks) OnResolveComplete(context.Context, string, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	packagingHooks PackagingHooks = NoopPackagingHooks{}
	cacheHooks     CacheHooks     = NoopCacheHooks{}
	httpHooks      HTTPHooks      = NoopHTTPHooks{}
	hooksMu        sync.RWMutex
)

// SetPackagingHooks registers custom packaging hooks.
// This should be called once at application startup before any packaging runs.
func SetPackagingHooks(h PackagingHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		packagingHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Packaging returns the registered packaging hooks.
func Packaging() PackagingHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return packagingHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	packagingHooks = NoopPackagingHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
