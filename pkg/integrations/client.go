// Package integrations provides HTTP clients for package registries.
//
// The base [Client] handles caching, retry logic, and common request
// headers; registry-specific clients (crates.io under crates/) embed it
// and add their API surface on top.
package integrations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/debcrate/pkg/cache"
	"github.com/matzehuels/debcrate/pkg/errors"
	"github.com/matzehuels/debcrate/pkg/httputil"
	"github.com/matzehuels/debcrate/pkg/observability"
)

// Client provides shared HTTP functionality for registry API clients.
// It handles caching, retry logic, and common request headers.
type Client struct {
	http     *http.Client
	download *http.Client
	cache    cache.Cache
	prefix   string
	ttl      time.Duration
	headers  map[string]string
}

// NewClient creates a Client with the given cache backend and default headers.
// Cache keys are namespaced with prefix and entries expire after ttl.
// Headers are applied to all requests made through this client; pass nil if
// no default headers are needed.
func NewClient(backend cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	return &Client{
		http:     NewHTTPClient(),
		download: NewDownloadClient(),
		cache:    backend,
		prefix:   prefix,
		ttl:      ttl,
		headers:  headers,
	}
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	cacheKey := c.prefix + key

	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, cacheKey); ok {
			if err := json.Unmarshal(data, v); err == nil {
				observability.Cache().OnCacheHit(ctx, c.prefix)
				return nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, c.prefix)
	}

	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}

	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, cacheKey, data, c.ttl)
		observability.Cache().OnCacheSet(ctx, c.prefix, len(data))
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// GetText performs an HTTP GET request and returns the response body as a
// string. Useful for non-JSON endpoints like the sparse registry index.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.doRequest(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	return string(data), err
}

// Download streams url into the file at dest, retrying transient failures.
// The payload lands in a temporary sibling first and is renamed into place
// only once complete, so dest never holds a truncated download. If checksum
// is non-empty, the payload's SHA-256 must match it (lowercase hex).
func (c *Client) Download(ctx context.Context, url, dest, checksum string) error {
	return httputil.RetryWithBackoff(ctx, func() error {
		return c.downloadOnce(ctx, url, dest, checksum)
	})
}

func (c *Client) downloadOnce(ctx context.Context, url, dest, checksum string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	observability.HTTP().OnRequest(ctx, http.MethodGet, req.URL.Host, req.URL.Path)

	resp, err := c.download.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, req.URL.Host, req.URL.Path, err)
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "downloading %s", url)}
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, url); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body); err != nil {
		tmp.Close()
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "downloading %s", url)}
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if checksum != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != checksum {
			return errors.New(errors.ErrCodeInvalidInput,
				"checksum mismatch for %s: got %s, want %s", url, got, checksum)
		}
	}
	return os.Rename(tmp.Name(), dest)
}

func (c *Client) doRequest(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	observability.HTTP().OnRequest(ctx, http.MethodGet, req.URL.Host, req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, req.URL.Host, req.URL.Path, err)
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "requesting %s", url)}
	}
	observability.HTTP().OnResponse(ctx, http.MethodGet, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, url); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int, url string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return errors.New(errors.ErrCodeNotFound, "resource not found: %s", url)
	case code == http.StatusTooManyRequests:
		return &httputil.RetryableError{
			Err: errors.New(errors.ErrCodeRateLimited, "rate limited by %s", url),
		}
	case code >= 500:
		return &httputil.RetryableError{
			Err: errors.New(errors.ErrCodeNetwork, "status %d from %s", code, url),
		}
	default:
		return fmt.Errorf("unexpected status %d from %s", code, url)
	}
}
