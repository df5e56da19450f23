package integrations

import (
	"net/http"
	"time"
)

const (
	// apiTimeout bounds metadata requests against registry APIs.
	apiTimeout = 10 * time.Second

	// downloadTimeout bounds full archive downloads. Crate archives are
	// small (rarely above a few megabytes) but slow mirrors exist.
	downloadTimeout = 5 * time.Minute
)

// NewHTTPClient creates an HTTP client with a standard timeout for registry
// API requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: apiTimeout}
}

// NewDownloadClient creates an HTTP client with a generous timeout suitable
// for streaming archive downloads.
func NewDownloadClient() *http.Client {
	return &http.Client{Timeout: downloadTimeout}
}
