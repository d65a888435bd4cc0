package backend

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// Backend represents one upstream target: a fixed URL, the pool it belongs
// to ("blue"/"green"), and a dedicated HTTP client carrying the per-attempt
// connect and read timeouts. Exactly two backends exist for the lifetime of
// the process; health state lives in the health monitor, not here.
type Backend struct {
	url    *url.URL
	pool   string
	client *http.Client
}

// New creates a Backend for the given URL and pool name.
// connectTimeout bounds dialing (and TLS handshake); readTimeout bounds the
// wait for response headers after the request has been written.
func New(u *url.URL, pool string, connectTimeout, readTimeout time.Duration) *Backend {
	dialer := &net.Dialer{
		Timeout: connectTimeout,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       60 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Backend{
		url:  u,
		pool: pool,
		client: &http.Client{
			Transport: transport,
			// Redirects are passed through to the client untouched.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Pool returns the pool name this backend serves.
func (b *Backend) Pool() string {
	return b.pool
}

// Do forwards a single request to this backend using its configured client.
func (b *Backend) Do(req *http.Request) (*http.Response, error) {
	return b.client.Do(req)
}
