package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

// maxPayloadBytes caps how much of an upstream response we read.
const maxPayloadBytes = 4 << 20

// rateLimitBackoff is how long a host stays blocked after it throttles us.
const rateLimitBackoff = 5 * time.Minute

// Fetcher is the external collaborator that retrieves raw payloads. The
// core never fetches; adapters and codecs only see the bytes it returns.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches payloads over HTTP and remembers which hosts recently
// throttled us, failing fast instead of hammering them for the backoff
// window.
type HTTPFetcher struct {
	Client http.Client
	Token  string

	mu      sync.Mutex
	blocked map[string]time.Time
}

func NewHTTPFetcher(token string) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  http.Client{Timeout: 10 * time.Second},
		Token:   token,
		blocked: make(map[string]time.Time),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	if until, ok := f.blockedUntil(host); ok {
		return nil, source.NewRateLimitError(
			fmt.Sprintf("%s is rate limited until %s", host, until.Format(time.RFC3339)), 0)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, source.NewFormatError("bad upstream url "+rawURL, err)
	}
	if f.Token != "" {
		r.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.Client.Do(r)
	if err != nil {
		return nil, source.NewFormatError("fetching "+rawURL, err)
	}
	defer resp.Body.Close()

	telemetry.Increment("fetches", 1)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, source.NewAuthError(fmt.Sprintf("%s returned %d", host, resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, source.NewNotFoundError(rawURL + " does not exist upstream")
	case resp.StatusCode == http.StatusTooManyRequests:
		f.block(host)
		return nil, source.NewRateLimitError(host+" throttled the request", 0)
	case resp.StatusCode != http.StatusOK:
		return nil, source.NewFormatError(fmt.Sprintf("%s returned %d", host, resp.StatusCode), nil)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, source.NewFormatError("reading response from "+host, err)
	}
	return payload, nil
}

func (f *HTTPFetcher) blockedUntil(host string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.blocked[host]
	if !ok {
		return time.Time{}, false
	}
	if time.Now().After(until) {
		delete(f.blocked, host)
		return time.Time{}, false
	}
	return until, true
}

func (f *HTTPFetcher) block(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[host] = time.Now().Add(rateLimitBackoff)
	telemetry.Log("backing off %s for %s after 429", host, rateLimitBackoff)
	telemetry.Increment("rate_limited", 1)
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
