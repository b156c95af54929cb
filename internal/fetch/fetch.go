// Wraps network calls with TTL memoization and in-flight de-duplication
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/httpkit/reqcache/internal/cache"
)

// Operation performs the real network call for a key.
type Operation func(ctx context.Context) ([]byte, error)

// Options control a single fetch.
type Options struct {
	// TTL for the cached payload; 0 uses the store default
	TTL time.Duration
	// ForceRefresh bypasses the cache read but still participates in
	// in-flight de-duplication
	ForceRefresh bool
}

// HTTPError reports a non-2xx upstream status. Responses carrying it
// are never cached, so the next fetch for the key retries the network.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %s", e.Status)
}

// Fetcher is the single entry point for cached network calls. It
// consults the store first, then the in-flight registry, and only then
// performs a real network operation.
type Fetcher struct {
	store  cache.Store
	reg    *registry
	client *http.Client
}

// New creates a Fetcher on top of a cache store. A nil client gets a
// default with a 30s timeout.
func New(store cache.Store, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		store:  store,
		reg:    newRegistry(),
		client: client,
	}
}

// Do returns the cached payload for key if one is valid, otherwise runs
// op exactly once across all concurrent callers and caches its result.
// Failures are never cached and the in-flight marker is removed
// regardless of outcome, so no key can get permanently stuck.
func (f *Fetcher) Do(ctx context.Context, key string, op Operation, opts Options) ([]byte, error) {
	f.reg.mu.Lock()

	if !opts.ForceRefresh {
		data, err := f.store.Get(key)
		if err != nil {
			logrus.Errorf("Cache read failed for %s: %v", key, err)
		} else if data != nil {
			f.reg.mu.Unlock()
			logrus.Debugf("Cache hit for %s", key)
			return data, nil
		}
	}

	if c, ok := f.reg.calls[key]; ok {
		// Attach to the operation already underway
		f.reg.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	f.reg.calls[key] = c
	f.reg.mu.Unlock()

	c.val, c.err = op(ctx)

	if c.err == nil {
		if err := f.store.Set(key, c.val, opts.TTL); err != nil {
			logrus.Errorf("Cache write failed for %s: %v", key, err)
		}
	}

	f.reg.forget(key, c)
	c.wg.Done()

	return c.val, c.err
}

// FetchRequest routes an HTTP request through the cache. The returned
// bool reports whether this caller was served without triggering a
// network operation of its own.
func (f *Fetcher) FetchRequest(requ *http.Request, opts Options) (*http.Response, bool, error) {
	body, err := bufferBody(requ)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate cache key: %w", err)
	}
	key := Key(requ.Method, requ.URL.String(), body)

	fromCache := true
	op := func(ctx context.Context) ([]byte, error) {
		fromCache = false
		return f.roundTrip(ctx, requ)
	}

	data, err := f.Do(requ.Context(), key, op, opts)
	if body != nil {
		// roundTrip consumes the body; rewind so the caller can reuse
		// the request, e.g. to forward it itself after a failure
		requ.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err != nil {
		return nil, false, err
	}

	resp, err := Deserialize(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize cached response: %w", err)
	}
	resp.Request = requ // Associate the original request with the response
	return resp, fromCache, nil
}

// FetchURL fetches method+url with an optional body through the cache.
func (f *Fetcher) FetchURL(ctx context.Context, method, rawURL string, body []byte, opts Options) (*http.Response, error) {
	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	requ, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, err
	}
	resp, _, err := f.FetchRequest(requ, opts)
	return resp, err
}

// roundTrip performs the real upstream call and serializes the result.
// Transport errors propagate unchanged; non-2xx statuses become
// *HTTPError.
func (f *Fetcher) roundTrip(ctx context.Context, requ *http.Request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, requ.Method, requ.URL.String(), requ.Body)
	if err != nil {
		return nil, err
	}

	// Copy headers
	for key, values := range requ.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return Serialize(resp)
}

// Stats reports cache occupancy and outstanding network operations.
type Stats struct {
	Size            int `json:"size"`
	MaxSize         int `json:"maxSize"`
	PendingRequests int `json:"pendingRequests"`
}

func (f *Fetcher) Stats() Stats {
	return Stats{
		Size:            f.store.Len(),
		MaxSize:         f.store.MaxSize(),
		PendingRequests: f.reg.pending(),
	}
}

// Get returns a valid cached payload for key, or nil.
func (f *Fetcher) Get(key string) ([]byte, error) {
	return f.store.Get(key)
}

// Set stores a payload directly, bypassing the network path.
func (f *Fetcher) Set(key string, payload []byte, ttl time.Duration) error {
	return f.store.Set(key, payload, ttl)
}

// Delete removes a single key from the store.
func (f *Fetcher) Delete(key string) error {
	return f.store.Delete(key)
}

// Clear resets the store and forgets all in-flight registrations, so a
// full reset cannot leave dangling subscriptions.
func (f *Fetcher) Clear() error {
	f.reg.clear()
	return f.store.Clear()
}

// InvalidatePattern removes every entry whose key contains pattern.
func (f *Fetcher) InvalidatePattern(pattern string) (int, error) {
	return f.store.InvalidatePattern(pattern)
}

// InvalidateRegexp removes every entry whose key matches re.
func (f *Fetcher) InvalidateRegexp(re *regexp.Regexp) (int, error) {
	return f.store.InvalidateRegexp(re)
}
