package tests

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/httpkit/reqcache/internal/config"
	"github.com/httpkit/reqcache/internal/fetch"
)

func cacheAllRules(baseURI string) *config.RulesConfig {
	return &config.RulesConfig{
		Mode: "whitelist",
		Rules: []config.CacheRule{
			{BaseURI: baseURI, Methods: []string{"GET"}},
		},
	}
}

func TestProxyCacheMissThenHit(t *testing.T) {
	var hits int32
	upstream := fixture_upstream(&hits, 0)
	defer upstream.Close()

	_, proxyServer, client, err := fixture_proxy(fixture_config(cacheAllRules(upstream.URL)))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	// First request goes to the upstream
	resp, err := client.Get(upstream.URL + "/api/users")
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("First request status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("First request X-Cache = %q, want MISS", got)
	}

	// Second identical request is served from cache
	resp2, err := client.Get(upstream.URL + "/api/users")
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("Second request X-Cache = %q, want HIT", got)
	}
	if string(body) != string(body2) {
		t.Errorf("Cached body differs: %s vs %s", body, body2)
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Upstream hit %d times, want 1", n)
	}
}

func TestProxyDeduplicatesConcurrentRequests(t *testing.T) {
	var hits int32
	upstream := fixture_upstream(&hits, 100*time.Millisecond)
	defer upstream.Close()

	_, proxyServer, client, err := fixture_proxy(fixture_config(cacheAllRules(upstream.URL)))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	const callers = 4
	bodies := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(upstream.URL + "/api/users")
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			bodies[i] = string(body)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Request %d failed: %v", i, errs[i])
		}
		if bodies[i] != bodies[0] {
			t.Errorf("Request %d body differs: %s vs %s", i, bodies[i], bodies[0])
		}
	}

	// All concurrent requests must share one upstream operation
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Upstream hit %d times for concurrent requests, want 1", n)
	}
}

func TestProxyDoesNotCacheUpstreamErrors(t *testing.T) {
	var hits int32
	upstream := fixture_upstream(&hits, 0)
	defer upstream.Close()

	server, proxyServer, client, err := fixture_proxy(fixture_config(cacheAllRules(upstream.URL)))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	for i := 0; i < 2; i++ {
		resp, err := client.Get(upstream.URL + "/fail")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("Request %d status = %d, want 500", i, resp.StatusCode)
		}
	}

	// Failures are never cached
	if size := server.Fetcher().Stats().Size; size != 0 {
		t.Errorf("Stats().Size = %d after failed fetches, want 0", size)
	}
}

func TestProxyForwardsPostBodyAfterUpstreamError(t *testing.T) {
	const requestBody = `{"name": "alice"}`
	const errorBody = "user service unavailable"

	var mu sync.Mutex
	var received []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		body, _ := io.ReadAll(requ.Body)
		mu.Lock()
		received = append(received, string(body))
		mu.Unlock()
		http.Error(w, errorBody, http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	rules := &config.RulesConfig{
		Mode: "whitelist",
		Rules: []config.CacheRule{
			{BaseURI: upstream.URL, Methods: []string{"POST"}},
		},
	}
	server, proxyServer, client, err := fixture_proxy(fixture_config(rules))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	resp, err := client.Post(upstream.URL+"/api/users", "application/json", strings.NewReader(requestBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// The client must see the upstream's own error response, not a
	// substitute synthesized inside the proxy
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), errorBody) {
		t.Errorf("Body = %q, want the upstream error %q", body, errorBody)
	}

	// Both the fetch attempt and the passthrough forward carry the
	// full request body
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("Upstream hit %d times, want 2 (fetch attempt + forward)", len(received))
	}
	for i, got := range received {
		if got != requestBody {
			t.Errorf("Upstream request %d body = %q, want %q", i, got, requestBody)
		}
	}

	if size := server.Fetcher().Stats().Size; size != 0 {
		t.Errorf("Stats().Size = %d after failed fetch, want 0", size)
	}
}

func TestProxyForwardsNonMatchingRequests(t *testing.T) {
	var hits int32
	upstream := fixture_upstream(&hits, 0)
	defer upstream.Close()

	// Empty whitelist: nothing is cacheable
	_, proxyServer, client, err := fixture_proxy(fixture_config(nil))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	for i := 0; i < 2; i++ {
		resp, err := client.Get(upstream.URL + "/api/users")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("X-Cache"); got != "" {
			t.Errorf("Request %d X-Cache = %q, want empty (not cached)", i, got)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("Upstream hit %d times, want 2 (every request forwarded)", n)
	}
}

func TestAdminSurfaceOverHTTP(t *testing.T) {
	var hits int32
	upstream := fixture_upstream(&hits, 0)
	defer upstream.Close()

	_, proxyServer, client, err := fixture_proxy(fixture_config(cacheAllRules(upstream.URL)))
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	defer proxyServer.Close()

	// Warm one entry through the proxy
	resp, err := client.Get(upstream.URL + "/api/users")
	if err != nil {
		t.Fatalf("Warmup request failed: %v", err)
	}
	resp.Body.Close()

	// The admin surface answers direct (non-proxied) requests
	resp, err = http.Get(proxyServer.URL + "/reqcache/stats")
	if err != nil {
		t.Fatalf("Stats request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stats status = %d, want 200", resp.StatusCode)
	}

	var stats fetch.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Size != 1 {
		t.Errorf("Stats.Size = %d, want 1", stats.Size)
	}
}
