package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/httpkit/reqcache/internal/config"
	"github.com/httpkit/reqcache/internal/proxy"
)

// fixture_upstream creates a test upstream server that counts hits
func fixture_upstream(hits *int32, delay time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		atomic.AddInt32(hits, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if requ.URL.Path == "/fail" {
			http.Error(w, "upstream failure", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "path": "` + requ.URL.Path + `"}`))
	}))
}

// fixture_config creates a test config with optional rules
func fixture_config(rules *config.RulesConfig) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Cache: config.CacheConfig{
			Backend: "memory",
			TTL:     "1h",
			MaxSize: 100,
		},
		Rules: config.RulesConfig{Mode: "whitelist"},
		Admin: config.AdminConfig{RateLimit: 100, Burst: 100, TokenTTL: "1h"},
	}

	if rules != nil {
		cfg.Rules = *rules
	}

	return cfg
}

// fixture_proxy creates a proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(cfg *config.Config) (*proxy.Server, *httptest.Server, *http.Client, error) {
	proxyServer, err := proxy.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, client, nil
}
