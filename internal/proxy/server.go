package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/httpkit/reqcache/internal/cache"
	"github.com/httpkit/reqcache/internal/config"
	"github.com/httpkit/reqcache/internal/fetch"
	"github.com/httpkit/reqcache/internal/reports"
	"github.com/httpkit/reqcache/internal/token"
)

// Server represents the caching proxy server
type Server struct {
	config  *config.Config
	fetcher *fetch.Fetcher
	rules   []Rule
	tokens  *token.Service
	reports *reports.Log
	limiter *rateLimiter
	proxy   *goproxy.ProxyHttpServer
}

// New creates a new proxy server
func New(cfg *config.Config) (*Server, error) {
	cacheTTL, err := cfg.GetCacheTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid cache TTL: %w", err)
	}

	store, err := newStore(cfg, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	tokenTTL, err := cfg.GetTokenTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid admin token TTL: %w", err)
	}

	rules := make([]Rule, 0, len(cfg.Rules.Rules))
	for _, rule := range cfg.Rules.Rules {
		rules = append(rules, &ConfigRule{CacheRule: rule})
	}

	s := &Server{
		config:  cfg,
		fetcher: fetch.New(store, &http.Client{Timeout: 30 * time.Second}),
		rules:   rules,
		tokens:  token.New(tokenTTL),
		reports: reports.NewLog(reports.DefaultMaxReports),
		limiter: newRateLimiter(cfg.Admin.RateLimit, cfg.Admin.Burst),
	}

	s.proxy = goproxy.NewProxyHttpServer()
	s.proxy.OnRequest().DoFunc(s.handleRequest)
	s.setupHTTPSHandler()
	s.proxy.NonproxyHandler = s.adminHandler()

	return s, nil
}

// newStore builds the cache backend selected by the config.
func newStore(cfg *config.Config, ttl time.Duration) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "disk":
		store := cache.NewDisk(cfg.Cache.Folder, ttl)
		return store, store.Init()
	case "bolt":
		if err := os.MkdirAll(cfg.Cache.Folder, 0755); err != nil {
			return nil, err
		}
		return cache.NewBolt(filepath.Join(cfg.Cache.Folder, "reqcache.db"), ttl)
	default:
		return cache.NewMemory(cfg.Cache.MaxSize, ttl), nil
	}
}

// GetProxy returns the proxy handler (exported for testing)
func (s *Server) GetProxy() http.Handler {
	return s.proxy
}

// Fetcher returns the underlying fetcher (exported for testing)
func (s *Server) Fetcher() *fetch.Fetcher {
	return s.fetcher
}

// Start starts the proxy server
func (s *Server) Start() error {
	logrus.Infof("Starting caching proxy on port %d", s.config.Server.Port)
	logrus.Infof("Cache backend: %s", s.config.Cache.Backend)
	logrus.Infof("Cache TTL: %s", s.config.Cache.TTL)
	logrus.Infof("Rules mode: %s", s.config.Rules.Mode)

	return http.ListenAndServe(fmt.Sprintf(":%d", s.config.Server.Port), s.proxy)
}

func (s *Server) handleRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	if !s.shouldBeCached(requ, nil) {
		logrus.Debugf("Caching disabled by rules for %s %s", requ.Method, requ.URL)
		return requ, nil
	}

	resp, hit, err := s.fetcher.FetchRequest(requ, fetch.Options{})
	if err != nil {
		s.recordFailure(requ, err)
		// FetchRequest rewinds the body on failure, so goproxy can
		// forward the request itself and the client sees the upstream's
		// real response; failures are never cached, so the next call
		// retries against the network
		return requ, nil
	}

	if !hit && !s.shouldBeCached(requ, resp) {
		// Response status excluded by rules, drop the stored entry
		if key, kerr := fetch.RequestKey(requ); kerr == nil {
			if err := s.fetcher.Delete(key); err != nil {
				logrus.Errorf("Failed to drop excluded entry for %s: %v", requ.URL, err)
			}
		}
	}

	if hit {
		resp.Header.Set("X-Cache", "HIT")
		logrus.Infof("Serving from cache: %s %s", requ.Method, requ.URL)
	} else {
		resp.Header.Set("X-Cache", "MISS")
		logrus.Infof("Forwarded request: %s %s -> %d", requ.Method, requ.URL, resp.StatusCode)
	}

	return requ, resp
}

// shouldBeCached determines if a request should be cached based on rules
func (s *Server) shouldBeCached(requ *http.Request, resp *http.Response) bool {
	matched := false
	for _, rule := range s.rules {
		if rule.Match(requ, resp) {
			matched = true
			break
		}
	}

	if s.config.Rules.Mode == "whitelist" {
		return matched
	} else {
		return !matched
	}
}

// recordFailure logs an upstream failure into the report log.
func (s *Server) recordFailure(requ *http.Request, err error) {
	report := reports.Report{
		Method: requ.Method,
		URL:    requ.URL.String(),
		Error:  err.Error(),
	}

	var httpErr *fetch.HTTPError
	if errors.As(err, &httpErr) {
		report.Status = httpErr.StatusCode
		logrus.Debugf("Upstream returned %s for %s %s", httpErr.Status, requ.Method, requ.URL)
	} else {
		logrus.Errorf("Upstream fetch failed for %s %s: %v", requ.Method, requ.URL, err)
	}

	s.reports.Add(report)
}
