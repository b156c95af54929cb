package proxy

import (
	"net/http"
	"strings"

	"github.com/httpkit/reqcache/internal/config"
)

// Rule interface for matching requests against caching rules
type Rule interface {
	// Match checks the request, and the response status when resp is
	// not nil, against the rule
	Match(requ *http.Request, resp *http.Response) bool
}

// ConfigRule implements Rule interface for config-based rules
type ConfigRule struct {
	config.CacheRule
}

// Match checks if a request matches this rule
func (r *ConfigRule) Match(requ *http.Request, resp *http.Response) bool {
	// Check if URL starts with base URI
	if !strings.HasPrefix(getTargetURL(requ), r.BaseURI) {
		return false
	}

	// Check if method matches
	methodMatches := false
	for _, m := range r.Methods {
		if strings.EqualFold(m, requ.Method) {
			methodMatches = true
			break
		}
	}
	if !methodMatches {
		return false
	}

	// Check if status code matches (only when a response is available)
	if resp != nil && len(r.StatusCodes) > 0 {
		statusMatches := false
		for _, pattern := range r.StatusCodes {
			if config.MatchesStatusCode(resp.StatusCode, pattern) {
				statusMatches = true
				break
			}
		}
		if !statusMatches {
			return false
		}
	}

	return true
}
