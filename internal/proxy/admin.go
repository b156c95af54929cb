package proxy

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"
)

// adminHandler serves the non-proxy admin surface under /reqcache/.
func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/reqcache/stats", s.handleStats)
	mux.HandleFunc("/reqcache/errors", s.handleErrors)
	mux.HandleFunc("/reqcache/token", s.handleToken)
	mux.HandleFunc("/reqcache/invalidate", s.handleInvalidate)
	mux.HandleFunc("/reqcache/clear", s.handleClear)
	return s.limiter.middleware(mux)
}

func (s *Server) handleStats(w http.ResponseWriter, requ *http.Request) {
	if requ.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.fetcher.Stats())
}

func (s *Server) handleErrors(w http.ResponseWriter, requ *http.Request) {
	if requ.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if raw := requ.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	writeJSON(w, s.reports.Recent(limit))
}

func (s *Server) handleToken(w http.ResponseWriter, requ *http.Request) {
	if requ.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"token": s.tokens.Issue()})
}

// requireToken consumes the X-Admin-Token header. Mutating endpoints
// need a fresh token per call.
func (s *Server) requireToken(w http.ResponseWriter, requ *http.Request) bool {
	if !s.tokens.Validate(requ.Header.Get("X-Admin-Token")) {
		http.Error(w, "invalid or expired admin token", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) handleInvalidate(w http.ResponseWriter, requ *http.Request) {
	if requ.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireToken(w, requ) {
		return
	}

	var body struct {
		Pattern string `json:"pattern"`
		Regexp  bool   `json:"regexp"`
	}
	if err := json.NewDecoder(requ.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Pattern == "" {
		http.Error(w, "pattern is required", http.StatusBadRequest)
		return
	}

	var removed int
	var err error
	if body.Regexp {
		re, rerr := regexp.Compile(body.Pattern)
		if rerr != nil {
			http.Error(w, "invalid regexp: "+rerr.Error(), http.StatusBadRequest)
			return
		}
		removed, err = s.fetcher.InvalidateRegexp(re)
	} else {
		removed, err = s.fetcher.InvalidatePattern(body.Pattern)
	}
	if err != nil {
		logrus.Errorf("Invalidation failed for pattern %q: %v", body.Pattern, err)
		http.Error(w, "invalidation failed", http.StatusInternalServerError)
		return
	}

	logrus.Infof("Invalidated %d entries matching %q", removed, body.Pattern)
	writeJSON(w, map[string]int{"removed": removed})
}

func (s *Server) handleClear(w http.ResponseWriter, requ *http.Request) {
	if requ.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireToken(w, requ) {
		return
	}

	if err := s.fetcher.Clear(); err != nil {
		logrus.Errorf("Cache clear failed: %v", err)
		http.Error(w, "clear failed", http.StatusInternalServerError)
		return
	}

	logrus.Infof("Cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write JSON response: %v", err)
	}
}
