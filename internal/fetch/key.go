package fetch

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Key derives the deterministic cache signature for a logical request:
// METHOD:url:bodyhash. The same method, URL, and body always yield the
// same key. Requests without a body end in an empty hash segment, which
// keeps key families matchable by URL substring.
func Key(method, rawURL string, body []byte) string {
	var bodyHash string
	if len(body) > 0 {
		hash := sha256.Sum256(body)
		bodyHash = hex.EncodeToString(hash[:])[:8]
	}
	return fmt.Sprintf("%s:%s:%s", strings.ToUpper(method), rawURL, bodyHash)
}

// RequestKey computes the cache signature for an HTTP request.
// The body, if any, is read and restored so the request stays usable.
func RequestKey(requ *http.Request) (string, error) {
	body, err := bufferBody(requ)
	if err != nil {
		return "", err
	}
	return Key(requ.Method, requ.URL.String(), body), nil
}

// bufferBody reads the request body, if any, and installs a fresh
// reader in its place. The returned bytes let callers rewind the body
// again after it has been consumed downstream.
func bufferBody(requ *http.Request) ([]byte, error) {
	if requ.Body == nil || requ.Body == http.NoBody {
		return nil, nil
	}
	bodyBytes, err := io.ReadAll(requ.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if err := requ.Body.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request body: %w", err)
	}
	requ.Body = io.NopCloser(bytes.NewReader(bodyBytes)) // restore
	return bodyBytes, nil
}
