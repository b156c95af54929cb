package fetch

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
)

const respPrefix = "---HTTP-RESPONSE---\n"

// Serialize dumps a response (headers and body) into the byte payload
// stored in the cache.
func Serialize(resp *http.Response) ([]byte, error) {
	b, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}

	return append([]byte(respPrefix), b...), nil
}

// Deserialize rebuilds a response from a cached payload.
func Deserialize(b []byte) (*http.Response, error) {
	if len(b) < len(respPrefix) || string(b[:len(respPrefix)]) != respPrefix {
		return nil, fmt.Errorf("invalid payload prefix, not a serialized response")
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b[len(respPrefix):])), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}

	return resp, nil
}
