package proxy

import (
	"fmt"
	"net"
	"net/http"
)

func getTargetURL(requ *http.Request) string {
	if requ.URL.IsAbs() {
		return requ.URL.String()
	}

	// Reconstruct URL from Host header
	scheme := "http"
	if requ.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s%s", scheme, requ.Host, requ.URL.String())
}

// clientIP extracts the client address without the port.
func clientIP(requ *http.Request) string {
	host, _, err := net.SplitHostPort(requ.RemoteAddr)
	if err != nil {
		return requ.RemoteAddr
	}
	return host
}
