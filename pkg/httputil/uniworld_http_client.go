package httputil

import (
	"net"
	"net/http"
	"time"
)

// NewClient builds an HTTP client with sane production timeouts for
// talking to provider APIs.
func NewClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewShortClient is for quick control-plane calls like token revocation.
func NewShortClient() *http.Client {
	return NewClient(10 * time.Second)
}
