package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with the standard timeout that sends the
// given User-Agent on every request. api.weather.gov refuses requests
// without an identifying agent string.
func NewClient(userAgent string) *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &userAgentTransport{
			agent: userAgent,
			base:  http.DefaultTransport,
		},
	}
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
