package telegram

import (
	"net"
	"net/http"
	"time"

	tgsender "github.com/m3rciful/meterdesk/core/telegram/sender"
)

const (
	dialTimeout     = 5 * time.Second
	keepAlive       = 30 * time.Second
	tlsTimeout      = 5 * time.Second
	idleConnTimeout = 90 * time.Second
	clientTimeout   = 30 * time.Second

	redialAttempts = 2
	redialBackoff  = 500 * time.Millisecond
)

// NewHTTPClient returns the client both bots share. Long polling holds a
// request open for the poll timeout, so there is no response-header deadline;
// the overall client timeout must stay above the poll timeout.
func NewHTTPClient(pollTimeout time.Duration) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   max(clientTimeout, pollTimeout+10*time.Second),
		Transport: &redialTransport{base: base, attempts: redialAttempts, backoff: redialBackoff},
	}
}

// redialTransport repeats a request whose connection could not be opened.
// Anything that may have reached Telegram is returned as is: Bot API calls
// are not idempotent and the sender decides whether to try again.
type redialTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *redialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for i := 1; i <= t.attempts && err != nil && tgsender.Unsent(err); i++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		timer := time.NewTimer(t.backoff * time.Duration(i))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}
