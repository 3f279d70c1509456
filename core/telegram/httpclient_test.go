package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	errs   []error
	bodies []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func newPost(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	return req
}

func TestRedialRetriesUnsentRequests(t *testing.T) {
	base := &scriptedTransport{errs: []error{&net.OpError{Op: "dial", Err: errors.New("refused")}, nil}}
	rt := &redialTransport{base: base, attempts: 2}

	resp, err := rt.RoundTrip(newPost(t))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`}, base.bodies)
}

func TestRedialLeavesPossiblyDeliveredRequests(t *testing.T) {
	reset := &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}
	base := &scriptedTransport{errs: []error{reset, nil}}
	rt := &redialTransport{base: base, attempts: 2}

	_, err := rt.RoundTrip(newPost(t))
	require.ErrorIs(t, err, reset)
	require.Len(t, base.bodies, 1)
}

func TestRedialGivesUp(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("refused")}
	base := &scriptedTransport{errs: []error{dial, dial, dial, dial}}
	rt := &redialTransport{base: base, attempts: 2}

	_, err := rt.RoundTrip(newPost(t))
	require.ErrorIs(t, err, dial)
	require.Len(t, base.bodies, 3)
}
