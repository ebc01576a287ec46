package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-control/internal/dispatch"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/httpretry"
)

// newTestClient lets tests swap in a fixed http.Client pointed at httptest, bypassing
// the OAuth2 token exchange that New() would otherwise trigger.
func newTestClient(doer httpretry.HTTPDoer) *Client {
	return &Client{http: doer, timeout: 5 * time.Second}
}

func TestSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/drafts/send", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-1", "threadId": "thread-1"})
	}))
	defer srv.Close()

	c := newTestClient(&redirectingDoer{base: srv.URL})
	result, err := c.Send(context.Background(), "draft-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, "thread-1", result.ThreadID)
}

func TestSendClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(&redirectingDoer{base: srv.URL})
	_, err := c.Send(context.Background(), "draft-1")
	require.Error(t, err)

	var provErr *dispatch.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, domain.ErrGmail429, provErr.Code)
}

func TestSendClassifiesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(&redirectingDoer{base: srv.URL})
	_, err := c.Send(context.Background(), "draft-1")
	require.Error(t, err)

	var provErr *dispatch.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, domain.ErrAuth, provErr.Code)
}

// redirectingDoer rewrites requests to hit a local httptest server instead of
// the real Gmail API host, so the adapter's URL-building is exercised as-is.
type redirectingDoer struct {
	base string
}

func (d *redirectingDoer) Do(req *http.Request) (*http.Response, error) {
	target, err := req.URL.Parse(d.base + req.URL.Path + "?" + req.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	req.URL = target
	req.Host = target.Host
	return http.DefaultClient.Do(req)
}
