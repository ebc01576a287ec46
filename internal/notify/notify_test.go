package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsMessage(t *testing.T) {
	var received atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload slackPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "auto-stop triggered", payload.Text)
		received.Store(true)
	}))
	defer srv.Close()

	n := New(srv.URL, 5*time.Second)
	n.Send(context.Background(), "auto-stop triggered")

	assert.True(t, received.Load())
}

func TestSendIsNoOpWithEmptyWebhook(t *testing.T) {
	n := New("", 5*time.Second)
	// Must not panic or block on a nil destination.
	n.Send(context.Background(), "ignored")
}
