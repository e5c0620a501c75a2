package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapsync/internal/protocol"
	"mapsync/internal/server"
)

func dialWebSocket(t *testing.T, url, name string, l Listener) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, err := DialWebSocket(ctx, url, name, Options{Listener: l})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestClient_OverHTTPEndpoints(t *testing.T) {
	srv := server.New(server.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts := httptest.NewServer(srv.HTTPHandler(ctx))
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ra, rb := newRecorder(), newRecorder()
	alice := dialWebSocket(t, wsURL, "alice", ra)
	bob := dialWebSocket(t, wsURL, "bob", rb)

	require.NoError(t, alice.Rename(classABC, "com.example.Widget"))
	assert.Equal(t, Confirmed, ra.waitResolved(t).state)

	msg := rb.waitMessage(t, protocol.MessageRename)
	assert.Equal(t, "alice renamed a.b.C to com.example.Widget", msg.String())
	m, ok := bob.Lookup(classABC)
	require.True(t, ok)
	assert.Equal(t, "com.example.Widget", m.TargetName)

	require.Eventually(t, func() bool {
		m, ok := srv.Lookup(classABC)
		return ok && m.TargetName == "com.example.Widget"
	}, waitTimeout, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"alice", "bob"}, srv.Users())

	status, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "mapsync_mutations_total")
	assert.Contains(t, body, "mapsync_sessions_active 2")

	status, body = get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
}
