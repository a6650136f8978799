package devtools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// mockBrowser answers each request with the reply produced by fn.
func mockBrowser(t *testing.T, fn func(req request) []any) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			for _, m := range fn(req) {
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/test"
}

func TestProbeReturnsVersion(t *testing.T) {
	ws := mockBrowser(t, func(req request) []any {
		if req.Method != "Browser.getVersion" {
			return []any{map[string]any{"id": req.ID, "error": map[string]any{"code": -32601, "message": req.Method}}}
		}
		return []any{
			map[string]any{"method": "Target.targetCreated", "params": map[string]any{}},
			map[string]any{"id": req.ID, "result": Version{
				ProtocolVersion: "1.3",
				Product:         "HeadlessChrome/131.0.0.0",
				UserAgent:       "Mozilla/5.0",
				JSVersion:       "13.1",
			}},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := Probe(ctx, ws)
	require.NoError(t, err)
	require.Equal(t, "HeadlessChrome/131.0.0.0", v.Product)
	require.Equal(t, "13.1", v.JSVersion)
}

func TestProbeProtocolError(t *testing.T) {
	ws := mockBrowser(t, func(req request) []any {
		return []any{map[string]any{"id": req.ID, "error": map[string]any{"code": -32601, "message": "not found"}}}
	})
	_, err := Probe(context.Background(), ws)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestProbeNotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	}))
	defer srv.Close()

	_, err := Probe(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.ErrorIs(t, err, ErrProtocol)
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Probe(ctx, "ws"+strings.TrimPrefix(addr, "http"))
	require.Error(t, err)
}

func TestProbeRejectsHTTPScheme(t *testing.T) {
	_, err := Probe(context.Background(), "http://127.0.0.1:9222")
	require.Error(t, err)
}

func TestResponseDecoding(t *testing.T) {
	var r response
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"result":{"product":"Chrome"}}`), &r))
	require.EqualValues(t, 1, r.ID)
	require.Nil(t, r.Error)
}
