// Package devtools talks to a DevTools browser endpoint directly, without a
// full CDP client, to check that an attach target is usable.
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrProtocol is returned when the peer accepts the websocket but does not
// answer like a DevTools endpoint.
var ErrProtocol = errors.New("endpoint did not answer as a devtools browser")

// Version is the result of Browser.getVersion.
type Version struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
}

type response struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const probeID = 1

var dialer = websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
}

// Probe dials wsURL, issues Browser.getVersion and waits for its reply.
// Events that arrive first are skipped.
func Probe(ctx context.Context, wsURL string) (Version, error) {
	var v Version
	u, err := url.Parse(wsURL)
	if err != nil {
		return v, fmt.Errorf("bad endpoint url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return v, fmt.Errorf("endpoint %q: scheme must be ws or wss", wsURL)
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return v, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteJSON(request{ID: probeID, Method: "Browser.getVersion"}); err != nil {
		return v, fmt.Errorf("write: %w", err)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return v, ctx.Err()
			}
			return v, fmt.Errorf("read: %w", err)
		}
		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			return v, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if resp.Method != "" {
			continue
		}
		if resp.ID != probeID {
			return v, fmt.Errorf("%w: unexpected reply id %d", ErrProtocol, resp.ID)
		}
		if resp.Error != nil {
			return v, fmt.Errorf("%w: %s (%d)", ErrProtocol, resp.Error.Message, resp.Error.Code)
		}
		if err := json.Unmarshal(resp.Result, &v); err != nil {
			return v, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if v.Product == "" && v.ProtocolVersion == "" {
			return v, fmt.Errorf("%w: empty version", ErrProtocol)
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe done"))
		return v, nil
	}
}
