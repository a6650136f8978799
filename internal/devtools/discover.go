package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var httpc = &http.Client{Timeout: 10 * time.Second}

// versionInfo is the body of GET /json/version.
type versionInfo struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	UserAgent       string `json:"User-Agent"`
	V8Version       string `json:"V8-Version"`
	WebKitVersion   string `json:"WebKit-Version"`
	WebSocketURL    string `json:"webSocketDebuggerUrl"`
}

// Discover asks an http(s) debugging endpoint for its browser websocket URL
// and version.
func Discover(ctx context.Context, endpoint string) (string, Version, error) {
	var v Version
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", v, fmt.Errorf("bad endpoint url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", v, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/json/version"

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := httpc.Do(req)
	if err != nil {
		return "", v, fmt.Errorf("endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", v, fmt.Errorf("%w: /json/version status %d", ErrProtocol, resp.StatusCode)
	}

	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", v, fmt.Errorf("%w: decode /json/version: %v", ErrProtocol, err)
	}
	if info.WebSocketURL == "" {
		return "", v, fmt.Errorf("%w: no webSocketDebuggerUrl", ErrProtocol)
	}
	v = Version{
		ProtocolVersion: info.ProtocolVersion,
		Product:         info.Browser,
		Revision:        info.WebKitVersion,
		UserAgent:       info.UserAgent,
		JSVersion:       info.V8Version,
	}
	return info.WebSocketURL, v, nil
}
