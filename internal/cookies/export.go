package cookies

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chromedp/cdproto/network"
)

// Write stores cookies as a JSON array of protocol cookie objects. Fields
// are written exactly as the browser reported them. The file is produced
// with a single write.
func Write(path string, cs []*network.Cookie) error {
	if cs == nil {
		cs = []*network.Cookie{}
	}
	return writeJSON(path, cs)
}

// WriteParams stores cookies in Network.setCookies form.
func WriteParams(path string, ps []*network.CookieParam) error {
	if ps == nil {
		ps = []*network.CookieParam{}
	}
	return writeJSON(path, ps)
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// Read loads a file produced by Write.
func Read(path string) ([]*network.Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cs []*network.Cookie
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cs, nil
}
