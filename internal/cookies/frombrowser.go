package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register finders for major browsers
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// FromBrowser reads the local cookie stores of the named browser family
// ("chrome", "chromium", "edge", "brave", "opera") and returns the cookies
// that apply to targetURL's host, ready for Network.setCookies.
//
// The name may carry a profile path after a colon, e.g.
// "chrome:/home/me/.config/google-chrome/Profile 1".
func FromBrowser(browser, targetURL string) ([]*network.CookieParam, error) {
	if targetURL == "" {
		return nil, errors.New("target url required")
	}
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid host in %q", targetURL)
	}

	name, profile, _ := strings.Cut(browser, ":")
	want := family(name)

	var use []kooky.CookieStore
	for _, s := range kooky.FindAllCookieStores() {
		if family(s.Browser()) != want || !inProfile(s.FilePath(), profile) {
			_ = s.Close()
			continue
		}
		use = append(use, s)
	}
	if len(use) == 0 {
		return nil, fmt.Errorf("no %s cookie stores found", want)
	}
	defer func() {
		for _, s := range use {
			_ = s.Close()
		}
	}()

	var out []*network.CookieParam
	seen := map[cookieKey]bool{}
	for _, s := range use {
		kcs, err := s.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(host))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.FilePath(), err)
		}
		for _, kc := range kcs {
			p := toParam(&kc.Cookie)
			key := keyOf(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cookies for %q found in %s", host, want)
	}
	return out, nil
}

func toParam(c *http.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if !c.Expires.IsZero() {
		ts := cdp.TimeSinceEpoch(c.Expires)
		p.Expires = &ts
	}
	switch c.SameSite {
	case http.SameSiteLaxMode:
		p.SameSite = network.CookieSameSiteLax
	case http.SameSiteStrictMode:
		p.SameSite = network.CookieSameSiteStrict
	case http.SameSiteNoneMode:
		p.SameSite = network.CookieSameSiteNone
	}
	return p
}

// families maps the browser names kooky reports, and the names accepted on
// the command line, to one spelling.
var families = map[string]string{
	"chrome":         "chrome",
	"google chrome":  "chrome",
	"chromium":       "chromium",
	"edge":           "edge",
	"microsoft edge": "edge",
	"brave":          "brave",
	"opera":          "opera",
}

// family returns the browser family for name. Unknown names are treated as
// chrome.
func family(name string) string {
	if f, ok := families[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return "chrome"
}

// inProfile reports whether a cookie store file belongs to profile, given
// either as the store's path or as a fragment of it. An empty profile
// matches every store.
func inProfile(storePath, profile string) bool {
	if profile == "" {
		return true
	}
	if strings.Contains(strings.ToLower(storePath), strings.ToLower(profile)) {
		return true
	}
	return resolve(storePath) == resolve(profile)
}

func resolve(p string) string {
	p = filepath.Clean(p)
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return p
}

// cookieKey collapses the same cookie read from several stores.
type cookieKey struct {
	domain, path, name string
}

func keyOf(p *network.CookieParam) cookieKey {
	return cookieKey{domain: strings.ToLower(p.Domain), path: p.Path, name: p.Name}
}
