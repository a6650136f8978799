package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"cdpinject/internal/config"
	"cdpinject/internal/session"
)

type stubLauncher struct {
	launches []session.LaunchOptions
	connects []string
	tab      *stubTab
}

func (l *stubLauncher) Launch(_ context.Context, o session.LaunchOptions) (session.Browser, error) {
	l.launches = append(l.launches, o)
	return stubBrowser{l.tab}, nil
}

func (l *stubLauncher) Connect(_ context.Context, u string) (session.Browser, error) {
	l.connects = append(l.connects, u)
	return stubBrowser{l.tab}, nil
}

type stubBrowser struct{ tab *stubTab }

func (b stubBrowser) Version() (session.Version, error) { return session.Version{Product: "Stub"}, nil }
func (b stubBrowser) NewTab(bool) (session.Tab, error)  { return b.tab, nil }
func (b stubBrowser) Close() error                      { return nil }

type stubTab struct {
	cookies []*network.Cookie
	evalErr error
	closed  int
}

func (t *stubTab) ApplyStealth() error                     { return nil }
func (t *stubTab) SetCookies([]*network.CookieParam) error { return nil }
func (t *stubTab) Navigate(string) error                   { return nil }
func (t *stubTab) Reload() error                           { return nil }
func (t *stubTab) Cookies() ([]*network.Cookie, error)     { return t.cookies, nil }
func (t *stubTab) DeleteCookie(string, string) error       { return nil }
func (t *stubTab) Evaluate(string) error                   { return t.evalErr }
func (t *stubTab) Close() error                            { t.closed++; return nil }

func run(t *testing.T, l *stubLauncher, args ...string) (int, string) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	var out bytes.Buffer
	code := Main(context.Background(), args, strings.NewReader(""), &out,
		func(config.Session, *slog.Logger) session.Launcher { return l })
	return code, out.String()
}

func TestUsageErrorsBeforeBrowser(t *testing.T) {
	cases := map[string][]string{
		"neither mode":           {"--url", "https://example.com"},
		"both modes":             {"--new", "--connect", "ws://127.0.0.1:9222/devtools/browser/x"},
		"headful without new":    {"-c", "ws://127.0.0.1:9222/devtools/browser/x", "-H"},
		"user agent without new": {"-c", "ws://127.0.0.1:9222/devtools/browser/x", "-a", "ua"},
		"clean without output":   {"-n", "-C"},
		"unknown flag":           {"-n", "--bogus"},
		"positional argument":    {"-n", "extra"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			l := &stubLauncher{tab: &stubTab{}}
			code, out := run(t, l, args...)
			require.Equal(t, ExitUsage, code)
			require.Contains(t, out, "Usage:")
			require.Empty(t, l.launches)
			require.Empty(t, l.connects)
		})
	}
}

func TestShortFlagsLaunch(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{}}
	code, out := run(t, l, "-n", "-H", "-a", "custom/1.0", "-i", "-s")
	require.Equal(t, ExitOK, code, out)
	require.Len(t, l.launches, 1)
	require.False(t, l.launches[0].Headless)
	require.Equal(t, "custom/1.0", l.launches[0].UserAgent)
	require.True(t, l.launches[0].Incognito)
	require.Contains(t, out, "[cdpinject] Launching new headful browser instance")
	require.Equal(t, 1, l.tab.closed)
}

func TestDefaultLaunchIsHeadless(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{}}
	code, _ := run(t, l, "--new")
	require.Equal(t, ExitOK, code)
	require.True(t, l.launches[0].Headless)
	require.Equal(t, config.DefaultUserAgent, l.launches[0].UserAgent)
}

func TestConnectEndToEnd(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{cookies: []*network.Cookie{
		{Name: "a", Domain: "example.com"},
		{Name: "b", Domain: "example.com"},
	}}}
	out := filepath.Join(t.TempDir(), "cookies.json")
	code, log := run(t, l, "-c", "ws://127.0.0.1:9222/devtools/browser/x", "-u", "https://example.com", "-o", out)
	require.Equal(t, ExitOK, code, log)
	require.Empty(t, l.launches)
	require.Len(t, l.connects, 1)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 2)
	require.Contains(t, log, "Connecting to existing browser instance at ws://127.0.0.1:9222/devtools/browser/x")
	require.Contains(t, log, "Saving cookies to '"+out+"'")
	require.Contains(t, log, "Cookies successfully saved to '"+out+"'")
	require.Equal(t, 1, l.tab.closed)
}

func TestPayloadFailureExitsOne(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{evalErr: errors.New("Uncaught Error: boom")}}
	payload := filepath.Join(t.TempDir(), "p.js")
	require.NoError(t, os.WriteFile(payload, []byte(`throw new Error("boom")`), 0o600))

	code, out := run(t, l, "-n", "-p", payload, "-w")
	require.Equal(t, ExitFailure, code)
	require.Contains(t, out, "[cdpinject] Error occurred while executing payload: Uncaught Error: boom")
	require.NotContains(t, out, "Hanging browser")
}

func TestMissingPayloadExitsOne(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{}}
	code, out := run(t, l, "-n", "-p", filepath.Join(t.TempDir(), "missing.js"))
	require.Equal(t, ExitFailure, code)
	require.Contains(t, out, "Error occurred while reading payload file")
}

func TestBadSettingsFileIsOperational(t *testing.T) {
	l := &stubLauncher{tab: &stubTab{}}
	code, out := run(t, l, "-n", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Equal(t, ExitFailure, code)
	require.Contains(t, out, "Error occurred while loading settings")
	require.Empty(t, l.launches)
}

func TestSettingsAlwaysStealth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("always_stealth: true\nuser_agent: from-file\n"), 0o600))

	l := &stubLauncher{tab: &stubTab{}}
	code, out := run(t, l, "-n", "-v", "--config", path)
	require.Equal(t, ExitOK, code, out)
	require.Equal(t, "from-file", l.launches[0].UserAgent)
	require.Contains(t, out, "Using stealth mode")
}

func TestVersionFlag(t *testing.T) {
	code, out := run(t, &stubLauncher{tab: &stubTab{}}, "--version")
	require.Equal(t, ExitOK, code)
	require.Equal(t, "cdpinject "+version+"\n", out)
}
